package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"

	dbfs "github.com/garnizeh/campusfix/db"
)

const (
	defaultCatalogPath = "seed/catalog.json"
	schemaPath         = "seed/catalog.schema.json"
)

// Loader loads, validates and caches the catalog. An empty path selects the embedded default.
type Loader struct {
	path   string
	schema *jsonschema.Schema
	mu     sync.RWMutex
	cur    *Catalog
}

func NewLoader(ctx context.Context, path string) (*Loader, error) {
	raw, err := fs.ReadFile(dbfs.SeedFiles, schemaPath)
	if err != nil {
		return nil, fmt.Errorf("read catalog schema: %w", err)
	}
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(raw, rs); err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	l := &Loader{path: path, schema: rs}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}

	return l, nil
}

// Catalog returns the current catalog. Callers must not modify it.
func (l *Loader) Catalog() *Catalog {
	l.mu.RLock()
	c := l.cur
	l.mu.RUnlock()

	return c
}

// Reload re-reads the catalog source. The previous catalog stays active on error.
func (l *Loader) Reload(ctx context.Context) error {
	var (
		data []byte
		err  error
	)
	if l.path == "" {
		data, err = fs.ReadFile(dbfs.SeedFiles, defaultCatalogPath)
	} else {
		data, err = os.ReadFile(l.path)
	}
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	c, err := l.parse(ctx, data)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.cur = c
	l.mu.Unlock()
	return nil
}

func (l *Loader) parse(ctx context.Context, data []byte) (*Catalog, error) {
	verrs, err := l.schema.ValidateBytes(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("catalog schema validate: %w", err)
	}
	if len(verrs) > 0 {
		var sb strings.Builder
		for _, v := range verrs {
			sb.WriteString(v.PropertyPath)
			sb.WriteString(": ")
			sb.WriteString(v.Message)
			sb.WriteString("; ")
		}
		return nil, fmt.Errorf("catalog does not match schema: %s", sb.String())
	}

	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.check(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return &c, nil
}

// Default loads the embedded catalog. It panics if the embedded file is broken,
// which only a bad build can cause.
func Default() *Catalog {
	l, err := NewLoader(context.Background(), "")
	if err != nil {
		panic(err)
	}
	return l.Catalog()
}
