package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/garnizeh/campusfix/internal/catalog"
)

func TestNewLoader_EmbeddedDefault(t *testing.T) {
	l, err := catalog.NewLoader(context.Background(), "")
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}
	c := l.Catalog()
	if len(c.Badges) != 8 {
		t.Fatalf("expected 8 predefined badges, got %d", len(c.Badges))
	}
	if len(c.Achievements) != 4 {
		t.Fatalf("expected 4 achievements, got %d", len(c.Achievements))
	}
	if c.BadgeBonus != 50 {
		t.Fatalf("expected badge bonus 50, got %d", c.BadgeBonus)
	}
	if c.Rewards.IssueReported.Points != 10 {
		t.Fatalf("expected 10 points per report, got %d", c.Rewards.IssueReported.Points)
	}

	b, ok := c.Badge("week-warrior")
	if !ok || b.Trigger == nil || b.Trigger.Metric != catalog.MetricStreak || b.Trigger.Threshold != 7 {
		t.Fatalf("unexpected week-warrior definition: %+v", b)
	}
	if _, ok := c.Badge("nope"); ok {
		t.Fatalf("unknown badge should not resolve")
	}
}

func TestCatalog_BadgesAt(t *testing.T) {
	c := catalog.Default()

	tests := []struct {
		count int
		want  []string
	}{
		{0, nil},
		{1, []string{"first-report"}},
		{4, nil},
		{5, []string{"quick-responder"}},
		{10, []string{"campus-hero"}},
		{12, nil},
	}
	for _, tt := range tests {
		got := c.BadgesAt(catalog.MetricIssuesReported, tt.count)
		if len(got) != len(tt.want) {
			t.Fatalf("count %d: got %d badges want %v", tt.count, len(got), tt.want)
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Fatalf("count %d: badge %d = %s want %s", tt.count, i, got[i].ID, tt.want[i])
			}
		}
	}
}

func TestCatalog_SeedAchievements(t *testing.T) {
	seed := catalog.Default().SeedAchievements()
	wantTargets := []int{1, 5, 10, 25}
	for i, a := range seed {
		if a.Target != wantTargets[i] || a.Progress != 0 || a.Completed {
			t.Fatalf("unexpected seed achievement %+v", a)
		}
	}
}

func TestLoader_FileAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")

	write := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write catalog: %v", err)
		}
	}
	write(`{"version":"v2","badgeBonus":25,"rewards":{"issueReported":{"points":5,"reason":"reported"}},
		"badges":[{"id":"b1","name":"B1","description":"","icon":"star","trigger":{"metric":"issues_reported","threshold":2}}],
		"achievements":[{"id":"a1","name":"A1","target":3,"metric":"issues_reported"}]}`)

	ctx := context.Background()
	l, err := catalog.NewLoader(ctx, path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if got := l.Catalog().Version; got != "v2" {
		t.Fatalf("expected v2, got %s", got)
	}

	// an invalid file keeps the previous catalog active
	write(`{"version":"v3","badgeBonus":-1,"rewards":{},"badges":[],"achievements":[]}`)
	if err := l.Reload(ctx); err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
	if got := l.Catalog().Version; got != "v2" {
		t.Fatalf("expected v2 to stay active, got %s", got)
	}

	write(`{"version":"v4","badgeBonus":0,"rewards":{"issueReported":{"points":1,"reason":"r"}},"badges":[],"achievements":[]}`)
	if err := l.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := l.Catalog().Version; got != "v4" {
		t.Fatalf("expected v4 after reload, got %s", got)
	}
}

func TestLoader_RejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.json")
	body := `{"version":"v1","badgeBonus":50,"rewards":{"issueReported":{"points":10,"reason":"r"}},
		"badges":[{"id":"x","name":"X","description":"","icon":"i"},{"id":"x","name":"X2","description":"","icon":"i"}],
		"achievements":[]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := catalog.NewLoader(context.Background(), path); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	if _, err := catalog.NewLoader(context.Background(), "/does/not/exist.json"); err == nil {
		t.Fatalf("expected error for missing catalog file")
	}
}
