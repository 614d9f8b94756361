package gamification

import (
	"encoding/json"
	"fmt"

	"github.com/garnizeh/campusfix/pkg/repository"
)

func decode[T any](e repository.Entry) (T, error) {
	var v T
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return v, fmt.Errorf("decode %q: %w", e.Key, err)
	}
	return v, nil
}
