package catalog

import (
	"fmt"

	"github.com/garnizeh/campusfix/pkg/models"
)

// Metrics a badge trigger or achievement can track.
const (
	MetricIssuesReported = "issues_reported"
	MetricIssuesResolved = "issues_resolved"
	MetricStreak         = "streak"
)

type Trigger struct {
	Metric    string `json:"metric"`
	Threshold int    `json:"threshold"`
}

type BadgeDef struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Trigger     *Trigger `json:"trigger,omitempty"`
}

type AchievementDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Target      int    `json:"target"`
	Metric      string `json:"metric"`
}

type Reward struct {
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

type Rewards struct {
	IssueReported Reward `json:"issueReported"`
}

// Catalog is the static badge and achievement table the gamification engine runs on.
type Catalog struct {
	Version      string           `json:"version"`
	BadgeBonus   int              `json:"badgeBonus"`
	Rewards      Rewards          `json:"rewards"`
	Badges       []BadgeDef       `json:"badges"`
	Achievements []AchievementDef `json:"achievements"`
}

func (c *Catalog) Badge(id string) (BadgeDef, bool) {
	for _, b := range c.Badges {
		if b.ID == id {
			return b, true
		}
	}
	return BadgeDef{}, false
}

// BadgesAt returns the badges triggered when metric reaches exactly value.
// Metrics move one step at a time, so raising or lowering a threshold in the
// catalog never grants a badge for a count passed earlier.
func (c *Catalog) BadgesAt(metric string, value int) []BadgeDef {
	var out []BadgeDef
	for _, b := range c.Badges {
		if b.Trigger != nil && b.Trigger.Metric == metric && value == b.Trigger.Threshold {
			out = append(out, b)
		}
	}
	return out
}

// AchievementsFor returns the achievements tracking metric.
func (c *Catalog) AchievementsFor(metric string) []AchievementDef {
	var out []AchievementDef
	for _, a := range c.Achievements {
		if a.Metric == metric {
			out = append(out, a)
		}
	}
	return out
}

// SeedAchievements returns fresh trackers for a new profile.
func (c *Catalog) SeedAchievements() []models.Achievement {
	out := make([]models.Achievement, 0, len(c.Achievements))
	for _, a := range c.Achievements {
		out = append(out, models.Achievement{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Target:      a.Target,
		})
	}
	return out
}

func (c *Catalog) check() error {
	seen := make(map[string]bool, len(c.Badges))
	for _, b := range c.Badges {
		if seen[b.ID] {
			return fmt.Errorf("duplicate badge id %q", b.ID)
		}
		seen[b.ID] = true
	}
	seen = make(map[string]bool, len(c.Achievements))
	for _, a := range c.Achievements {
		if seen[a.ID] {
			return fmt.Errorf("duplicate achievement id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}
