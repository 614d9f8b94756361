// Package predict derives rule-based maintenance alerts from issue history.
package predict

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/garnizeh/campusfix/pkg/models"
)

// FollowupRule selects which issues produce maintenance follow-up alerts.
type FollowupRule string

const (
	// RuleStrict matches resolved Equipment or Electrical issues.
	RuleStrict FollowupRule = "strict"
	// RuleLegacy matches resolved Equipment issues and every Electrical issue.
	RuleLegacy FollowupRule = "legacy"
)

func (r FollowupRule) Valid() bool { return r == RuleStrict || r == RuleLegacy }

const (
	MaxPredictions = 5

	recurringMinIssues     = 3
	recurringHighAt        = 5
	recurringBase          = 60
	recurringStep          = 10
	recurringConfidenceCap = 95
	followupLimit          = 3
	followupConfidence     = 70
	trendingMinIssues      = 2
	trendingConfidence     = 85
)

var followupCategories = []string{"Equipment", "Electrical"}

func (r FollowupRule) matches(iss models.Issue) bool {
	if r == RuleLegacy {
		return (iss.Status == models.StatusResolved && iss.Category == "Equipment") || iss.Category == "Electrical"
	}
	return iss.Status == models.StatusResolved && slices.Contains(followupCategories, iss.Category)
}

type location struct {
	room, building string
}

// tally counts keys while remembering first-appearance order, so ties resolve
// to whichever key was seen first.
type tally struct {
	order  []string
	counts map[string]int
}

func newTally() *tally { return &tally{counts: map[string]int{}} }

func (t *tally) add(k string) {
	if _, ok := t.counts[k]; !ok {
		t.order = append(t.order, k)
	}
	t.counts[k]++
}

func (t *tally) top() (string, int) {
	best, n := "", 0
	for _, k := range t.order {
		if t.counts[k] > n {
			best, n = k, t.counts[k]
		}
	}
	return best, n
}

// Generate runs the recurring-location, follow-up and trending-category passes
// over issues (expected newest first) and returns at most MaxPredictions alerts.
func Generate(issues []models.Issue, now time.Time, rule FollowupRule) []models.Prediction {
	if !rule.Valid() {
		rule = RuleStrict
	}
	out := make([]models.Prediction, 0)

	var (
		locOrder []location
		byLoc    = map[location][]models.Issue{}
	)
	for _, iss := range issues {
		k := location{iss.Room, iss.Building}
		if _, ok := byLoc[k]; !ok {
			locOrder = append(locOrder, k)
		}
		byLoc[k] = append(byLoc[k], iss)
	}
	for _, loc := range locOrder {
		group := byLoc[loc]
		n := len(group)
		if n < recurringMinIssues {
			continue
		}
		cats := newTally()
		for _, iss := range group {
			cats.add(iss.Category)
		}
		cat, k := cats.top()
		prio := models.PriorityMedium
		if n >= recurringHighAt {
			prio = models.PriorityHigh
		}
		out = append(out, models.Prediction{
			ID:            fmt.Sprintf("pred-%s-%s-%s", loc.room, loc.building, cat),
			Type:          models.PredictionRecurring,
			Title:         fmt.Sprintf("Potential %s issue in %s", cat, loc.room),
			Description:   fmt.Sprintf("This location has had %d issues, %d related to %s. Proactive inspection recommended.", n, k, cat),
			Room:          loc.room,
			Building:      loc.building,
			Category:      cat,
			Confidence:    min(recurringConfidenceCap, recurringBase+recurringStep*n),
			Priority:      prio,
			BasedOnIssues: n,
			CreatedAt:     now,
		})
	}

	followups := 0
	for _, iss := range issues {
		if followups == followupLimit {
			break
		}
		if !rule.matches(iss) {
			continue
		}
		followups++
		out = append(out, models.Prediction{
			ID:            "pred-followup-" + iss.ID,
			Type:          models.PredictionFollowup,
			Title:         "Follow-up inspection: " + iss.Title,
			Description:   iss.Category + " issues often recur. Schedule preventive maintenance check.",
			Room:          iss.Room,
			Building:      iss.Building,
			Category:      iss.Category,
			Confidence:    followupConfidence,
			Priority:      models.PriorityLow,
			BasedOnIssues: 1,
			CreatedAt:     now,
		})
	}

	urgent := newTally()
	for _, iss := range issues {
		if iss.Priority == models.PriorityHigh || iss.Priority == models.PriorityCritical {
			urgent.add(iss.Category)
		}
	}
	if cat, n := urgent.top(); n >= trendingMinIssues {
		out = append(out, models.Prediction{
			ID:            "pred-trending-" + cat,
			Type:          models.PredictionTrending,
			Title:         cat + " issues trending upward",
			Description:   fmt.Sprintf("Campus-wide increase in %s issues detected. %d high-priority cases recently. Consider department-wide inspection.", cat, n),
			Room:          "Multiple Locations",
			Building:      "Campus-wide",
			Category:      cat,
			Confidence:    trendingConfidence,
			Priority:      models.PriorityHigh,
			BasedOnIssues: n,
			CreatedAt:     now,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		hi, hj := out[i].Priority == models.PriorityHigh, out[j].Priority == models.PriorityHigh
		if hi != hj {
			return hi
		}
		return out[i].Confidence > out[j].Confidence
	})
	if len(out) > MaxPredictions {
		out = out[:MaxPredictions]
	}
	return out
}

// ParseRule maps a configuration value to a rule.
func ParseRule(s string) (FollowupRule, error) {
	r := FollowupRule(strings.ToLower(strings.TrimSpace(s)))
	if r == "" {
		return RuleStrict, nil
	}
	if !r.Valid() {
		return "", fmt.Errorf("unknown follow-up rule %q", s)
	}
	return r, nil
}
