package issues

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garnizeh/campusfix/pkg/models"
)

var (
	urgentWords   = []string{"urgent", "emergency", "broken", "dangerous", "immediate", "critical"}
	moderateWords = []string{"not working", "damaged", "needs", "issue", "problem"}
)

// descriptions this short are not classified and keep the medium default
const minClassifiedLen = 11

// ClassifySentiment grades a report description by keyword: any urgent word
// makes it high, otherwise any moderate word makes it medium, otherwise low.
func ClassifySentiment(text string) models.Sentiment {
	if len(text) < minClassifiedLen {
		return models.SentimentMedium
	}
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, urgentWords):
		return models.SentimentHigh
	case containsAny(lower, moderateWords):
		return models.SentimentMedium
	}
	return models.SentimentLow
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// PriorityFor maps a sentiment onto the priority of the same grade.
func PriorityFor(s models.Sentiment) models.Priority {
	switch s {
	case models.SentimentHigh:
		return models.PriorityHigh
	case models.SentimentLow:
		return models.PriorityLow
	}
	return models.PriorityMedium
}

// LocationOf renders the human-readable location of a draft.
func LocationOf(building, floor string) string {
	if floor == "" {
		return building
	}
	return building + ", Floor " + floor
}

func validCategory(fl validator.FieldLevel) bool {
	return models.ValidCategory(fl.Field().String())
}
