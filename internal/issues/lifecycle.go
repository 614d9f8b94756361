package issues

import (
	"encoding/json"
	"fmt"

	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

// next maps each status to its only forward successor. Closed is terminal;
// leaving resolved or closed backwards goes through Reopen.
var next = map[models.IssueStatus]models.IssueStatus{
	models.StatusOpen:       models.StatusAssigned,
	models.StatusAssigned:   models.StatusInProgress,
	models.StatusInProgress: models.StatusResolved,
	models.StatusResolved:   models.StatusClosed,
}

// CanTransition reports whether an issue may move from one status to another.
// Re-setting the current status is always allowed.
func CanTransition(from, to models.IssueStatus) bool {
	if from == to {
		return true
	}
	succ, ok := next[from]
	return ok && succ == to
}

// Authorize returns ErrForbidden unless the caller is staff or reported iss.
func Authorize(caller models.Identity, iss *models.Issue) error {
	if caller.IsStaff() || iss.ReporterID == caller.UserID {
		return nil
	}
	return fmt.Errorf("%w: issue %s belongs to another reporter", models.ErrForbidden, iss.ID)
}

func decodeIssue(e repository.Entry) (models.Issue, error) {
	var iss models.Issue
	if err := json.Unmarshal(e.Value, &iss); err != nil {
		return models.Issue{}, fmt.Errorf("decode %q: %w", e.Key, err)
	}
	return iss, nil
}
