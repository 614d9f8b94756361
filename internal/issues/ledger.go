package issues

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

var _ repository.IssueLedger = (*Ledger)(nil)

const (
	issuePrefix     = "issue:"
	userIssuePrefix = "user-issue:"
)

func issueKey(id string) string { return issuePrefix + id }

func userIssueKey(userID, id string) string { return userIssuePrefix + userID + ":" + id }

// Ledger owns issue records and their lifecycle on top of a key-value store.
type Ledger struct {
	store    repository.Store
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	validate *validator.Validate
}

type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides issue id generation.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

func New(store repository.Store, logger *slog.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	if err := v.RegisterValidation("category", validCategory); err != nil {
		panic(err)
	}

	l := &Ledger{
		store:    store,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		validate: v,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

func (l *Ledger) Create(ctx context.Context, draft models.IssueDraft, reporter models.UserProfile) (*models.Issue, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)
	draft.Category = strings.TrimSpace(draft.Category)
	draft.Room = strings.TrimSpace(draft.Room)
	draft.Building = strings.TrimSpace(draft.Building)
	draft.Floor = strings.TrimSpace(draft.Floor)

	if err := l.validate.Struct(draft); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			ve := &models.ValidationError{}
			for _, fe := range verrs {
				ve.Fields = append(ve.Fields, fe.Field())
			}
			return nil, ve
		}
		return nil, fmt.Errorf("validate issue: %w", err)
	}
	if draft.Priority != "" && !draft.Priority.Valid() {
		return nil, &models.ValidationError{Fields: []string{"priority"}}
	}
	if draft.Sentiment != "" && !draft.Sentiment.Valid() {
		return nil, &models.ValidationError{Fields: []string{"sentiment"}}
	}

	now := l.now().UTC()
	iss := &models.Issue{
		ID:            l.newID(),
		ReporterID:    reporter.ID,
		ReporterName:  reporter.Name,
		ReporterEmail: reporter.Email,
		Title:         draft.Title,
		Description:   draft.Description,
		Category:      draft.Category,
		Location:      draft.Location,
		Room:          draft.Room,
		Building:      draft.Building,
		Floor:         draft.Floor,
		Status:        models.StatusOpen,
		Priority:      draft.Priority,
		Sentiment:     draft.Sentiment,
		ImageRef:      draft.ImageRef,
		CreatedAt:     now,
		UpdatedAt:     now,
		Tags:          normalizeTags(draft.Tags),
	}
	if iss.Sentiment == "" {
		iss.Sentiment = ClassifySentiment(iss.Description)
	}
	if iss.Priority == "" {
		iss.Priority = PriorityFor(iss.Sentiment)
	}
	if iss.Location == "" {
		iss.Location = LocationOf(iss.Building, iss.Floor)
	}

	if err := repository.SetJSON(ctx, l.store, issueKey(iss.ID), iss); err != nil {
		return nil, err
	}
	if err := repository.SetJSON(ctx, l.store, userIssueKey(iss.ReporterID, iss.ID), iss.ID); err != nil {
		return nil, err
	}

	l.logger.Info("issue created", "issue_id", iss.ID, "reporter_id", iss.ReporterID, "category", iss.Category)
	return iss, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*models.Issue, error) {
	return repository.GetJSON[models.Issue](ctx, l.store, issueKey(id))
}

func (l *Ledger) Update(ctx context.Context, id string, upd models.IssueUpdate) (*models.Issue, error) {
	if upd.Priority != nil && !upd.Priority.Valid() {
		return nil, &models.ValidationError{Fields: []string{"priority"}}
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, &models.ValidationError{Fields: []string{"status"}}
	}

	return repository.UpdateJSON(ctx, l.store, issueKey(id), func(cur *models.Issue) (*models.Issue, error) {
		if cur == nil {
			return nil, repository.ErrNotFound
		}
		now := l.touch(cur)

		if upd.Status != nil && *upd.Status != cur.Status {
			if !CanTransition(cur.Status, *upd.Status) {
				l.logger.Warn("rejected status transition", "issue_id", id, "from", cur.Status, "to", *upd.Status)
				return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, cur.Status, *upd.Status)
			}
			cur.Status = *upd.Status
			if cur.Status == models.StatusResolved {
				cur.ResolvedAt = &now
			}
		}
		if upd.Priority != nil {
			cur.Priority = *upd.Priority
		}
		if upd.AssignedTo != nil {
			cur.AssignedTo = *upd.AssignedTo
		}
		if upd.AssignedDepartment != nil {
			cur.AssignedDepartment = *upd.AssignedDepartment
		}
		if upd.ResolutionNotes != nil {
			cur.ResolutionNotes = *upd.ResolutionNotes
		}
		if upd.Tags != nil {
			cur.Tags = normalizeTags(upd.Tags)
		}
		return cur, nil
	})
}

func (l *Ledger) Reopen(ctx context.Context, id string) (*models.Issue, error) {
	return repository.UpdateJSON(ctx, l.store, issueKey(id), func(cur *models.Issue) (*models.Issue, error) {
		if cur == nil {
			return nil, repository.ErrNotFound
		}
		if cur.Status != models.StatusResolved && cur.Status != models.StatusClosed {
			l.logger.Warn("rejected reopen", "issue_id", id, "status", cur.Status)
			return nil, fmt.Errorf("%w: cannot reopen %s issue", models.ErrInvalidTransition, cur.Status)
		}
		l.touch(cur)
		cur.Status = models.StatusOpen
		cur.ResolvedAt = nil
		return cur, nil
	})
}

func (l *Ledger) Upvote(ctx context.Context, id string) (*models.Issue, error) {
	return repository.UpdateJSON(ctx, l.store, issueKey(id), func(cur *models.Issue) (*models.Issue, error) {
		if cur == nil {
			return nil, repository.ErrNotFound
		}
		l.touch(cur)
		cur.Upvotes++
		return cur, nil
	})
}

// touch advances UpdatedAt to now, never moving it backwards, and returns the stamp.
func (l *Ledger) touch(iss *models.Issue) time.Time {
	now := l.now().UTC()
	if now.Before(iss.UpdatedAt) {
		now = iss.UpdatedAt
	}
	iss.UpdatedAt = now
	return now
}

func (l *Ledger) ListByReporter(ctx context.Context, userID string) ([]models.Issue, error) {
	entries, err := l.store.ScanPrefix(ctx, userIssuePrefix+userID+":")
	if err != nil {
		return nil, err
	}

	out := make([]models.Issue, 0, len(entries))
	for _, e := range entries {
		id := strings.TrimPrefix(e.Key, userIssuePrefix+userID+":")
		iss, err := l.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			l.logger.Debug("dangling issue index entry", "key", e.Key)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *iss)
	}
	sortNewestFirst(out)
	return out, nil
}

func (l *Ledger) ListAll(ctx context.Context, f repository.IssueFilter) ([]models.Issue, error) {
	entries, err := l.store.ScanPrefix(ctx, issuePrefix)
	if err != nil {
		return nil, err
	}

	out := make([]models.Issue, 0, len(entries))
	for _, e := range entries {
		iss, err := decodeIssue(e)
		if err != nil {
			return nil, err
		}
		if f.Status != "" && iss.Status != f.Status {
			continue
		}
		if f.Department != "" && iss.AssignedDepartment != f.Department {
			continue
		}
		out = append(out, iss)
	}
	sortNewestFirst(out)
	return out, nil
}

func (l *Ledger) Delete(ctx context.Context, id string) (bool, error) {
	iss, err := l.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := l.store.Delete(ctx, issueKey(id)); err != nil {
		return false, err
	}
	if err := l.store.Delete(ctx, userIssueKey(iss.ReporterID, id)); err != nil {
		return false, err
	}
	l.logger.Info("issue deleted", "issue_id", id)
	return true, nil
}

func sortNewestFirst(list []models.Issue) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
