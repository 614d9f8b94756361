// Package rewards connects issue lifecycle events to the gamification engine,
// either in-process or through the background job queue.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/garnizeh/campusfix/internal/jobs"
	"github.com/garnizeh/campusfix/pkg/models"
)

// Job types handled by the worker pool.
const (
	JobIssueReported = "issue.reported"
	JobIssueResolved = "issue.resolved"

	jobPriority = 10
)

// Engine is the part of the gamification engine rewards are delivered to.
type Engine interface {
	HandleIssueReported(ctx context.Context, userID, issueID string) (*models.UserGamification, error)
	HandleIssueResolved(ctx context.Context, userID, issueID string) (*models.UserGamification, error)
}

// Dispatcher delivers issue events to the gamification engine.
type Dispatcher interface {
	IssueReported(ctx context.Context, iss *models.Issue) error
	IssueResolved(ctx context.Context, iss *models.Issue) error
}

type event struct {
	UserID  string `json:"userId"`
	IssueID string `json:"issueId"`
}

// Inline applies rewards synchronously in the caller's request.
type Inline struct {
	engine Engine
	logger *slog.Logger
}

func NewInline(engine Engine, logger *slog.Logger) *Inline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{engine: engine, logger: logger}
}

func (d *Inline) IssueReported(ctx context.Context, iss *models.Issue) error {
	if _, err := d.engine.HandleIssueReported(ctx, iss.ReporterID, iss.ID); err != nil {
		d.logger.Error("issue reported reward", "issue_id", iss.ID, "user_id", iss.ReporterID, "err", err)
		return err
	}
	return nil
}

func (d *Inline) IssueResolved(ctx context.Context, iss *models.Issue) error {
	if _, err := d.engine.HandleIssueResolved(ctx, iss.ReporterID, iss.ID); err != nil {
		d.logger.Error("issue resolved reward", "issue_id", iss.ID, "user_id", iss.ReporterID, "err", err)
		return err
	}
	return nil
}

// Enqueuer is the part of the worker pool the queued dispatcher needs.
type Enqueuer interface {
	EnqueueUnique(ctx context.Context, typ, dedupeKey string, payload any, priority int, maxAttempts int) (int64, error)
}

// Queued turns events into background jobs, one per issue and event kind.
type Queued struct {
	queue       Enqueuer
	maxAttempts int
	logger      *slog.Logger
}

func NewQueued(queue Enqueuer, maxAttempts int, logger *slog.Logger) *Queued {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queued{queue: queue, maxAttempts: maxAttempts, logger: logger}
}

func (d *Queued) IssueReported(ctx context.Context, iss *models.Issue) error {
	return d.enqueue(ctx, JobIssueReported, iss)
}

func (d *Queued) IssueResolved(ctx context.Context, iss *models.Issue) error {
	return d.enqueue(ctx, JobIssueResolved, iss)
}

func (d *Queued) enqueue(ctx context.Context, typ string, iss *models.Issue) error {
	key := typ + ":" + iss.ID
	id, err := d.queue.EnqueueUnique(ctx, typ, key, event{UserID: iss.ReporterID, IssueID: iss.ID}, jobPriority, d.maxAttempts)
	if errors.Is(err, jobs.ErrDuplicate) {
		d.logger.Debug("reward job already queued", "key", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", typ, err)
	}
	d.logger.Debug("reward job queued", "job_id", id, "key", key)
	return nil
}

// Handlers returns the job handlers that apply queued events to engine.
func Handlers(engine Engine) map[string]jobs.Handler {
	return map[string]jobs.Handler{
		JobIssueReported: func(ctx context.Context, j *jobs.Job) error {
			var ev event
			if err := j.Decode(&ev); err != nil {
				return fmt.Errorf("decode %s payload: %w", j.Type, err)
			}
			_, err := engine.HandleIssueReported(ctx, ev.UserID, ev.IssueID)
			return err
		},
		JobIssueResolved: func(ctx context.Context, j *jobs.Job) error {
			var ev event
			if err := j.Decode(&ev); err != nil {
				return fmt.Errorf("decode %s payload: %w", j.Type, err)
			}
			_, err := engine.HandleIssueResolved(ctx, ev.UserID, ev.IssueID)
			return err
		},
	}
}
