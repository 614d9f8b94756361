package gamification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/garnizeh/campusfix/internal/catalog"
	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

var _ repository.GamificationEngine = (*Engine)(nil)

const (
	profilePrefix   = "gamification:"
	pointsLogPrefix = "points-log:"

	// number of processed event ids kept on a profile for deduplication
	maxAppliedEvents = 100
)

func profileKey(userID string) string { return profilePrefix + userID }

// CatalogSource yields the badge and achievement catalog currently in force.
type CatalogSource interface {
	Catalog() *catalog.Catalog
}

// record is the stored profile. AppliedEvents lets a redelivered event step
// be recognised inside the same write that applies it.
type record struct {
	models.UserGamification
	AppliedEvents []string `json:"appliedEvents,omitempty"`
}

func (r *record) applied(event string) bool {
	return event != "" && slices.Contains(r.AppliedEvents, event)
}

func (r *record) markApplied(event string) {
	if event == "" {
		return
	}
	r.AppliedEvents = append(r.AppliedEvents, event)
	if n := len(r.AppliedEvents); n > maxAppliedEvents {
		r.AppliedEvents = slices.Clone(r.AppliedEvents[n-maxAppliedEvents:])
	}
}

type Engine struct {
	store   repository.Store
	catalog CatalogSource
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
	seq     atomic.Uint64
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the time zone used to compare calendar days for streaks.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func New(store repository.Store, cat CatalogSource, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{store: store, catalog: cat, loc: time.UTC, now: time.Now, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// change is the working state of a single profile write.
type change struct {
	rec  *record
	cat  *catalog.Catalog
	now  time.Time
	logs []models.PointsLogEntry
}

func (c *change) addPoints(amount int, reason string) {
	if amount == 0 {
		return
	}
	c.rec.Points += amount
	c.rec.Level = models.LevelFor(c.rec.Points)
	c.logs = append(c.logs, models.PointsLogEntry{
		UserID:    c.rec.UserID,
		Points:    amount,
		Reason:    reason,
		Timestamp: c.now,
	})
}

// awardBadge grants a catalog badge plus the badge bonus. Held or unknown badges are ignored.
func (c *change) awardBadge(id string) bool {
	def, ok := c.cat.Badge(id)
	if !ok || c.rec.HasBadge(id) {
		return false
	}
	c.rec.Badges = append(c.rec.Badges, models.Badge{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Icon:        def.Icon,
		EarnedAt:    c.now,
	})
	c.addPoints(c.cat.BadgeBonus, "Badge earned: "+def.Name)
	return true
}

func (c *change) awardReached(metric string, value int) {
	for _, b := range c.cat.BadgesAt(metric, value) {
		c.awardBadge(b.ID)
	}
}

// setProgress moves an achievement tracker. It reports whether anything changed.
func (c *change) setProgress(id string, progress int) bool {
	for i := range c.rec.Achievements {
		a := &c.rec.Achievements[i]
		if a.ID != id {
			continue
		}
		if a.Completed {
			return false
		}
		progress = max(0, min(progress, a.Target))
		if progress == a.Progress {
			return false
		}
		a.Progress = progress
		if a.Progress >= a.Target {
			a.Completed = true
			now := c.now
			a.CompletedAt = &now
		}
		return true
	}
	return false
}

func (c *change) trackMetric(metric string, value int) {
	for _, def := range c.cat.AchievementsFor(metric) {
		c.setProgress(def.ID, value)
	}
}

func (e *Engine) seed(userID string, cat *catalog.Catalog, now time.Time) *record {
	return &record{UserGamification: models.UserGamification{
		UserID:       userID,
		Level:        1,
		Badges:       []models.Badge{},
		Achievements: cat.SeedAchievements(),
		UpdatedAt:    now,
	}}
}

// mutate applies fn to the stored profile (seeding it when absent) in one compare-and-swap
// write and then appends the points-log entries fn produced. fn returns
// repository.ErrNoChange to leave the profile untouched. A non-empty event is applied at most once.
func (e *Engine) mutate(ctx context.Context, userID, event string, fn func(c *change) error) (*models.UserGamification, error) {
	var committed []models.PointsLogEntry

	rec, err := repository.UpdateJSON(ctx, e.store, profileKey(userID), func(cur *record) (*record, error) {
		committed = nil
		cat := e.catalog.Catalog()
		now := e.now().UTC()

		seeded := cur == nil
		if seeded {
			cur = e.seed(userID, cat, now)
		}
		if cur.applied(event) {
			e.logger.Debug("event already applied", "user_id", userID, "event", event)
			return nil, repository.ErrNoChange
		}

		c := &change{rec: cur, cat: cat, now: now}
		if err := fn(c); err != nil {
			if errors.Is(err, repository.ErrNoChange) && seeded {
				return cur, nil
			}
			return nil, err
		}
		cur.markApplied(event)
		cur.Level = models.LevelFor(cur.Points)
		if now.After(cur.UpdatedAt) {
			cur.UpdatedAt = now
		}
		committed = c.logs
		return cur, nil
	})
	if err != nil {
		return nil, err
	}

	for _, entry := range committed {
		key := fmt.Sprintf("%s%s:%020d-%06d", pointsLogPrefix, userID, entry.Timestamp.UnixNano(), e.seq.Add(1)%1_000_000)
		if err := repository.SetJSON(ctx, e.store, key, entry); err != nil {
			// the award itself is committed; only the audit trail is short
			e.logger.Error("append points log", "user_id", userID, "points", entry.Points, "err", err)
			return nil, err
		}
		e.logger.Info("points awarded", "user_id", userID, "points", entry.Points, "reason", entry.Reason)
	}

	if rec == nil {
		return nil, repository.ErrNotFound
	}
	return &rec.UserGamification, nil
}

// EnsureProfile returns the stored profile, creating the canonical seed on first access.
func (e *Engine) EnsureProfile(ctx context.Context, userID string) (*models.UserGamification, error) {
	return e.mutate(ctx, userID, "", func(*change) error { return repository.ErrNoChange })
}

func (e *Engine) AwardPoints(ctx context.Context, userID string, amount int, reason string) (*models.UserGamification, error) {
	if amount < 0 {
		return nil, &models.ValidationError{Fields: []string{"amount"}}
	}
	return e.mutate(ctx, userID, "", func(c *change) error {
		c.addPoints(amount, reason)
		return nil
	})
}

func (e *Engine) AwardBadge(ctx context.Context, userID, badgeID string) (*models.UserGamification, error) {
	return e.mutate(ctx, userID, "", func(c *change) error {
		if !c.awardBadge(badgeID) {
			return repository.ErrNoChange
		}
		e.logger.Info("badge awarded", "user_id", userID, "badge_id", badgeID)
		return nil
	})
}

func (e *Engine) UpdateStreak(ctx context.Context, userID string) (*models.UserGamification, error) {
	return e.updateStreak(ctx, userID, "")
}

func (e *Engine) updateStreak(ctx context.Context, userID, event string) (*models.UserGamification, error) {
	return e.mutate(ctx, userID, event, func(c *change) error {
		today := c.now.In(e.loc)
		switch {
		case c.rec.LastActivityDate == nil:
			c.rec.Streak = 1
		case sameDay(c.rec.LastActivityDate.In(e.loc), today):
			return repository.ErrNoChange
		case sameDay(c.rec.LastActivityDate.In(e.loc).AddDate(0, 0, 1), today):
			c.rec.Streak++
		default:
			c.rec.Streak = 1
		}
		now := c.now
		c.rec.LastActivityDate = &now
		c.awardReached(catalog.MetricStreak, c.rec.Streak)
		c.trackMetric(catalog.MetricStreak, c.rec.Streak)
		return nil
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (e *Engine) UpdateAchievementProgress(ctx context.Context, userID, achievementID string, progress int) (*models.UserGamification, error) {
	return e.mutate(ctx, userID, "", func(c *change) error {
		if !c.setProgress(achievementID, progress) {
			return repository.ErrNoChange
		}
		return nil
	})
}

func (e *Engine) IncrementIssueCount(ctx context.Context, userID string) (*models.UserGamification, error) {
	return e.incrementIssueCount(ctx, userID, "")
}

func (e *Engine) incrementIssueCount(ctx context.Context, userID, event string) (*models.UserGamification, error) {
	return e.mutate(ctx, userID, event, func(c *change) error {
		c.rec.TotalIssuesReported++
		c.awardReached(catalog.MetricIssuesReported, c.rec.TotalIssuesReported)
		c.trackMetric(catalog.MetricIssuesReported, c.rec.TotalIssuesReported)
		return nil
	})
}

// HandleIssueReported runs the reward chain for a new issue: count, points, streak.
// Every step is keyed by the issue id, so redelivery of the same issue is harmless.
func (e *Engine) HandleIssueReported(ctx context.Context, userID, issueID string) (*models.UserGamification, error) {
	if _, err := e.incrementIssueCount(ctx, userID, "issue:"+issueID+":count"); err != nil {
		return nil, fmt.Errorf("increment issue count: %w", err)
	}

	reward := e.catalog.Catalog().Rewards.IssueReported
	if _, err := e.mutate(ctx, userID, "issue:"+issueID+":points", func(c *change) error {
		c.addPoints(reward.Points, reward.Reason)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("award report points: %w", err)
	}

	g, err := e.updateStreak(ctx, userID, "issue:"+issueID+":streak")
	if err != nil {
		return nil, fmt.Errorf("update streak: %w", err)
	}
	return g, nil
}

// HandleIssueResolved credits the reporter once per resolved issue.
func (e *Engine) HandleIssueResolved(ctx context.Context, userID, issueID string) (*models.UserGamification, error) {
	return e.mutate(ctx, userID, "issue:"+issueID+":resolved", func(c *change) error {
		c.rec.TotalIssuesResolved++
		c.awardReached(catalog.MetricIssuesResolved, c.rec.TotalIssuesResolved)
		c.trackMetric(catalog.MetricIssuesResolved, c.rec.TotalIssuesResolved)
		return nil
	})
}

// Leaderboard ranks profiles by points. Ties keep store scan order.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		return []models.LeaderboardEntry{}, nil
	}
	entries, err := e.store.ScanPrefix(ctx, profilePrefix)
	if err != nil {
		return nil, err
	}

	out := make([]models.LeaderboardEntry, 0, len(entries))
	for _, en := range entries {
		r, err := decode[record](en)
		if err != nil {
			return nil, err
		}
		out = append(out, models.LeaderboardEntry{
			UserID: r.UserID,
			Points: r.Points,
			Level:  models.LevelFor(r.Points),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// History returns the points-log of a user, newest first. Log keys sort by
// award time, so the scan order is reversed.
func (e *Engine) History(ctx context.Context, userID string) ([]models.PointsLogEntry, error) {
	entries, err := e.store.ScanPrefix(ctx, pointsLogPrefix+userID+":")
	if err != nil {
		return nil, err
	}
	out := make([]models.PointsLogEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		p, err := decode[models.PointsLogEntry](entries[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
