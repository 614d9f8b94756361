package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/campusfix/internal/gamification"
	"github.com/garnizeh/campusfix/internal/issues"
	"github.com/garnizeh/campusfix/internal/rewards"
	"github.com/garnizeh/campusfix/pkg/models"
	"github.com/garnizeh/campusfix/pkg/repository"
)

type IssuesHandler struct {
	ledger  repository.IssueLedger
	users   repository.UserDirectory
	rewards rewards.Dispatcher
	catalog gamification.CatalogSource
}

// NewIssuesHandler builds the issue endpoints. cat supplies the report reward quoted
// back to the reporter and may be nil.
func NewIssuesHandler(l repository.IssueLedger, ud repository.UserDirectory, d rewards.Dispatcher, cat gamification.CatalogSource) *IssuesHandler {
	return &IssuesHandler{ledger: l, users: ud, rewards: d, catalog: cat}
}

func (h *IssuesHandler) reportedMessage() string {
	const msg = "Issue reported successfully!"
	if h.catalog == nil {
		return msg
	}
	if pts := h.catalog.Catalog().Rewards.IssueReported.Points; pts > 0 {
		return fmt.Sprintf("%s You earned %d points.", msg, pts)
	}
	return msg
}

type issueResponse struct {
	Issue   *models.Issue `json:"issue"`
	Message string        `json:"message,omitempty"`
}

type issuesResponse struct {
	Issues []models.Issue `json:"issues"`
}

func issueError(w http.ResponseWriter, r *http.Request, err error, what string) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, "Issue not found", http.StatusNotFound)
		return
	}
	respondError(w, r, err, what)
}

func (h *IssuesHandler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(w, r)
	if !ok {
		return
	}

	var draft models.IssueDraft
	if !decodeJSON(w, r, &draft) {
		return
	}

	reporter, err := h.users.GetProfile(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, "User profile not found", http.StatusNotFound)
			return
		}
		respondError(w, r, err, "fetch profile")
		return
	}

	iss, err := h.ledger.Create(ctx, draft, *reporter)
	if err != nil {
		respondError(w, r, err, "create issue")
		return
	}

	msg := h.reportedMessage()
	if err := h.rewards.IssueReported(ctx, iss); err != nil {
		// The issue is stored; the reward is retried by the job queue or lost for inline delivery.
		logger.WarnContext(ctx, "issue reward failed", slog.String("issue_id", iss.ID), slog.Any("err", err))
		msg = "Issue reported successfully!"
	}

	writeJSON(w, issueResponse{Issue: iss, Message: msg}, http.StatusCreated)
}

// ListIssues returns the caller's own issues for students and all issues for staff.
func (h *IssuesHandler) ListIssues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	f := repository.IssueFilter{
		Status:     models.IssueStatus(q.Get("status")),
		Department: q.Get("department"),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, "Invalid status filter", http.StatusBadRequest)
		return
	}

	var (
		list []models.Issue
		err  error
	)
	if id.IsStaff() {
		list, err = h.ledger.ListAll(ctx, f)
	} else {
		list, err = h.ledger.ListByReporter(ctx, id.UserID)
		list = filterIssues(list, f)
	}
	if err != nil {
		respondError(w, r, err, "fetch issues")
		return
	}
	if list == nil {
		list = []models.Issue{}
	}

	writeJSON(w, issuesResponse{Issues: list}, http.StatusOK)
}

func filterIssues(list []models.Issue, f repository.IssueFilter) []models.Issue {
	out := list[:0:0]
	for _, iss := range list {
		if f.Status != "" && iss.Status != f.Status {
			continue
		}
		if f.Department != "" && iss.AssignedDepartment != f.Department {
			continue
		}
		out = append(out, iss)
	}
	return out
}

func (h *IssuesHandler) GetIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := caller(w, r)
	if !ok {
		return
	}

	iss, err := h.ledger.Get(ctx, mux.Vars(r)["id"])
	if err != nil {
		issueError(w, r, err, "fetch issue")
		return
	}
	if err := issues.Authorize(id, iss); err != nil {
		respondError(w, r, err, "fetch issue")
		return
	}

	writeJSON(w, issueResponse{Issue: iss}, http.StatusOK)
}

func (h *IssuesHandler) UpdateIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var upd models.IssueUpdate
	if !decodeJSON(w, r, &upd) {
		return
	}

	iss, err := h.ledger.Update(ctx, mux.Vars(r)["id"], upd)
	if err != nil {
		issueError(w, r, err, "update issue")
		return
	}

	if upd.Status != nil && *upd.Status == models.StatusResolved {
		if err := h.rewards.IssueResolved(ctx, iss); err != nil {
			logger.WarnContext(ctx, "resolve reward failed", slog.String("issue_id", iss.ID), slog.Any("err", err))
		}
	}

	writeJSON(w, issueResponse{Issue: iss, Message: "Issue updated successfully"}, http.StatusOK)
}

func (h *IssuesHandler) UpvoteIssue(w http.ResponseWriter, r *http.Request) {
	iss, err := h.ledger.Upvote(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		issueError(w, r, err, "upvote issue")
		return
	}
	writeJSON(w, issueResponse{Issue: iss, Message: "Issue upvoted"}, http.StatusOK)
}

func (h *IssuesHandler) ReopenIssue(w http.ResponseWriter, r *http.Request) {
	iss, err := h.ledger.Reopen(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		issueError(w, r, err, "reopen issue")
		return
	}
	writeJSON(w, issueResponse{Issue: iss, Message: "Issue reopened"}, http.StatusOK)
}

func (h *IssuesHandler) DeleteIssue(w http.ResponseWriter, r *http.Request) {
	ok, err := h.ledger.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err, "delete issue")
		return
	}
	if !ok {
		writeError(w, "Issue not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"message": "Issue deleted"}, http.StatusOK)
}
