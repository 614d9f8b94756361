package models

import (
	"slices"
	"time"
)

// Domain models persisted as JSON values in the key-value store.

type IssueStatus string

const (
	StatusOpen       IssueStatus = "open"
	StatusAssigned   IssueStatus = "assigned"
	StatusInProgress IssueStatus = "in-progress"
	StatusResolved   IssueStatus = "resolved"
	StatusClosed     IssueStatus = "closed"
)

// Valid reports whether s is one of the lifecycle statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusAssigned, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Sentiment string

const (
	SentimentLow    Sentiment = "low"
	SentimentMedium Sentiment = "medium"
	SentimentHigh   Sentiment = "high"
)

func (s Sentiment) Valid() bool {
	switch s {
	case SentimentLow, SentimentMedium, SentimentHigh:
		return true
	}
	return false
}

// Categories is the fixed vocabulary an issue is filed under. Prediction passes
// match on these exact names.
var Categories = []string{
	"Equipment",
	"Facilities",
	"Furniture",
	"Electrical",
	"Plumbing",
	"HVAC",
	"Cleaning",
	"Security",
	"Network/IT",
	"Other",
}

func ValidCategory(c string) bool {
	return slices.Contains(Categories, c)
}

type Issue struct {
	ID                 string      `json:"id"`
	ReporterID         string      `json:"reporterId"`
	ReporterName       string      `json:"reporterName"`
	ReporterEmail      string      `json:"reporterEmail"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	Category           string      `json:"category"`
	Location           string      `json:"location"`
	Room               string      `json:"room"`
	Building           string      `json:"building"`
	Floor              string      `json:"floor,omitempty"`
	Status             IssueStatus `json:"status"`
	Priority           Priority    `json:"priority"`
	Sentiment          Sentiment   `json:"sentiment"`
	ImageRef           string      `json:"imageRef,omitempty"`
	AssignedTo         string      `json:"assignedTo,omitempty"`
	AssignedDepartment string      `json:"assignedDepartment,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
	ResolvedAt         *time.Time  `json:"resolvedAt,omitempty"`
	ResolutionNotes    string      `json:"resolutionNotes,omitempty"`
	Upvotes            int         `json:"upvotes"`
	Tags               []string    `json:"tags"`
}

// IssueDraft is the reporter-supplied part of a new issue.
type IssueDraft struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description" validate:"required"`
	Category    string    `json:"category" validate:"required,category"`
	Location    string    `json:"location"`
	Room        string    `json:"room" validate:"required"`
	Building    string    `json:"building" validate:"required"`
	Floor       string    `json:"floor,omitempty"`
	Priority    Priority  `json:"priority,omitempty"`
	Sentiment   Sentiment `json:"sentiment,omitempty"`
	ImageRef    string    `json:"imageRef,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// IssueUpdate lists the fields staff may change. Nil fields are left untouched.
type IssueUpdate struct {
	Status             *IssueStatus `json:"status,omitempty"`
	Priority           *Priority    `json:"priority,omitempty"`
	AssignedTo         *string      `json:"assignedTo,omitempty"`
	AssignedDepartment *string      `json:"assignedDepartment,omitempty"`
	ResolutionNotes    *string      `json:"resolutionNotes,omitempty"`
	Tags               []string     `json:"tags,omitempty"`
}

type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleStaff || r == RoleAdmin
}

// Identity is the authenticated caller as established by the auth layer.
type Identity struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// IsStaff is true for staff and admin callers.
func (i Identity) IsStaff() bool {
	return i.Role == RoleStaff || i.Role == RoleAdmin
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type UserProfile struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       Role      `json:"role"`
	Department string    `json:"department,omitempty"`
	StudentID  string    `json:"studentId,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Avatar     string    `json:"avatar,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Badge struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	EarnedAt    time.Time `json:"earnedAt"`
}

type Achievement struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Progress    int        `json:"progress"`
	Target      int        `json:"target"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type UserGamification struct {
	UserID              string        `json:"userId"`
	Points              int           `json:"points"`
	Level               int           `json:"level"`
	Badges              []Badge       `json:"badges"`
	Achievements        []Achievement `json:"achievements"`
	Streak              int           `json:"streak"`
	LastActivityDate    *time.Time    `json:"lastActivityDate,omitempty"`
	TotalIssuesReported int           `json:"totalIssuesReported"`
	TotalIssuesResolved int           `json:"totalIssuesResolved"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// HasBadge reports whether the badge id is already held.
func (g *UserGamification) HasBadge(id string) bool {
	for _, b := range g.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}

// LevelFor returns the level reached with the given points total.
func LevelFor(points int) int {
	if points < 0 {
		points = 0
	}
	return points/100 + 1
}

// PointsLogEntry is an immutable audit record of a points award.
type PointsLogEntry struct {
	UserID    string    `json:"userId"`
	Points    int       `json:"points"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Points int    `json:"points"`
	Level  int    `json:"level"`
}

type PredictionType string

const (
	PredictionRecurring PredictionType = "recurring_pattern"
	PredictionFollowup  PredictionType = "maintenance_followup"
	PredictionTrending  PredictionType = "trending_category"
)

type Prediction struct {
	ID            string         `json:"id"`
	Type          PredictionType `json:"type"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Room          string         `json:"room"`
	Building      string         `json:"building"`
	Category      string         `json:"category"`
	Confidence    int            `json:"confidence"`
	Priority      Priority       `json:"priority"`
	BasedOnIssues int            `json:"basedOnIssues"`
	CreatedAt     time.Time      `json:"createdAt"`
}

type Trend struct {
	Value      string `json:"value"`
	IsPositive bool   `json:"isPositive"`
	Comparison string `json:"comparison"`
}

type Trends struct {
	Pending       Trend `json:"pending"`
	InProgress    Trend `json:"inProgress"`
	Resolved      Trend `json:"resolved"`
	AvgResolution Trend `json:"avgResolution"`
}

type AnalyticsSnapshot struct {
	TotalIssues        int            `json:"totalIssues"`
	OpenIssues         int            `json:"openIssues"`
	AssignedIssues     int            `json:"assignedIssues"`
	InProgressIssues   int            `json:"inProgressIssues"`
	ResolvedIssues     int            `json:"resolvedIssues"`
	ClosedIssues       int            `json:"closedIssues"`
	HighPriorityIssues int            `json:"highPriorityIssues"`
	CriticalIssues     int            `json:"criticalIssues"`
	AvgResolutionTime  string         `json:"avgResolutionTime"`
	CategoryBreakdown  map[string]int `json:"categoryBreakdown"`
	PriorityBreakdown  map[string]int `json:"priorityBreakdown"`
	StatusBreakdown    map[string]int `json:"statusBreakdown"`
	RecentIssues       []Issue        `json:"recentIssues"`
	Trends             Trends         `json:"trends"`
}
