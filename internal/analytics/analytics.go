// Package analytics derives dashboard statistics from the issue set.
package analytics

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/garnizeh/campusfix/pkg/models"
)

const (
	day  = 24 * time.Hour
	week = 7 * day

	recentSample = 10
	// average resolution below this many hours is reported as healthy
	healthyResolutionHours = 3
)

// Compute aggregates the issues as seen at now. The input is not modified.
func Compute(issues []models.Issue, now time.Time) models.AnalyticsSnapshot {
	sorted := make([]models.Issue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	s := models.AnalyticsSnapshot{
		TotalIssues:       len(sorted),
		CategoryBreakdown: map[string]int{},
		PriorityBreakdown: map[string]int{},
		StatusBreakdown:   map[string]int{},
		RecentIssues:      sorted[:min(recentSample, len(sorted))],
	}

	var (
		createdLast24h, createdPrev24h     int
		startedLast24h                     int
		resolvedThisWeek, resolvedLastWeek int
		resolvedCount                      int
		resolutionHours                    float64
	)
	for _, iss := range sorted {
		s.CategoryBreakdown[iss.Category]++
		s.PriorityBreakdown[string(iss.Priority)]++
		s.StatusBreakdown[string(iss.Status)]++

		switch iss.Status {
		case models.StatusOpen:
			s.OpenIssues++
		case models.StatusAssigned:
			s.AssignedIssues++
		case models.StatusInProgress:
			s.InProgressIssues++
			if within(iss.UpdatedAt, now.Add(-day), now) {
				startedLast24h++
			}
		case models.StatusResolved:
			s.ResolvedIssues++
			resolvedCount++
			resolutionHours += iss.UpdatedAt.Sub(iss.CreatedAt).Hours()
			switch {
			case within(iss.UpdatedAt, now.Add(-week), now):
				resolvedThisWeek++
			case earlier(iss.UpdatedAt, now.Add(-2*week), now.Add(-week)):
				resolvedLastWeek++
			}
		case models.StatusClosed:
			s.ClosedIssues++
		}

		switch iss.Priority {
		case models.PriorityCritical:
			s.CriticalIssues++
			s.HighPriorityIssues++
		case models.PriorityHigh:
			s.HighPriorityIssues++
		}

		switch {
		case within(iss.CreatedAt, now.Add(-day), now):
			createdLast24h++
		case earlier(iss.CreatedAt, now.Add(-2*day), now.Add(-day)):
			createdPrev24h++
		}
	}

	avg := 0.0
	if resolvedCount > 0 {
		avg = resolutionHours / float64(resolvedCount)
	}
	s.AvgResolutionTime = fixed1(avg)

	pending := percentChange(createdLast24h, createdPrev24h)
	inProgress := "0"
	if s.InProgressIssues > 0 && startedLast24h > 0 {
		inProgress = fixed1(float64(startedLast24h)/float64(s.InProgressIssues)*100 - 100)
	}
	resolved := percentChange(resolvedThisWeek, resolvedLastWeek)
	avgValue := "0"
	if avg > 0 {
		avgValue = fixed1(avg)
	}

	s.Trends = models.Trends{
		Pending: models.Trend{
			Value:      pending,
			IsPositive: parse(pending) < 0,
			Comparison: fmt.Sprintf("%d today vs %d yesterday", createdLast24h, createdPrev24h),
		},
		InProgress: models.Trend{
			Value:      inProgress,
			IsPositive: parse(inProgress) > 0,
			Comparison: fmt.Sprintf("%d started in last 24h", startedLast24h),
		},
		Resolved: models.Trend{
			Value:      resolved,
			IsPositive: parse(resolved) > 0,
			Comparison: fmt.Sprintf("%d this week vs %d last week", resolvedThisWeek, resolvedLastWeek),
		},
		AvgResolution: models.Trend{
			Value:      avgValue,
			IsPositive: avg < healthyResolutionHours,
			Comparison: "Average: " + fixed1(avg) + " hours",
		},
	}
	return s
}

// within reports whether t lies in the closed interval [from, to].
func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

// earlier reports whether t lies in the half-open interval [from, to).
func earlier(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// percentChange renders (cur-prev)/prev as a percentage. With no previous
// value it is "100" when cur is positive and "0" otherwise.
func percentChange(cur, prev int) string {
	if prev > 0 {
		return fixed1(float64(cur-prev) / float64(prev) * 100)
	}
	if cur > 0 {
		return "100"
	}
	return "0"
}

func fixed1(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func parse(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
