package analytics_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/garnizeh/campusfix/internal/analytics"
	"github.com/garnizeh/campusfix/pkg/models"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func issue(id string, status models.IssueStatus, prio models.Priority, cat string, createdAgo, updatedAgo time.Duration) models.Issue {
	return models.Issue{
		ID:        id,
		Status:    status,
		Priority:  prio,
		Category:  cat,
		CreatedAt: now.Add(-createdAgo),
		UpdatedAt: now.Add(-updatedAgo),
	}
}

var _ = Describe("Compute", func() {
	It("returns zeroed statistics for an empty issue set", func() {
		s := analytics.Compute(nil, now)

		Expect(s.TotalIssues).To(BeZero())
		Expect(s.RecentIssues).To(BeEmpty())
		Expect(s.RecentIssues).NotTo(BeNil())
		Expect(s.AvgResolutionTime).To(Equal("0.0"))
		Expect(s.Trends.Pending).To(Equal(models.Trend{Value: "0", IsPositive: false, Comparison: "0 today vs 0 yesterday"}))
		Expect(s.Trends.InProgress.Value).To(Equal("0"))
		Expect(s.Trends.Resolved.Comparison).To(Equal("0 this week vs 0 last week"))
		Expect(s.Trends.AvgResolution).To(Equal(models.Trend{Value: "0", IsPositive: true, Comparison: "Average: 0.0 hours"}))
	})

	It("counts statuses, priorities and categories", func() {
		issues := []models.Issue{
			issue("1", models.StatusOpen, models.PriorityHigh, "Electrical", time.Hour, time.Hour),
			issue("2", models.StatusAssigned, models.PriorityCritical, "Electrical", 2*time.Hour, time.Hour),
			issue("3", models.StatusInProgress, models.PriorityLow, "Plumbing", 3*time.Hour, time.Hour),
			issue("4", models.StatusResolved, models.PriorityMedium, "Equipment", 5*time.Hour, time.Hour),
			issue("5", models.StatusClosed, models.PriorityMedium, "Equipment", 9*time.Hour, time.Hour),
		}
		s := analytics.Compute(issues, now)

		Expect(s.TotalIssues).To(Equal(5))
		Expect([]int{s.OpenIssues, s.AssignedIssues, s.InProgressIssues, s.ResolvedIssues, s.ClosedIssues}).
			To(Equal([]int{1, 1, 1, 1, 1}))
		Expect(s.HighPriorityIssues).To(Equal(2))
		Expect(s.CriticalIssues).To(Equal(1))
		Expect(s.CategoryBreakdown).To(Equal(map[string]int{"Electrical": 2, "Plumbing": 1, "Equipment": 2}))
		Expect(s.PriorityBreakdown).To(HaveKeyWithValue("medium", 2))
		Expect(s.StatusBreakdown).To(HaveKeyWithValue("in-progress", 1))
		// one resolved issue that took four hours
		Expect(s.AvgResolutionTime).To(Equal("4.0"))
		Expect(s.Trends.AvgResolution.IsPositive).To(BeFalse())
		Expect(s.Trends.AvgResolution.Comparison).To(Equal("Average: 4.0 hours"))
	})

	It("keeps the ten newest issues as the recent sample", func() {
		var issues []models.Issue
		for i := 0; i < 12; i++ {
			issues = append(issues, issue(fmt.Sprint(i), models.StatusOpen, models.PriorityLow, "Other", time.Duration(i)*time.Hour, 0))
		}
		// input order must not matter
		issues[0], issues[11] = issues[11], issues[0]

		s := analytics.Compute(issues, now)
		Expect(s.RecentIssues).To(HaveLen(10))
		Expect(s.RecentIssues[0].ID).To(Equal("0"))
		Expect(s.RecentIssues[9].ID).To(Equal("9"))
	})

	DescribeTable("pending trend",
		func(today, yesterday int, value string, positive bool) {
			var issues []models.Issue
			for i := 0; i < today; i++ {
				issues = append(issues, issue("t", models.StatusOpen, models.PriorityLow, "Other", time.Duration(i+1)*time.Hour, 0))
			}
			for i := 0; i < yesterday; i++ {
				issues = append(issues, issue("y", models.StatusOpen, models.PriorityLow, "Other", 25*time.Hour+time.Duration(i)*time.Hour, 0))
			}
			s := analytics.Compute(issues, now)
			Expect(s.Trends.Pending.Value).To(Equal(value))
			Expect(s.Trends.Pending.IsPositive).To(Equal(positive))
			Expect(s.Trends.Pending.Comparison).To(Equal(fmt.Sprintf("%d today vs %d yesterday", today, yesterday)))
		},
		Entry("nothing yesterday, three today", 3, 0, "100", false),
		Entry("fewer today", 2, 4, "-50.0", true),
		Entry("more today", 3, 2, "50.0", false),
		Entry("no activity", 0, 0, "0", false),
	)

	It("compares resolutions week over week", func() {
		issues := []models.Issue{
			issue("a", models.StatusResolved, models.PriorityLow, "Other", 26*time.Hour, 24*time.Hour),
			issue("b", models.StatusResolved, models.PriorityLow, "Other", 50*time.Hour, 48*time.Hour),
			issue("c", models.StatusResolved, models.PriorityLow, "Other", 242*time.Hour, 240*time.Hour),
			issue("d", models.StatusResolved, models.PriorityLow, "Other", 30*24*time.Hour, 29*24*time.Hour),
		}
		s := analytics.Compute(issues, now)

		Expect(s.Trends.Resolved.Value).To(Equal("100.0"))
		Expect(s.Trends.Resolved.IsPositive).To(BeTrue())
		Expect(s.Trends.Resolved.Comparison).To(Equal("2 this week vs 1 last week"))
		// (2 + 2 + 2 + 24) / 4
		Expect(s.AvgResolutionTime).To(Equal("7.5"))
	})

	It("relates recent in-progress starts to the in-progress backlog", func() {
		issues := []models.Issue{
			issue("a", models.StatusInProgress, models.PriorityLow, "Other", 72*time.Hour, 2*time.Hour),
			issue("b", models.StatusInProgress, models.PriorityLow, "Other", 72*time.Hour, 48*time.Hour),
		}
		s := analytics.Compute(issues, now)

		Expect(s.Trends.InProgress).To(Equal(models.Trend{
			Value:      "-50.0",
			IsPositive: false,
			Comparison: "1 started in last 24h",
		}))
	})
})
