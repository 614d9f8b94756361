package predict_test

import (
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/garnizeh/campusfix/internal/predict"
	"github.com/garnizeh/campusfix/pkg/models"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type opt func(*models.Issue)

func status(s models.IssueStatus) opt { return func(i *models.Issue) { i.Status = s } }
func prio(p models.Priority) opt      { return func(i *models.Issue) { i.Priority = p } }

var seq int

func mk(room, building, cat string, opts ...opt) models.Issue {
	seq++
	iss := models.Issue{
		ID:       fmt.Sprintf("iss-%d", seq),
		Title:    cat + " problem",
		Room:     room,
		Building: building,
		Category: cat,
		Status:   models.StatusOpen,
		Priority: models.PriorityMedium,
	}
	for _, o := range opts {
		o(&iss)
	}
	return iss
}

var _ = Describe("Generate", func() {
	It("returns nothing for an empty history", func() {
		Expect(predict.Generate(nil, now, predict.RuleStrict)).To(BeEmpty())
	})

	It("flags a room with three issues as a recurring pattern", func() {
		issues := []models.Issue{
			mk("301", "A", "Equipment"),
			mk("301", "A", "Equipment"),
			mk("301", "A", "Equipment"),
		}
		preds := predict.Generate(issues, now, predict.RuleStrict)

		Expect(preds).To(HaveLen(1))
		p := preds[0]
		Expect(p.Type).To(Equal(models.PredictionRecurring))
		Expect(p.ID).To(Equal("pred-301-A-Equipment"))
		Expect(p.Title).To(Equal("Potential Equipment issue in 301"))
		Expect(p.Description).To(Equal("This location has had 3 issues, 3 related to Equipment. Proactive inspection recommended."))
		Expect(p.Confidence).To(Equal(90))
		Expect(p.Priority).To(Equal(models.PriorityMedium))
		Expect(p.BasedOnIssues).To(Equal(3))
		Expect(p.CreatedAt).To(Equal(now))
	})

	It("caps recurring confidence and raises priority from five issues", func() {
		var issues []models.Issue
		for i := 0; i < 5; i++ {
			cat := "Plumbing"
			if i%2 == 0 {
				cat = "HVAC"
			}
			issues = append(issues, mk("B12", "Library", cat))
		}
		preds := predict.Generate(issues, now, predict.RuleStrict)

		Expect(preds).To(HaveLen(1))
		Expect(preds[0].Category).To(Equal("HVAC"))
		Expect(preds[0].Confidence).To(Equal(95))
		Expect(preds[0].Priority).To(Equal(models.PriorityHigh))
	})

	It("breaks category ties by first appearance", func() {
		issues := []models.Issue{
			mk("1", "X", "Cleaning"),
			mk("1", "X", "Security"),
			mk("1", "X", "Security"),
			mk("1", "X", "Cleaning"),
		}
		preds := predict.Generate(issues, now, predict.RuleStrict)
		Expect(preds[0].Category).To(Equal("Cleaning"))
	})

	DescribeTable("follow-up rule",
		func(rule predict.FollowupRule, wantIDs int) {
			issues := []models.Issue{
				mk("1", "A", "Electrical"),
				mk("2", "A", "Equipment", status(models.StatusResolved)),
				mk("3", "A", "Plumbing", status(models.StatusResolved)),
				mk("4", "A", "Electrical", status(models.StatusResolved)),
			}
			preds := predict.Generate(issues, now, rule)

			Expect(preds).To(HaveLen(wantIDs))
			for _, p := range preds {
				Expect(p.Type).To(Equal(models.PredictionFollowup))
				Expect(p.Confidence).To(Equal(70))
				Expect(p.Priority).To(Equal(models.PriorityLow))
				Expect(p.BasedOnIssues).To(Equal(1))
				Expect(p.Description).To(HaveSuffix(" issues often recur. Schedule preventive maintenance check."))
			}
		},
		Entry("strict ignores unresolved electrical issues", predict.RuleStrict, 2),
		Entry("legacy keeps every electrical issue", predict.RuleLegacy, 3),
	)

	It("emits at most three follow-ups", func() {
		var issues []models.Issue
		for i := 0; i < 5; i++ {
			issues = append(issues, mk(fmt.Sprint(i), "A", "Equipment", status(models.StatusResolved)))
		}
		preds := predict.Generate(issues, now, predict.RuleStrict)

		Expect(preds).To(HaveLen(3))
		Expect(preds[0].ID).To(Equal("pred-followup-" + issues[0].ID))
		Expect(preds[0].Title).To(Equal("Follow-up inspection: Equipment problem"))
	})

	It("detects a trending category among urgent issues", func() {
		issues := []models.Issue{
			mk("1", "A", "Security", prio(models.PriorityCritical)),
			mk("2", "B", "Security", prio(models.PriorityHigh)),
			mk("3", "C", "Cleaning", prio(models.PriorityHigh)),
		}
		preds := predict.Generate(issues, now, predict.RuleStrict)

		Expect(preds).To(HaveLen(1))
		Expect(preds[0]).To(Equal(models.Prediction{
			ID:            "pred-trending-Security",
			Type:          models.PredictionTrending,
			Title:         "Security issues trending upward",
			Description:   "Campus-wide increase in Security issues detected. 2 high-priority cases recently. Consider department-wide inspection.",
			Room:          "Multiple Locations",
			Building:      "Campus-wide",
			Category:      "Security",
			Confidence:    85,
			Priority:      models.PriorityHigh,
			BasedOnIssues: 2,
			CreatedAt:     now,
		}))
	})

	It("orders high priority first, then by confidence, and keeps five", func() {
		var issues []models.Issue
		// two recurring rooms with 3 issues (medium, 90)
		for _, room := range []string{"R1", "R2"} {
			for i := 0; i < 3; i++ {
				issues = append(issues, mk(room, "A", "Furniture"))
			}
		}
		// three follow-ups (low, 70)
		for i := 0; i < 3; i++ {
			issues = append(issues, mk(fmt.Sprintf("F%d", i), "B", "Equipment", status(models.StatusResolved)))
		}
		// trending (high, 85)
		issues = append(issues,
			mk("T1", "C", "Security", prio(models.PriorityHigh)),
			mk("T2", "C", "Security", prio(models.PriorityHigh)),
		)

		preds := predict.Generate(issues, now, predict.RuleStrict)

		Expect(preds).To(HaveLen(predict.MaxPredictions))
		Expect(preds[0].Type).To(Equal(models.PredictionTrending))
		Expect(preds[1].ID).To(Equal("pred-R1-A-Furniture"))
		Expect(preds[2].ID).To(Equal("pred-R2-A-Furniture"))
		Expect(preds[3].Type).To(Equal(models.PredictionFollowup))
		Expect(preds[4].Type).To(Equal(models.PredictionFollowup))
	})
})

var _ = Describe("ParseRule", func() {
	DescribeTable("maps configuration values",
		func(in string, want predict.FollowupRule, wantErr bool) {
			got, err := predict.ParseRule(in)
			if wantErr {
				Expect(err).To(HaveOccurred())
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("empty defaults to strict", "", predict.RuleStrict, false),
		Entry("strict", "strict", predict.RuleStrict, false),
		Entry("legacy is case insensitive", " Legacy ", predict.RuleLegacy, false),
		Entry("unknown", "fuzzy", predict.FollowupRule(""), true),
	)
})
