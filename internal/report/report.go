// Package report turns a finished interview into the summary shown to
// the recruiter: per-category averages, chart projections, and
// per-question breakdowns.
package report

import (
	"time"

	"github.com/voxhire/voxhire/internal/model"
)

// Report is the assembled interview summary.
type Report struct {
	InterviewID    string               `json:"interview_id"`
	CandidateName  string               `json:"candidate_name"`
	GeneratedAt    time.Time            `json:"generated_at"`
	Duration       time.Duration        `json:"duration"`
	Answered       int                  `json:"answered"`
	OverallScore   float64              `json:"overall_score"`
	Recommendation model.Recommendation `json:"recommendation"`
	Categories     []CategoryStat       `json:"categories"`
	Questions      []QuestionDetail     `json:"questions"`
}

// CategoryStat aggregates the scores of one question category.
// RadarValue is the average projected onto a 0-100 axis for radar charts.
type CategoryStat struct {
	Category   model.Category `json:"category"`
	Label      string         `json:"label"`
	Count      int            `json:"count"`
	Average    float64        `json:"average"`
	RadarValue float64        `json:"radar_value"`
}

// QuestionDetail pairs one question with its response and score.
type QuestionDetail struct {
	Index        int              `json:"index"`
	Text         string           `json:"text"`
	Category     model.Category   `json:"category"`
	Difficulty   model.Difficulty `json:"difficulty"`
	Transcript   string           `json:"transcript"`
	Duration     time.Duration    `json:"duration"`
	Score        float64          `json:"score"`
	Feedback     string           `json:"feedback"`
	Strengths    []string         `json:"strengths"`
	Improvements []string         `json:"improvements"`
}

type categoryAcc struct {
	total float64
	count int
}

// Build assembles the report for an interview. Questions that were never
// answered (an abandoned interview leaves a tail of them) are omitted.
func Build(iv model.Interview) Report {
	responses := make(map[int64]model.Response, len(iv.Responses))
	for _, r := range iv.Responses {
		responses[r.QuestionID] = r
	}
	scores := make(map[int64]model.Score, len(iv.Scores))
	for _, s := range iv.Scores {
		scores[s.QuestionID] = s
	}

	acc := make(map[model.Category]*categoryAcc)
	var questions []QuestionDetail
	for i, q := range iv.Questions {
		s, ok := scores[q.ID]
		if !ok {
			continue
		}
		r := responses[q.ID]
		questions = append(questions, QuestionDetail{
			Index:        i,
			Text:         q.Text,
			Category:     q.Category,
			Difficulty:   q.Difficulty,
			Transcript:   r.Transcript,
			Duration:     r.Duration,
			Score:        s.Value,
			Feedback:     s.Feedback,
			Strengths:    s.Strengths,
			Improvements: s.Improvements,
		})

		a := acc[q.Category]
		if a == nil {
			a = &categoryAcc{}
			acc[q.Category] = a
		}
		a.total += s.Value
		a.count++
	}

	var stats []CategoryStat
	for _, c := range model.Categories {
		a, ok := acc[c]
		if !ok {
			continue
		}
		avg := model.Round1(a.total / float64(a.count))
		stats = append(stats, CategoryStat{
			Category:   c,
			Label:      c.Label(),
			Count:      a.count,
			Average:    avg,
			RadarValue: avg * 10,
		})
	}

	return Report{
		InterviewID:    iv.ID,
		CandidateName:  iv.CandidateName,
		GeneratedAt:    time.Now(),
		Duration:       iv.Duration(),
		Answered:       len(questions),
		OverallScore:   iv.OverallScore,
		Recommendation: iv.Recommendation,
		Categories:     stats,
		Questions:      questions,
	}
}
