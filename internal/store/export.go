package store

import (
	"time"

	"github.com/voxhire/voxhire/internal/model"
)

// ExportAll collects every stored interview into the export structure
// written by the export command.
func (s *Store) ExportAll() (model.InterviewExport, error) {
	export := model.InterviewExport{ExportedAt: time.Now()}

	summaries, err := s.ListInterviews()
	if err != nil {
		return export, err
	}

	for _, sum := range summaries {
		iv, err := s.GetInterview(sum.ID)
		if err != nil {
			return export, err
		}
		if iv == nil {
			continue
		}
		export.Results = append(export.Results, buildResult(*iv))
	}
	export.Count = len(export.Results)
	return export, nil
}

func buildResult(iv model.Interview) model.InterviewResult {
	responses := make(map[int64]model.Response, len(iv.Responses))
	for _, r := range iv.Responses {
		responses[r.QuestionID] = r
	}
	scores := make(map[int64]model.Score, len(iv.Scores))
	for _, sc := range iv.Scores {
		scores[sc.QuestionID] = sc
	}

	result := model.InterviewResult{
		ID:             iv.ID,
		CandidateName:  iv.CandidateName,
		Adaptive:       iv.Adaptive,
		StartedAt:      iv.StartedAt,
		EndedAt:        iv.EndedAt,
		OverallScore:   iv.OverallScore,
		Recommendation: iv.Recommendation,
	}
	for _, q := range iv.Questions {
		qr := model.QuestionResult{
			Text:       q.Text,
			Category:   q.Category,
			Difficulty: q.Difficulty,
		}
		if r, ok := responses[q.ID]; ok {
			qr.Transcript = r.Transcript
		}
		if sc, ok := scores[q.ID]; ok {
			qr.Score = sc.Value
			qr.Feedback = sc.Feedback
			qr.Strengths = sc.Strengths
			qr.Improvements = sc.Improvements
		}
		result.Questions = append(result.Questions, qr)
	}
	return result
}
