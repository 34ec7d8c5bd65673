package report

import (
	"testing"
	"time"

	"github.com/voxhire/voxhire/internal/model"
)

func testInterview() model.Interview {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	end := start.Add(9 * time.Minute)
	return model.Interview{
		ID:            "iv-1",
		CandidateName: "Alice Chen",
		StartedAt:     start,
		EndedAt:       &end,
		Questions: []model.Question{
			{ID: 1, Text: "Tell me about a conflict.", Category: model.CategoryBehavioral, Difficulty: model.DifficultyEasy},
			{ID: 2, Text: "Describe a hard bug.", Category: model.CategoryTechnical, Difficulty: model.DifficultyMedium},
			{ID: 3, Text: "How do you give feedback?", Category: model.CategoryBehavioral, Difficulty: model.DifficultyHard},
		},
		Responses: []model.Response{
			{QuestionID: 1, Transcript: "conflict answer", Duration: 40 * time.Second},
			{QuestionID: 2, Transcript: "bug answer", Duration: 55 * time.Second},
			{QuestionID: 3, Transcript: "feedback answer", Duration: 35 * time.Second},
		},
		Scores: []model.Score{
			{QuestionID: 1, Value: 8, Feedback: "good"},
			{QuestionID: 2, Value: 7, Feedback: "solid"},
			{QuestionID: 3, Value: 9, Feedback: "strong"},
		},
		OverallScore:   8.0,
		Recommendation: model.RecommendationRecommended,
	}
}

func TestBuildCategoryAverages(t *testing.T) {
	r := Build(testInterview())

	if r.Answered != 3 {
		t.Fatalf("Answered = %d, want 3", r.Answered)
	}
	if len(r.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(r.Categories))
	}

	// model.Categories order puts behavioral before technical.
	behavioral := r.Categories[0]
	if behavioral.Category != model.CategoryBehavioral {
		t.Fatalf("Categories[0] = %q, want behavioral", behavioral.Category)
	}
	if behavioral.Count != 2 || behavioral.Average != 8.5 {
		t.Errorf("behavioral count = %d avg = %v, want 2 and 8.5", behavioral.Count, behavioral.Average)
	}
	if behavioral.RadarValue != 85 {
		t.Errorf("behavioral radar = %v, want 85", behavioral.RadarValue)
	}

	technical := r.Categories[1]
	if technical.Count != 1 || technical.Average != 7 || technical.RadarValue != 70 {
		t.Errorf("technical = %+v, want count 1 avg 7 radar 70", technical)
	}
}

func TestBuildAverageRounding(t *testing.T) {
	iv := testInterview()
	iv.Scores[0].Value = 8
	iv.Scores[2].Value = 7 // behavioral mean 7.5
	iv.Scores[1].Value = 7.8

	r := Build(iv)
	if got := r.Categories[0].Average; got != 7.5 {
		t.Errorf("behavioral average = %v, want 7.5", got)
	}
	if got := r.Categories[1].Average; got != 7.8 {
		t.Errorf("technical average = %v, want 7.8", got)
	}
}

func TestBuildReportMetadata(t *testing.T) {
	r := Build(testInterview())

	if r.InterviewID != "iv-1" || r.CandidateName != "Alice Chen" {
		t.Errorf("identity fields = %q / %q", r.InterviewID, r.CandidateName)
	}
	if r.Duration != 9*time.Minute {
		t.Errorf("Duration = %v, want 9m", r.Duration)
	}
	if r.OverallScore != 8.0 || r.Recommendation != model.RecommendationRecommended {
		t.Errorf("overall = %v rec = %q", r.OverallScore, r.Recommendation)
	}
	if len(r.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(r.Questions))
	}
	q := r.Questions[1]
	if q.Text != "Describe a hard bug." || q.Transcript != "bug answer" || q.Score != 7 {
		t.Errorf("Questions[1] = %+v", q)
	}
}

func TestBuildSkipsUnanswered(t *testing.T) {
	iv := testInterview()
	// Abandoned before the third question was answered.
	iv.Responses = iv.Responses[:2]
	iv.Scores = iv.Scores[:2]
	iv.OverallScore = 0
	iv.Recommendation = ""

	r := Build(iv)
	if r.Answered != 2 {
		t.Fatalf("Answered = %d, want 2", r.Answered)
	}
	for _, q := range r.Questions {
		if q.Text == "How do you give feedback?" {
			t.Fatal("unanswered question included in report")
		}
	}
	if got := r.Categories[0].Count; got != 1 {
		t.Errorf("behavioral count = %d, want 1", got)
	}
}

func TestRecommendationBands(t *testing.T) {
	tests := []struct {
		overall float64
		want    model.Recommendation
	}{
		{9.2, model.RecommendationHighly},
		{8.5, model.RecommendationHighly},
		{8.4, model.RecommendationRecommended},
		{7.0, model.RecommendationRecommended},
		{6.9, model.RecommendationConsider},
		{5.5, model.RecommendationConsider},
		{5.4, model.RecommendationNot},
		{1.0, model.RecommendationNot},
	}
	for _, tt := range tests {
		if got := model.RecommendationFor(tt.overall); got != tt.want {
			t.Errorf("RecommendationFor(%v) = %q, want %q", tt.overall, got, tt.want)
		}
	}
}
