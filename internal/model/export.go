package model

import "time"

// InterviewExport is the top-level JSON structure for results export.
type InterviewExport struct {
	ExportedAt time.Time         `json:"exported_at"`
	Count      int               `json:"count"`
	Results    []InterviewResult `json:"results"`
}

// InterviewResult holds one candidate's interview data for export.
type InterviewResult struct {
	ID             string           `json:"id"`
	CandidateName  string           `json:"candidate_name"`
	Adaptive       bool             `json:"adaptive"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
	OverallScore   float64          `json:"overall_score"`
	Recommendation Recommendation   `json:"recommendation"`
	Questions      []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Text         string     `json:"text"`
	Category     Category   `json:"category"`
	Difficulty   Difficulty `json:"difficulty"`
	Transcript   string     `json:"transcript,omitempty"`
	Score        float64    `json:"score,omitempty"`
	Feedback     string     `json:"feedback,omitempty"`
	Strengths    []string   `json:"strengths,omitempty"`
	Improvements []string   `json:"improvements,omitempty"`
}
