package session

import "github.com/voxhire/voxhire/internal/model"

// EventType identifies what happened in a running interview.
type EventType string

const (
	EventStateChanged      EventType = "state_changed"
	EventPromptStarted     EventType = "prompt_started"
	EventPromptComplete    EventType = "prompt_complete"
	EventTranscriptUpdated EventType = "transcript_updated"
	EventScoreReady        EventType = "score_ready"
	EventQuestionAdded     EventType = "question_added"
	EventCompleted         EventType = "completed"
)

// Event is a notification emitted by a Flow as the interview progresses.
// Fields beyond Type and State are populated only where they apply.
type Event struct {
	Type           EventType            `json:"type"`
	State          State                `json:"state"`
	QuestionIndex  int                  `json:"question_index"`
	Question       *model.Question      `json:"question,omitempty"`
	Transcript     string               `json:"transcript,omitempty"`
	Score          *model.Score         `json:"score,omitempty"`
	OverallScore   float64              `json:"overall_score,omitempty"`
	Recommendation model.Recommendation `json:"recommendation,omitempty"`
}

// Sink receives flow events. It is invoked synchronously while the flow's
// lock is held, so implementations must return quickly and must not call
// back into the Flow.
type Sink func(Event)
