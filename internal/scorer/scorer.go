// Package scorer evaluates a candidate's spoken response to an interview
// question. Two implementations are provided: TemplateScorer produces
// deterministic-under-seed heuristic scores without external services,
// and LLMScorer delegates the evaluation to an OpenAI-compatible model.
package scorer

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/voxhire/voxhire/internal/model"
)

// Scorer evaluates one transcript against the question it answers.
// Implementations must return a Score whose Value lies in
// [model.ScoreMin, model.ScoreMax] and whose QuestionID matches q.ID.
type Scorer interface {
	Score(ctx context.Context, q model.Question, transcript string) (model.Score, error)
}

// Feedback bands keyed on transcript length, in words.
const (
	FeedbackBrief    = "Your response was brief. Consider providing more detailed examples and explanations."
	FeedbackLong     = "Good detailed response. Try to be more concise while maintaining the key points."
	FeedbackBalanced = "Well-structured response with good balance of detail and clarity."
)

// Word-count thresholds for the feedback bands.
const (
	briefWords = 20
	longWords  = 200
)

// TemplateScorer scores responses from canned heuristics: a randomized
// base score, a word-count feedback band, and category-specific strength
// and improvement remarks. When Delta is set, consecutive scores lean
// against the previous one so a simulated interview drifts toward the
// middle of the scale instead of pinning at either end.
type TemplateScorer struct {
	// Delta is the adjustment applied relative to the previous score:
	// subtracted after a strong answer, added otherwise. Zero disables
	// the adjustment.
	Delta float64

	mu   sync.Mutex
	r    *rand.Rand
	prev float64
}

// NewTemplateScorer returns a scorer seeded for reproducible runs.
func NewTemplateScorer(seed uint64) *TemplateScorer {
	return &TemplateScorer{r: rand.New(rand.NewPCG(seed, seed))}
}

// Score evaluates the transcript without consulting any external service.
// The returned error is always nil; the Scorer signature is kept for
// interchangeability with LLMScorer.
func (s *TemplateScorer) Score(_ context.Context, q model.Question, transcript string) (model.Score, error) {
	s.mu.Lock()
	value := 7 + float64(s.r.IntN(4))
	if s.Delta != 0 && s.prev != 0 {
		if s.prev > 8 {
			value -= s.Delta
		} else {
			value += s.Delta
		}
	}
	value = model.ClampScore(value)
	s.prev = value
	s.mu.Unlock()

	words := len(strings.Fields(transcript))
	var feedback string
	switch {
	case words < briefWords:
		feedback = FeedbackBrief
	case words > longWords:
		feedback = FeedbackLong
	default:
		feedback = FeedbackBalanced
	}

	remarks := remarksFor(q.Category)
	return model.Score{
		QuestionID:   q.ID,
		Value:        value,
		Feedback:     feedback,
		Strengths:    remarks.strengths,
		Improvements: remarks.improvements,
	}, nil
}

type categoryRemarks struct {
	strengths    []string
	improvements []string
}

var defaultRemarks = categoryRemarks{
	strengths:    []string{"Clear communication", "Relevant examples", "Professional tone"},
	improvements: []string{"Could provide more specific details", "Consider mentioning quantifiable results"},
}

var remarksByCategory = map[model.Category]categoryRemarks{
	model.CategoryBehavioral: {
		strengths:    []string{"Concrete situation and outcome", "Honest reflection", "Professional tone"},
		improvements: []string{"Structure the answer as situation, action, result", "Quantify the outcome where possible"},
	},
	model.CategoryTechnical: {
		strengths:    []string{"Sound technical reasoning", "Awareness of trade-offs", "Clear terminology"},
		improvements: []string{"Mention concrete tools or technologies used", "Describe how the solution was validated"},
	},
	model.CategoryLeadership: {
		strengths:    []string{"Ownership of decisions", "Empathy for the team", "Clear communication"},
		improvements: []string{"Describe the impact on the team", "Explain how disagreement was resolved"},
	},
	model.CategoryProblemSolving: {
		strengths:    []string{"Methodical approach", "Creative alternatives considered", "Clear communication"},
		improvements: []string{"Walk through the reasoning step by step", "Mention how success was measured"},
	},
	model.CategoryCommunication: {
		strengths:    []string{"Audience awareness", "Clear structure", "Professional tone"},
		improvements: []string{"Give an example of adapting the message", "Mention how understanding was confirmed"},
	},
	model.CategoryCultural: {
		strengths:    []string{"Genuine motivation", "Alignment with collaborative work", "Professional tone"},
		improvements: []string{"Connect personal values to the role", "Could provide more specific details"},
	},
}

func remarksFor(c model.Category) categoryRemarks {
	if r, ok := remarksByCategory[c]; ok {
		return r
	}
	return defaultRemarks
}
