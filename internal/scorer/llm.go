package scorer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voxhire/voxhire/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// llmResult is the JSON shape the model is instructed to respond with.
type llmResult struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// LLMScorer evaluates transcripts with an OpenAI-compatible API.
type LLMScorer struct {
	api   *openai.Client
	model string
}

// NewLLMScorer creates a scorer talking to the given endpoint. An empty
// baseURL uses the OpenAI default.
func NewLLMScorer(baseURL, apiKey, modelName string) *LLMScorer {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &LLMScorer{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable and the API key is accepted.
func (s *LLMScorer) Ping(ctx context.Context) error {
	if _, err := s.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint check: %w", err)
	}
	return nil
}

// Score asks the model to assess the transcript and parses its JSON reply.
func (s *LLMScorer) Score(ctx context.Context, q model.Question, transcript string) (model.Score, error) {
	resp, err := s.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildScoringPrompt(q)},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return model.Score{}, fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return model.Score{}, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "question_id", q.ID, "raw", raw)

	var result llmResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return model.Score{}, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}

	return model.Score{
		QuestionID:   q.ID,
		Value:        model.ClampScore(result.Score),
		Feedback:     result.Feedback,
		Strengths:    result.Strengths,
		Improvements: result.Improvements,
	}, nil
}

func buildScoringPrompt(q model.Question) string {
	var sb strings.Builder
	sb.WriteString("You are an experienced interviewer assessing a candidate's spoken answer. ")
	sb.WriteString("The answer was transcribed from speech, so ignore filler words and minor transcription artifacts.\n\n")
	sb.WriteString("QUESTION: " + q.Text + "\n")
	sb.WriteString("CATEGORY: " + q.Category.Label() + "\n\n")

	if len(q.ExpectedPoints) > 0 {
		sb.WriteString("A strong answer typically covers:\n")
		for _, p := range q.ExpectedPoints {
			sb.WriteString("- " + p + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Assess relevance, structure, and depth of the answer.\n")
	sb.WriteString("- Score on a scale of 1 to 10, where 10 is an outstanding answer.\n")
	sb.WriteString("- List two or three concrete strengths and one or two improvements.\n")
	sb.WriteString("\nRespond ONLY with a JSON object with these fields:\n")
	sb.WriteString(`{"score": <number 1 to 10>, "feedback": "<two or three sentences>", "strengths": ["<strength>", ...], "improvements": ["<improvement>", ...]}`)
	sb.WriteString("\n")

	return sb.String()
}
