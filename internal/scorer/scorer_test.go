package scorer

import (
	"context"
	"strings"
	"testing"

	"github.com/voxhire/voxhire/internal/model"
)

func repeatWords(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func TestTemplateScorerRange(t *testing.T) {
	s := NewTemplateScorer(1)
	q := model.Question{ID: 3, Category: model.CategoryBehavioral}
	for i := 0; i < 50; i++ {
		score, err := s.Score(context.Background(), q, repeatWords("word", 30))
		if err != nil {
			t.Fatalf("Score() error = %v", err)
		}
		if score.QuestionID != q.ID {
			t.Fatalf("QuestionID = %d, want %d", score.QuestionID, q.ID)
		}
		if score.Value < 7 || score.Value > 10 {
			t.Fatalf("Value = %v, want in [7, 10]", score.Value)
		}
	}
}

func TestTemplateScorerFeedbackBands(t *testing.T) {
	tests := []struct {
		name  string
		words int
		want  string
	}{
		{"brief", 10, FeedbackBrief},
		{"balanced", 100, FeedbackBalanced},
		{"long", 250, FeedbackLong},
		{"brief boundary", 19, FeedbackBrief},
		{"balanced lower boundary", 20, FeedbackBalanced},
		{"balanced upper boundary", 200, FeedbackBalanced},
		{"long boundary", 201, FeedbackLong},
	}

	s := NewTemplateScorer(1)
	q := model.Question{ID: 1, Category: model.CategoryTechnical}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := s.Score(context.Background(), q, repeatWords("answer", tt.words))
			if err != nil {
				t.Fatalf("Score() error = %v", err)
			}
			if score.Feedback != tt.want {
				t.Errorf("Feedback = %q, want %q", score.Feedback, tt.want)
			}
		})
	}
}

func TestTemplateScorerDeterministic(t *testing.T) {
	q := model.Question{ID: 1, Category: model.CategoryBehavioral}
	transcript := repeatWords("detail", 40)

	a := NewTemplateScorer(42)
	b := NewTemplateScorer(42)
	for i := 0; i < 10; i++ {
		sa, _ := a.Score(context.Background(), q, transcript)
		sb, _ := b.Score(context.Background(), q, transcript)
		if sa.Value != sb.Value {
			t.Fatalf("call %d: values diverge under same seed: %v vs %v", i, sa.Value, sb.Value)
		}
	}
}

func TestTemplateScorerDelta(t *testing.T) {
	s := NewTemplateScorer(7)
	s.Delta = 0.5
	q := model.Question{ID: 1, Category: model.CategoryBehavioral}
	transcript := repeatWords("detail", 40)

	prev := 0.0
	for i := 0; i < 30; i++ {
		score, err := s.Score(context.Background(), q, transcript)
		if err != nil {
			t.Fatalf("Score() error = %v", err)
		}
		if score.Value < model.ScoreMin || score.Value > model.ScoreMax {
			t.Fatalf("Value = %v out of range", score.Value)
		}
		if prev != 0 {
			base := score.Value
			if prev > 8 && base > 9.5 {
				t.Fatalf("after strong answer %v got %v, delta not subtracted", prev, base)
			}
		}
		prev = score.Value
	}
}

func TestRemarksFallback(t *testing.T) {
	s := NewTemplateScorer(1)
	q := model.Question{ID: 90, Category: model.CategorySales}
	score, err := s.Score(context.Background(), q, repeatWords("pitch", 50))
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(score.Strengths) == 0 || len(score.Improvements) == 0 {
		t.Fatal("default remarks missing for category without a dedicated pool")
	}
	if score.Strengths[0] != defaultRemarks.strengths[0] {
		t.Errorf("Strengths[0] = %q, want default %q", score.Strengths[0], defaultRemarks.strengths[0])
	}
}

func TestBuildScoringPrompt(t *testing.T) {
	q := model.Question{
		ID:             13,
		Text:           "Describe a challenging technical problem you solved recently.",
		Category:       model.CategoryTechnical,
		ExpectedPoints: []string{"Problem context", "Approach taken"},
	}
	prompt := buildScoringPrompt(q)

	for _, want := range []string{q.Text, "Problem context", `"score"`, "1 to 10"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
