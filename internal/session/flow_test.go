package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxhire/voxhire/internal/model"
	"github.com/voxhire/voxhire/internal/question"
	"github.com/voxhire/voxhire/internal/scorer"
	"github.com/voxhire/voxhire/internal/speech"
)

// fakeScorer returns a scripted sequence of score values.
type fakeScorer struct {
	values []float64
	i      int
	err    error
}

func (s *fakeScorer) Score(_ context.Context, q model.Question, _ string) (model.Score, error) {
	if s.err != nil {
		return model.Score{}, s.err
	}
	v := s.values[s.i%len(s.values)]
	s.i++
	return model.Score{QuestionID: q.ID, Value: v, Feedback: "ok"}, nil
}

// eventLog collects flow events for later inspection.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) sink(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) count(t EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func testRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func newTestFlow(t *testing.T, cfg Config) *Flow {
	t.Helper()
	if cfg.Provider == nil {
		p, err := question.NewProvider()
		if err != nil {
			t.Fatalf("NewProvider() error = %v", err)
		}
		cfg.Provider = p
	}
	if cfg.Scorer == nil {
		cfg.Scorer = scorer.NewTemplateScorer(1)
	}
	if cfg.Speaker == nil {
		cfg.Speaker = &speech.ScriptedSpeaker{PerWord: time.Millisecond}
	}
	if cfg.Rand == nil {
		cfg.Rand = testRand(1)
	}
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = f.Abandon() })
	return f
}

func waitState(t *testing.T, f *Flow, want State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if f.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", f.State(), want)
}

func waitTranscript(t *testing.T, f *Flow) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if f.Transcript() != "" {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("no transcript fragments arrived")
}

// answer drives one full question: wait for the prompt to finish, record
// the scripted response, and stop.
func answer(t *testing.T, f *Flow) model.Score {
	t.Helper()
	waitState(t, f, StateAwaitingRecording)
	if err := f.StartRecording(); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	waitTranscript(t, f)
	score, err := f.StopRecording(context.Background())
	if err != nil {
		t.Fatalf("StopRecording() error = %v", err)
	}
	return score
}

func TestFlowEndToEnd(t *testing.T) {
	transcript := strings.TrimSpace(strings.Repeat("detailed answer with some context ", 5))
	log := &eventLog{}
	f := newTestFlow(t, Config{
		Recorder: &speech.ScriptedRecorder{Script: []string{transcript, transcript}},
		Sink:     log.sink,
	})

	cfg := model.SessionConfig{
		Categories:    []model.Category{model.CategoryBehavioral},
		QuestionCount: 2,
	}
	if err := f.Start("Alice Chen", cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	first := answer(t, f)
	if first.Feedback != scorer.FeedbackBalanced {
		t.Errorf("Feedback = %q, want balanced band", first.Feedback)
	}
	answer(t, f)

	waitState(t, f, StateCompleted)
	iv := f.Interview()
	if len(iv.Responses) != 2 || len(iv.Scores) != 2 {
		t.Fatalf("responses = %d, scores = %d, want 2 each", len(iv.Responses), len(iv.Scores))
	}
	if iv.EndedAt == nil || !iv.EndedAt.After(iv.StartedAt) {
		t.Fatalf("EndedAt = %v, want after %v", iv.EndedAt, iv.StartedAt)
	}
	if iv.OverallScore < model.ScoreMin || iv.OverallScore > model.ScoreMax {
		t.Errorf("OverallScore = %v out of range", iv.OverallScore)
	}
	if iv.Recommendation == "" {
		t.Error("Recommendation is empty")
	}
	if iv.Responses[0].Transcript != transcript {
		t.Errorf("Transcript = %q, want %q", iv.Responses[0].Transcript, transcript)
	}
	if got := log.count(EventCompleted); got != 1 {
		t.Errorf("completed events = %d, want 1", got)
	}
	if got := log.count(EventScoreReady); got != 2 {
		t.Errorf("score_ready events = %d, want 2", got)
	}
}

func TestFlowOverallIsRoundedMean(t *testing.T) {
	f := newTestFlow(t, Config{
		Recorder: &speech.ScriptedRecorder{Script: []string{"one", "two", "three"}},
		Scorer:   &fakeScorer{values: []float64{8, 7, 9}},
	})

	cfg := model.SessionConfig{
		Categories:    []model.Category{model.CategoryTechnical},
		QuestionCount: 3,
	}
	if err := f.Start("Bob", cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		answer(t, f)
	}

	waitState(t, f, StateCompleted)
	iv := f.Interview()
	if iv.OverallScore != 8.0 {
		t.Errorf("OverallScore = %v, want 8.0", iv.OverallScore)
	}
	if iv.Recommendation != model.RecommendationRecommended {
		t.Errorf("Recommendation = %q, want %q", iv.Recommendation, model.RecommendationRecommended)
	}
}

func TestFlowNoResponseDetected(t *testing.T) {
	f := newTestFlow(t, Config{
		Recorder: &speech.ScriptedRecorder{Script: []string{"", "a proper answer at last"}},
	})

	cfg := model.SessionConfig{
		Categories:    []model.Category{model.CategoryCommunication},
		QuestionCount: 1,
	}
	if err := f.Start("Carol", cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitState(t, f, StateAwaitingRecording)
	if err := f.StartRecording(); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	// The scripted empty fragment arrives asynchronously; give it time.
	time.Sleep(20 * time.Millisecond)
	if _, err := f.StopRecording(context.Background()); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("StopRecording() error = %v, want ErrNoResponse", err)
	}
	if got := f.State(); got != StateAwaitingRecording {
		t.Fatalf("state after empty response = %q, want %q", got, StateAwaitingRecording)
	}
	if iv := f.Interview(); len(iv.Responses) != 0 {
		t.Fatalf("responses = %d after rejected recording, want 0", len(iv.Responses))
	}

	// Second attempt succeeds and completes the interview.
	answer(t, f)
	waitState(t, f, StateCompleted)
}

func TestFlowMicrophoneDenied(t *testing.T) {
	f := newTestFlow(t, Config{
		Recorder: &speech.ScriptedRecorder{Err: errors.New("permission denied")},
	})

	cfg := model.SessionConfig{
		Categories:    []model.Category{model.CategoryBehavioral},
		QuestionCount: 1,
	}
	if err := f.Start("Dave", cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitState(t, f, StateAwaitingRecording)
	if err := f.StartRecording(); !errors.Is(err, ErrMicrophone) {
		t.Fatalf("StartRecording() error = %v, want ErrMicrophone", err)
	}
	if got := f.State(); got != StateAwaitingRecording {
		t.Fatalf("state after denial = %q, want %q", got, StateAwaitingRecording)
	}
}

func TestFlowRepeat(t *testing.T) {
	speaker := &speech.RemoteSpeaker{}
	log := &eventLog{}
	f := newTestFlow(t, Config{
		Speaker:  speaker,
		Recorder: &speech.ScriptedRecorder{Script: []string{"answer"}},
		Sink:     log.sink,
	})

	cfg := model.SessionConfig{
		Categories:    []model.Category{model.CategoryLeadership},
		QuestionCount: 1,
	}
	if err := f.Start("Eve", cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Repeat while the prompt is still playing.
	if err := f.Repeat(); err != nil {
		t.Fatalf("Repeat() while prompting error = %v", err)
	}
	speaker.Complete()
	waitState(t, f, StateAwaitingRecording)

	// Repeat after the prompt finished.
	if err := f.Repeat(); err != nil {
		t.Fatalf("Repeat() while awaiting recording error = %v", err)
	}
	if got := f.State(); got != StatePrompting {
		t.Fatalf("state after repeat = %q, want %q", got, StatePrompting)
	}
	speaker.Complete()
	waitState(t, f, StateAwaitingRecording)

	if got := log.count(EventPromptStarted); got != 3 {
		t.Errorf("prompt_started events = %d, want 3", got)
	}

	// Repeat is not legal once recording begins.
	if err := f.StartRecording(); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	if err := f.Repeat(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Repeat() while recording error = %v, want ErrInvalidState", err)
	}
}

func TestFlowAdaptiveDifficulty(t *testing.T) {
	log := &eventLog{}
	f := newTestFlow(t, Config{
		Recorder: &speech.ScriptedRecorder{Script: []string{"a", "b", "c", "d"}},
		Scorer:   &fakeScorer{values: []float64{9, 9, 3, 3}},
		Sink:     log.sink,
	})

	cfg := model.SessionConfig{
		Categories:    []model.Category{model.CategoryBehavioral},
		QuestionCount: 4,
		Adaptive:      true,
	}
	if err := f.Start("Frank", cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 4; i++ {
		answer(t, f)
	}

	waitState(t, f, StateCompleted)
	iv := f.Interview()
	if len(iv.Questions) != 4 {
		t.Fatalf("questions = %d, want 4", len(iv.Questions))
	}
	// Both adaptive picks follow a running average of 9.
	for _, i := range []int{2, 3} {
		if got := iv.Questions[i].Difficulty; got != model.DifficultyHard {
			t.Errorf("Questions[%d].Difficulty = %q, want %q", i, got, model.DifficultyHard)
		}
	}
	if got := log.count(EventQuestionAdded); got != 2 {
		t.Errorf("question_added events = %d, want 2", got)
	}
	if iv.OverallScore != 6.0 {
		t.Errorf("OverallScore = %v, want 6.0", iv.OverallScore)
	}

	seen := make(map[int64]bool)
	for _, q := range iv.Questions {
		if seen[q.ID] {
			t.Fatalf("question %d issued twice", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestFlowAdaptiveLowScoresPickEasy(t *testing.T) {
	f := newTestFlow(t, Config{
		Recorder: &speech.ScriptedRecorder{Script: []string{"a", "b", "c"}},
		Scorer:   &fakeScorer{values: []float64{3}},
	})

	cfg := model.SessionConfig{
		Categories:    []model.Category{model.CategoryTechnical},
		QuestionCount: 3,
		Adaptive:      true,
	}
	if err := f.Start("Grace", cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		answer(t, f)
	}

	waitState(t, f, StateCompleted)
	iv := f.Interview()
	if got := iv.Questions[2].Difficulty; got != model.DifficultyEasy {
		t.Errorf("Questions[2].Difficulty = %q, want %q", got, model.DifficultyEasy)
	}
}

func TestFlowAbandon(t *testing.T) {
	f := newTestFlow(t, Config{
		Recorder: &speech.ScriptedRecorder{Script: []string{"partial answer"}},
	})

	cfg := model.SessionConfig{
		Categories:    []model.Category{model.CategoryBehavioral},
		QuestionCount: 2,
	}
	if err := f.Start("Henry", cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	answer(t, f)

	// The flow is now prompting or awaiting the second question.
	if err := f.Abandon(); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	if got := f.State(); got != StateCompleted {
		t.Fatalf("state = %q, want %q", got, StateCompleted)
	}
	if !f.Abandoned() {
		t.Error("Abandoned() = false")
	}
	iv := f.Interview()
	if iv.EndedAt == nil {
		t.Error("EndedAt not set on abandon")
	}
	if len(iv.Responses) != 1 {
		t.Errorf("responses = %d, want the 1 collected before abandon", len(iv.Responses))
	}
	if iv.OverallScore != 0 {
		t.Errorf("OverallScore = %v, want 0 for abandoned interview", iv.OverallScore)
	}

	if err := f.StartRecording(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("StartRecording() after abandon error = %v, want ErrInvalidState", err)
	}
	if err := f.Abandon(); err != nil {
		t.Errorf("second Abandon() error = %v, want nil", err)
	}
}

func TestFlowInvalidTransitions(t *testing.T) {
	f := newTestFlow(t, Config{
		Recorder: &speech.ScriptedRecorder{Script: []string{"x"}},
	})

	if err := f.StartRecording(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("StartRecording() before Start error = %v, want ErrInvalidState", err)
	}
	if _, err := f.StopRecording(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("StopRecording() before Start error = %v, want ErrInvalidState", err)
	}
	if err := f.Abandon(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Abandon() before Start error = %v, want ErrInvalidState", err)
	}

	cfg := model.SessionConfig{
		Categories:    []model.Category{model.CategoryBehavioral},
		QuestionCount: 1,
	}
	if err := f.Start("Ivy", cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.Start("Ivy", cfg); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Start() error = %v, want ErrInvalidState", err)
	}
	if _, err := f.StopRecording(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("StopRecording() while prompting error = %v, want ErrInvalidState", err)
	}
}

func TestFlowScorerFailureIsRecoverable(t *testing.T) {
	boom := errors.New("model overloaded")
	fs := &fakeScorer{values: []float64{8}, err: boom}
	f := newTestFlow(t, Config{
		Recorder: &speech.ScriptedRecorder{Script: []string{"first try", "second try"}},
		Scorer:   fs,
	})

	cfg := model.SessionConfig{
		Categories:    []model.Category{model.CategoryCultural},
		QuestionCount: 1,
	}
	if err := f.Start("Jack", cfg); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitState(t, f, StateAwaitingRecording)
	if err := f.StartRecording(); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	waitTranscript(t, f)
	if _, err := f.StopRecording(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("StopRecording() error = %v, want scorer failure", err)
	}
	if got := f.State(); got != StateAwaitingRecording {
		t.Fatalf("state after scorer failure = %q, want %q", got, StateAwaitingRecording)
	}
	if iv := f.Interview(); len(iv.Scores) != 0 {
		t.Fatalf("scores = %d after failed analysis, want 0", len(iv.Scores))
	}

	// Retry once the scorer recovers.
	fs.err = nil
	answer(t, f)
	waitState(t, f, StateCompleted)
}
