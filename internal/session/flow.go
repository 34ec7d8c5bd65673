// Package session drives a live interview: it walks the candidate through
// a sequence of spoken questions, collects transcribed responses, scores
// them, and produces the finished interview record. The flow is a state
// machine guarded by a single mutex; speech engines and scorers are
// injected as capabilities so the same flow runs under the HTTP shell,
// the CLI simulator, and tests.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxhire/voxhire/internal/model"
	"github.com/voxhire/voxhire/internal/question"
	"github.com/voxhire/voxhire/internal/scorer"
	"github.com/voxhire/voxhire/internal/speech"
)

// Sentinel errors callers are expected to branch on.
var (
	// ErrInvalidState reports an operation that is not legal in the
	// flow's current state.
	ErrInvalidState = errors.New("operation not valid in current state")
	// ErrMicrophone reports that the capture device could not be opened.
	ErrMicrophone = errors.New("microphone unavailable")
	// ErrNoResponse reports that a recording produced no transcript.
	ErrNoResponse = errors.New("no response detected")
)

// State is the flow's position in the interview lifecycle.
type State string

const (
	StateIdle              State = "idle"
	StatePrompting         State = "prompting"
	StateAwaitingRecording State = "awaiting_recording"
	StateRecording         State = "recording"
	StateAnalyzing         State = "analyzing"
	StateCompleted         State = "completed"
)

// Running-average thresholds for adaptive difficulty tiers.
const (
	hardTierAvg   = 8.0
	mediumTierAvg = 6.0
)

// defaultPromptRate is the simulated per-word speaking time used when no
// Speaker is configured.
const defaultPromptRate = 300 * time.Millisecond

// Config carries the capabilities a Flow needs. Provider, Scorer, and
// Recorder are required; the rest have working defaults.
type Config struct {
	Provider *question.Provider
	Scorer   scorer.Scorer
	Speaker  speech.Speaker
	Recorder speech.Recorder
	Sink     Sink
	Rand     *rand.Rand
	Logger   *slog.Logger
	// PromptRate overrides the simulated per-word speaking time used
	// when Speaker is nil.
	PromptRate time.Duration
}

// Flow is a single live interview session.
type Flow struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	state     State
	sc        model.SessionConfig
	interview model.Interview
	idx       int
	fragments []string
	recStart  time.Time
	promptGen int
	abandoned bool

	elapsed  atomic.Int64
	tickStop chan struct{}
	tickOnce sync.Once
}

// New creates an idle flow. Start begins the interview.
func New(cfg Config) (*Flow, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("session: question provider is required")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("session: scorer is required")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("session: recorder is required")
	}
	if cfg.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		cfg.Rand = rand.New(rand.NewPCG(seed, seed))
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Flow{cfg: cfg, log: log, state: StateIdle}, nil
}

// Start selects the question set, opens the interview record, and prompts
// the first question. In adaptive mode only the opening questions are
// selected up front; the rest are chosen one at a time as scores come in.
func (f *Flow) Start(candidateName string, sc model.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateIdle {
		return fmt.Errorf("%w: interview already started", ErrInvalidState)
	}

	initial := sc.QuestionCount
	if sc.Adaptive && initial > 2 {
		initial = 2
	}
	questions, err := f.cfg.Provider.Select(f.cfg.Rand, sc.Categories, initial, sc.Difficulty)
	if err != nil {
		return fmt.Errorf("select questions: %w", err)
	}

	f.sc = sc
	f.interview = model.Interview{
		ID:            uuid.NewString(),
		CandidateName: candidateName,
		Adaptive:      sc.Adaptive,
		StartedAt:     time.Now(),
		Questions:     questions,
	}
	f.idx = 0
	f.startTickerLocked()

	f.log.Info("interview started",
		"id", f.interview.ID,
		"candidate", candidateName,
		"questions", len(questions),
		"adaptive", sc.Adaptive)

	f.speakCurrentLocked()
	return nil
}

// StartRecording opens the capture device for the current question. It is
// legal only after the prompt has finished playing.
func (f *Flow) StartRecording() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateAwaitingRecording {
		return fmt.Errorf("%w: cannot record in state %q", ErrInvalidState, f.state)
	}

	f.fragments = nil
	if err := f.cfg.Recorder.Start(f.addFragment); err != nil {
		f.log.Warn("capture device unavailable", "id", f.interview.ID, "err", err)
		return fmt.Errorf("%w: %s", ErrMicrophone, err)
	}
	f.recStart = time.Now()
	f.setStateLocked(StateRecording)
	return nil
}

// StopRecording closes the capture device, scores the collected
// transcript, and advances the interview. An empty transcript or a scorer
// failure returns the flow to awaiting-recording so the candidate can try
// again.
func (f *Flow) StopRecording(ctx context.Context) (model.Score, error) {
	f.mu.Lock()
	if f.state != StateRecording {
		f.mu.Unlock()
		return model.Score{}, fmt.Errorf("%w: not recording", ErrInvalidState)
	}

	f.cfg.Recorder.Stop()
	transcript := strings.TrimSpace(strings.Join(f.fragments, " "))
	duration := time.Since(f.recStart)
	recordedAt := f.recStart

	if transcript == "" {
		f.setStateLocked(StateAwaitingRecording)
		f.mu.Unlock()
		return model.Score{}, ErrNoResponse
	}

	q := f.interview.Questions[f.idx]
	f.setStateLocked(StateAnalyzing)
	f.mu.Unlock()

	score, err := f.cfg.Scorer.Score(ctx, q, transcript)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateAnalyzing {
		// Abandoned while the scorer was running.
		return model.Score{}, fmt.Errorf("%w: interview ended during analysis", ErrInvalidState)
	}
	if err != nil {
		f.setStateLocked(StateAwaitingRecording)
		return model.Score{}, fmt.Errorf("score response: %w", err)
	}

	f.interview.Responses = append(f.interview.Responses, model.Response{
		QuestionID: q.ID,
		Transcript: transcript,
		RecordedAt: recordedAt,
		Duration:   duration,
	})
	f.interview.Scores = append(f.interview.Scores, score)
	f.emitLocked(Event{Type: EventScoreReady, State: f.state, QuestionIndex: f.idx, Score: &score})

	if f.sc.Adaptive && len(f.interview.Questions) < f.sc.QuestionCount {
		f.addAdaptiveLocked()
	}

	f.idx++
	if f.idx >= len(f.interview.Questions) {
		f.completeLocked()
	} else {
		f.speakCurrentLocked()
	}
	return score, nil
}

// Repeat replays the current question's prompt. It is legal while the
// prompt is playing or while waiting for the recording to start.
func (f *Flow) Repeat() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StatePrompting && f.state != StateAwaitingRecording {
		return fmt.Errorf("%w: cannot repeat in state %q", ErrInvalidState, f.state)
	}
	if f.cfg.Speaker != nil {
		f.cfg.Speaker.Stop()
	}
	f.speakCurrentLocked()
	return nil
}

// Abandon ends the interview early. The partial record keeps whatever
// responses were collected; no overall score is computed.
func (f *Flow) Abandon() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case StateIdle:
		return fmt.Errorf("%w: interview not started", ErrInvalidState)
	case StateCompleted:
		return nil
	}

	f.promptGen++
	if f.cfg.Speaker != nil {
		f.cfg.Speaker.Stop()
	}
	if f.state == StateRecording {
		f.cfg.Recorder.Stop()
	}

	now := time.Now()
	f.interview.EndedAt = &now
	f.abandoned = true
	f.stopTickerLocked()
	f.setStateLocked(StateCompleted)
	f.log.Info("interview abandoned", "id", f.interview.ID, "answered", len(f.interview.Responses))
	return nil
}

// State returns the current lifecycle state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// ID returns the interview ID, empty before Start.
func (f *Flow) ID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interview.ID
}

// Abandoned reports whether the interview ended via Abandon.
func (f *Flow) Abandoned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.abandoned
}

// Elapsed returns how long the interview has been running.
func (f *Flow) Elapsed() time.Duration {
	return time.Duration(f.elapsed.Load()) * time.Second
}

// CurrentQuestion returns the question being asked, if any.
func (f *Flow) CurrentQuestion() (model.Question, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateIdle || f.state == StateCompleted || f.idx >= len(f.interview.Questions) {
		return model.Question{}, 0, false
	}
	return f.interview.Questions[f.idx], f.idx, true
}

// Interview returns a snapshot of the interview record.
func (f *Flow) Interview() model.Interview {
	f.mu.Lock()
	defer f.mu.Unlock()
	iv := f.interview
	iv.Questions = slices.Clone(iv.Questions)
	iv.Responses = slices.Clone(iv.Responses)
	iv.Scores = slices.Clone(iv.Scores)
	return iv
}

// Transcript returns the joined transcript collected so far for the
// current recording.
func (f *Flow) Transcript() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.TrimSpace(strings.Join(f.fragments, " "))
}

func (f *Flow) speakCurrentLocked() {
	f.setStateLocked(StatePrompting)
	q := f.interview.Questions[f.idx]
	f.promptGen++
	gen := f.promptGen
	f.emitLocked(Event{Type: EventPromptStarted, State: f.state, QuestionIndex: f.idx, Question: &q})

	if f.cfg.Speaker != nil {
		f.cfg.Speaker.Speak(q.Text, func() { f.promptDone(gen) })
		return
	}
	rate := f.cfg.PromptRate
	if rate <= 0 {
		rate = defaultPromptRate
	}
	time.AfterFunc(speech.SpeakingTime(q.Text, rate), func() { f.promptDone(gen) })
}

// promptDone handles a playback completion. Completions from a prompt
// that was since repeated or abandoned carry a stale generation number
// and are dropped.
func (f *Flow) promptDone(gen int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.promptGen || f.state != StatePrompting {
		return
	}
	f.setStateLocked(StateAwaitingRecording)
	f.emitLocked(Event{Type: EventPromptComplete, State: f.state, QuestionIndex: f.idx})
}

func (f *Flow) addFragment(text string, final bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateRecording {
		return
	}
	preview := strings.Join(f.fragments, " ")
	if final {
		f.fragments = append(f.fragments, text)
		preview = strings.Join(f.fragments, " ")
	} else if text != "" {
		preview = strings.TrimSpace(preview + " " + text)
	}
	f.emitLocked(Event{Type: EventTranscriptUpdated, State: f.state, QuestionIndex: f.idx, Transcript: strings.TrimSpace(preview)})
}

func (f *Flow) addAdaptiveLocked() {
	tier := f.tierLocked()
	issued := make(map[int64]bool, len(f.interview.Questions))
	for _, q := range f.interview.Questions {
		issued[q.ID] = true
	}
	q, ok := f.cfg.Provider.Adaptive(f.cfg.Rand, f.sc.Categories, tier, issued)
	if !ok {
		f.log.Warn("adaptive pool exhausted", "id", f.interview.ID, "tier", tier)
		return
	}
	f.interview.Questions = append(f.interview.Questions, q)
	f.emitLocked(Event{Type: EventQuestionAdded, State: f.state, QuestionIndex: len(f.interview.Questions) - 1, Question: &q})
	f.log.Debug("adaptive question added", "id", f.interview.ID, "question_id", q.ID, "tier", tier)
}

// tierLocked maps the running score average to a difficulty tier.
func (f *Flow) tierLocked() model.Difficulty {
	if len(f.interview.Scores) == 0 {
		return f.sc.Difficulty
	}
	var sum float64
	for _, s := range f.interview.Scores {
		sum += s.Value
	}
	avg := sum / float64(len(f.interview.Scores))
	switch {
	case avg >= hardTierAvg:
		return model.DifficultyHard
	case avg >= mediumTierAvg:
		return model.DifficultyMedium
	default:
		return model.DifficultyEasy
	}
}

func (f *Flow) completeLocked() {
	now := time.Now()
	f.interview.EndedAt = &now

	var sum float64
	for _, s := range f.interview.Scores {
		sum += s.Value
	}
	overall := 0.0
	if len(f.interview.Scores) > 0 {
		overall = model.Round1(sum / float64(len(f.interview.Scores)))
	}
	f.interview.OverallScore = overall
	f.interview.Recommendation = model.RecommendationFor(overall)

	f.stopTickerLocked()
	f.setStateLocked(StateCompleted)
	f.emitLocked(Event{
		Type:           EventCompleted,
		State:          f.state,
		QuestionIndex:  f.idx,
		OverallScore:   overall,
		Recommendation: f.interview.Recommendation,
	})
	f.log.Info("interview completed",
		"id", f.interview.ID,
		"overall", overall,
		"recommendation", f.interview.Recommendation,
		"duration", now.Sub(f.interview.StartedAt))
}

func (f *Flow) setStateLocked(s State) {
	if f.state == s {
		return
	}
	f.state = s
	f.emitLocked(Event{Type: EventStateChanged, State: s, QuestionIndex: f.idx})
}

func (f *Flow) emitLocked(e Event) {
	if f.cfg.Sink != nil {
		f.cfg.Sink(e)
	}
}

func (f *Flow) startTickerLocked() {
	f.tickStop = make(chan struct{})
	go func(stop chan struct{}) {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				f.elapsed.Add(1)
			case <-stop:
				return
			}
		}
	}(f.tickStop)
}

func (f *Flow) stopTickerLocked() {
	f.tickOnce.Do(func() { close(f.tickStop) })
}
