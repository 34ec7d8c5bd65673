// Package speech defines the capability interfaces the session flow
// depends on for text-to-speech and speech-to-text, plus the adapter
// implementations used by the HTTP shell and the CLI simulator. The
// engines themselves (browser speech APIs, external TTS/STT) are opaque;
// only their event contracts matter here.
package speech

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Speaker speaks a prompt aloud and reports playback completion.
//
// Speak must not block, and done must be invoked exactly once, from a
// goroutine other than the caller's, when playback finishes. Stop cancels
// any in-progress playback; a stopped playback's done callback may be
// dropped (the flow discards stale completions itself).
type Speaker interface {
	Speak(text string, done func())
	Stop()
}

// Recorder captures a spoken response as a stream of transcript fragments.
//
// Start acquires the capture device and begins delivering fragments to
// onFragment; an error means the device is unavailable or access was
// denied. Stop releases the device and must be safe to call regardless of
// whether Start succeeded.
type Recorder interface {
	Start(onFragment func(text string, final bool)) error
	Stop()
}

// RemoteSpeaker is a Speaker whose playback happens in a browser client:
// the flow's prompt text is delivered to the client over the API, and the
// client reports utterance completion back via Complete.
type RemoteSpeaker struct {
	mu   sync.Mutex
	done func()
}

// Speak records the completion callback for the pending utterance.
func (s *RemoteSpeaker) Speak(_ string, done func()) {
	s.mu.Lock()
	s.done = done
	s.mu.Unlock()
}

// Stop discards the pending utterance, if any.
func (s *RemoteSpeaker) Stop() {
	s.mu.Lock()
	s.done = nil
	s.mu.Unlock()
}

// Complete reports that the client finished speaking the pending prompt.
func (s *RemoteSpeaker) Complete() {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()
	if done != nil {
		go done()
	}
}

// RemoteRecorder is a Recorder whose capture device lives in a browser
// client: the client performs speech recognition locally and pushes
// transcript fragments over the API.
type RemoteRecorder struct {
	mu         sync.Mutex
	onFragment func(text string, final bool)
}

// Start begins accepting pushed fragments. The device itself is remote,
// so acquisition cannot fail here; clients request microphone access
// before issuing the start-recording command.
func (r *RemoteRecorder) Start(onFragment func(text string, final bool)) error {
	r.mu.Lock()
	r.onFragment = onFragment
	r.mu.Unlock()
	return nil
}

// Stop discards the fragment callback, releasing the logical device.
func (r *RemoteRecorder) Stop() {
	r.mu.Lock()
	r.onFragment = nil
	r.mu.Unlock()
}

// Push forwards a transcript fragment from the client. Fragments pushed
// while no recording is active are dropped.
func (r *RemoteRecorder) Push(text string, final bool) {
	r.mu.Lock()
	cb := r.onFragment
	r.mu.Unlock()
	if cb != nil {
		cb(text, final)
	}
}

// ScriptedSpeaker simulates playback by waiting a per-word delay before
// signaling completion. Used by the simulate command and tests.
type ScriptedSpeaker struct {
	// PerWord is the simulated speaking time per word. Zero means a
	// near-immediate completion.
	PerWord time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// Speak schedules done after a delay proportional to the prompt length.
func (s *ScriptedSpeaker) Speak(text string, done func()) {
	delay := SpeakingTime(text, s.PerWord)
	s.mu.Lock()
	s.timer = time.AfterFunc(delay, done)
	s.mu.Unlock()
}

// Stop cancels the pending completion.
func (s *ScriptedSpeaker) Stop() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}

// ScriptedRecorder replays a fixed transcript script. Each Start delivers
// the next script entry as a single final fragment after Delay. A non-nil
// Err makes Start fail, simulating microphone denial.
type ScriptedRecorder struct {
	Script []string
	Delay  time.Duration
	Err    error

	mu   sync.Mutex
	next int
}

// Start delivers the next scripted transcript, or fails with Err.
func (r *ScriptedRecorder) Start(onFragment func(text string, final bool)) error {
	if r.Err != nil {
		return fmt.Errorf("open capture device: %w", r.Err)
	}
	r.mu.Lock()
	i := r.next
	r.next++
	r.mu.Unlock()
	if i >= len(r.Script) {
		return nil
	}
	text := r.Script[i]
	time.AfterFunc(r.Delay, func() { onFragment(text, true) })
	return nil
}

// Stop is a no-op; the scripted device has nothing to release.
func (r *ScriptedRecorder) Stop() {}

// SpeakingTime estimates how long a prompt takes to speak at the given
// per-word rate. It is also the flow's fallback delay when no Speaker is
// available.
func SpeakingTime(text string, perWord time.Duration) time.Duration {
	if perWord <= 0 {
		perWord = time.Millisecond
	}
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	return time.Duration(words) * perWord
}
