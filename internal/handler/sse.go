package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voxhire/voxhire/internal/session"
)

const sseHeartbeat = 15 * time.Second

// sseHub fans one session's flow events out to its SSE subscribers.
// Slow subscribers drop events rather than blocking the flow.
type sseHub struct {
	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool
}

func newSSEHub() *sseHub {
	return &sseHub{subs: make(map[chan []byte]struct{})}
}

// publish is the flow's event sink. It must not block: subscriber
// channels are buffered and full ones are skipped.
func (h *sseHub) publish(e session.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("marshal session event", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
		}
	}
}

func (h *sseHub) subscribe() (chan []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan []byte, 16)
	h.subs[ch] = struct{}{}
	return ch, true
}

func (h *sseHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, ch)
}

// close disconnects all subscribers once the session is finished.
func (h *sseHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}

// handleEvents streams a live session's events as SSE.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	ls := h.liveSessionByID(chi.URLParam(r, "id"))
	if ls == nil {
		writeError(w, http.StatusNotFound, "no live session")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, ok := ls.hub.subscribe()
	if !ok {
		writeError(w, http.StatusGone, "session finished")
		return
	}
	defer ls.hub.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Initial snapshot so late subscribers know where the session stands.
	if data, err := json.Marshal(h.status(ls)); err == nil {
		fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
		flusher.Flush()
	}

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case data, ok := <-ch:
			if !ok {
				// Session finished; the hub closed the channel.
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
