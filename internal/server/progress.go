package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/meridian-energy/meridian/internal/modules/simulation"
)

// ProgressMessage is one websocket frame of the run progress stream.
type ProgressMessage struct {
	RunID string `json:"run_id"`
	simulation.Event
}

// ProgressHub fans simulation progress events out to websocket subscribers.
// It implements runs.Broadcaster.
type ProgressHub struct {
	log zerolog.Logger

	mu   sync.RWMutex
	subs map[string]map[chan ProgressMessage]struct{}
}

// NewProgressHub creates an empty hub.
func NewProgressHub(log zerolog.Logger) *ProgressHub {
	return &ProgressHub{
		log:  log.With().Str("component", "progress_hub").Logger(),
		subs: make(map[string]map[chan ProgressMessage]struct{}),
	}
}

// Broadcast delivers an event to every subscriber of the run. Slow
// subscribers are skipped rather than blocking the simulation.
func (h *ProgressHub) Broadcast(runID string, event simulation.Event) {
	msg := ProgressMessage{RunID: runID, Event: event}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[runID] {
		select {
		case ch <- msg:
		default:
			h.log.Warn().
				Str("run_id", runID).
				Str("stage", string(event.Stage)).
				Msg("Subscriber channel full, dropping event")
		}
	}
}

func (h *ProgressHub) subscribe(runID string) chan ProgressMessage {
	ch := make(chan ProgressMessage, 64)
	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan ProgressMessage]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *ProgressHub) unsubscribe(runID string, ch chan ProgressMessage) {
	h.mu.Lock()
	delete(h.subs[runID], ch)
	if len(h.subs[runID]) == 0 {
		delete(h.subs, runID)
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades GET /api/runs/{runID}/progress to a websocket and
// forwards progress events until the client disconnects or the run ends.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Str("run_id", runID).Msg("Websocket accept failed")
		return
	}
	defer conn.CloseNow()

	ch := h.subscribe(runID)
	defer h.unsubscribe(runID, ch)

	h.log.Info().Str("run_id", runID).Msg("Client connected to progress stream")

	ctx := r.Context()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Str("run_id", runID).Msg("Client disconnected from progress stream")
			return

		case msg := <-ch:
			if err := writeTimeout(ctx, conn, msg); err != nil {
				h.log.Debug().Err(err).Str("run_id", runID).Msg("Progress write failed")
				return
			}
			if msg.Stage == simulation.StageRunFinished {
				_ = conn.Close(websocket.StatusNormalClosure, "run finished")
				return
			}

		case <-heartbeat.C:
			if err := pingTimeout(ctx, conn); err != nil {
				h.log.Debug().Err(err).Str("run_id", runID).Msg("Heartbeat failed")
				return
			}
		}
	}
}

func writeTimeout(ctx context.Context, conn *websocket.Conn, msg ProgressMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

func pingTimeout(ctx context.Context, conn *websocket.Conn) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Ping(pingCtx)
}
