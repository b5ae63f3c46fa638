package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/meridian-energy/meridian/internal/modules/simulation"
)

func TestProgressHub_BroadcastReachesSubscribers(t *testing.T) {
	hub := NewProgressHub(zerolog.Nop())

	ch := hub.subscribe("run-1")
	defer hub.unsubscribe("run-1", ch)
	other := hub.subscribe("run-2")
	defer hub.unsubscribe("run-2", other)

	hub.Broadcast("run-1", simulation.Event{Stage: simulation.StageYearStarted, Year: 2030})

	select {
	case msg := <-ch:
		assert.Equal(t, "run-1", msg.RunID)
		assert.Equal(t, simulation.StageYearStarted, msg.Stage)
	default:
		t.Fatal("subscriber did not receive the event")
	}

	select {
	case <-other:
		t.Fatal("event leaked to another run's subscriber")
	default:
	}
}

func TestProgressHub_DropsWhenSubscriberFull(t *testing.T) {
	hub := NewProgressHub(zerolog.Nop())
	ch := hub.subscribe("run-1")
	defer hub.unsubscribe("run-1", ch)

	// Overfill the buffer; Broadcast must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*cap(ch); i++ {
			hub.Broadcast("run-1", simulation.Event{Stage: simulation.StageYearSolved, Year: 2030 + i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full subscriber")
	}
	assert.Len(t, ch, cap(ch))
}

func TestProgressHub_WebsocketStream(t *testing.T) {
	hub := NewProgressHub(zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/api/runs/{runID}/progress", hub.ServeHTTP)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/run-1/progress"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// The handler subscribes right after the handshake; keep sending until
	// the frame comes through.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
				hub.Broadcast("run-1", simulation.Event{Stage: simulation.StageYearStarted, Year: 2030, Years: 1})
			}
		}
	}()

	var msg ProgressMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, simulation.StageYearStarted, msg.Stage)
	assert.Equal(t, 2030, msg.Year)
}
