package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cardmarket/internal/cache/memory"
	"github.com/alanyoungcy/cardmarket/internal/domain"
)

func startHub(t *testing.T, bus *memory.Bus) (*httptest.Server, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Mode:   "server",
		Paused: func() bool { return true },
	})
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	return srv, func() {
		srv.Close()
		cancel()
	}
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHubSendsStatusThenEvents(t *testing.T) {
	bus := memory.NewBus(0)
	srv, stop := startHub(t, bus)
	defer stop()

	conn := dial(t, srv, "")
	defer conn.Close()

	status := readJSON(t, conn)
	assert.Equal(t, "market_status", status["type"])
	assert.Equal(t, true, status["payload"].(map[string]any)["paused"])

	payload, err := json.Marshal(domain.Event{ID: "e1", Type: domain.EventBidPlaced, AssetID: 5, Amount: 120})
	require.NoError(t, err)

	// The hub subscribes asynchronously; publish until it is listening.
	done := make(chan []byte, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, data, err := conn.ReadMessage(); err == nil {
			done <- data
		}
	}()
	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case data := <-done:
			var got map[string]any
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, "bid_placed", got["type"])
			assert.EqualValues(t, 120, got["amount"])
			return
		case <-ticker.C:
			require.NoError(t, bus.Publish(context.Background(), domain.EventChannelPrefix+string(domain.EventBidPlaced), payload))
		case <-deadline:
			t.Fatal("event not delivered")
		}
	}
}

func TestHubReplaysStream(t *testing.T) {
	bus := memory.NewBus(0)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		payload, _ := json.Marshal(domain.Event{ID: id, Type: domain.EventCardListed})
		require.NoError(t, bus.StreamAppend(ctx, domain.EventStream, payload))
	}
	srv, stop := startHub(t, bus)
	defer stop()

	conn := dial(t, srv, "?since=1-0")
	defer conn.Close()

	assert.Equal(t, "market_status", readJSON(t, conn)["type"])
	assert.Equal(t, "b", readJSON(t, conn)["id"])
	assert.Equal(t, "c", readJSON(t, conn)["id"])
}

func TestHubShutdownClosesClients(t *testing.T) {
	bus := memory.NewBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server"})
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()

	handled := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWS(w, r)
		handled <- struct{}{}
	}))
	defer srv.Close()

	live := dial(t, srv, "")
	defer live.Close()
	assert.Equal(t, "market_status", readJSON(t, live)["type"])
	<-handled

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// The connected client is closed rather than left hanging.
	require.NoError(t, live.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := live.ReadMessage()
	var ne net.Error
	require.Error(t, err)
	assert.False(t, errors.As(err, &ne) && ne.Timeout(), "read timed out: %v", err)

	// A connection arriving after shutdown is turned away without blocking.
	late := dial(t, srv, "")
	defer late.Close()
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("handler blocked after shutdown")
	}
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "market:bid_placed", channelName("bid_placed"))
	assert.Equal(t, "market:bid_placed", channelName("market:bid_placed"))
	assert.Equal(t, "*", channelName("*"))
}
