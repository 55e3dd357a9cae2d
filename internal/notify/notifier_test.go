package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

type stubSender struct {
	name   string
	err    error
	titles []string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifyEventFiltersByType(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, []string{"card_sold", " engine_paused "}, discardLogger())

	ctx := context.Background()
	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventBidPlaced}))
	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventEnginePaused}))
	require.NoError(t, n.NotifyEvent(ctx, domain.Event{Type: domain.EventCardSold, AssetID: 9}))
	assert.Equal(t, []string{"Trading paused", "Card #9 sold"}, s.titles)
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("boom")}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, []string{"t"}, good.titles)
}

func TestEnqueueSkipsWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	n.Enqueue(domain.Event{Type: domain.EventCardSold})
	assert.Empty(t, n.queue)
}

func TestTelegramSenderPostsMarkdown(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "Title", "body"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Title*\nbody", got["text"])
}

func TestDiscordSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "discord: unexpected status 429"))
}

func TestFormatAuctionWithoutBids(t *testing.T) {
	op := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	title, msg := FormatEvent(domain.Event{Type: domain.EventAuctionSettled, AssetID: 3, Actor: op})
	assert.Equal(t, "Auction #3 closed without bids", title)
	assert.Contains(t, msg, op.Hex())
}
