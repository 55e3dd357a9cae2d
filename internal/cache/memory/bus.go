// Package memory provides single-process stand-ins for the Redis-backed
// bus, lock and rate limiter, used when Redis is disabled.
package memory

import (
	"context"
	"path"
	"strconv"
	"sync"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

type subscriber struct {
	pattern string
	ch      chan []byte
}

// Bus is an in-process domain.SignalBus. Slow subscribers drop messages
// rather than block publishers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	streams map[string][]domain.StreamMessage
	seq     uint64
	maxLen  int
}

// NewBus creates a Bus whose streams keep at most maxLen entries.
func NewBus(maxLen int) *Bus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &Bus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string][]domain.StreamMessage),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to every subscriber whose pattern matches channel.
func (b *Bus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a glob pattern subscription until ctx ends.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscriber{pattern: channel, ch: make(chan []byte, 128)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// StreamAppend appends payload to stream.
func (b *Bus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatUint(b.seq, 10) + "-0",
		Payload: payload,
	})
	if len(msgs) > b.maxLen {
		msgs = msgs[len(msgs)-b.maxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count entries after lastID.
func (b *Bus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after := streamSeq(lastID)
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		if streamSeq(m.ID) <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

func streamSeq(id string) uint64 {
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			id = id[:i]
			break
		}
	}
	n, _ := strconv.ParseUint(id, 10, 64)
	return n
}
