// Package notify delivers operator alerts for market events to chat
// channels such as Telegram and Discord.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans alerts out to every Sender. Events are queued by Enqueue and
// delivered by Run, so callers never wait on a chat API.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	queue   chan domain.Event
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only event types listed in events are
// delivered; an empty list allows every type.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan domain.Event, 256),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Wants reports whether events of type t are delivered.
func (n *Notifier) Wants(t domain.EventType) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[t]
}

// Enqueue schedules ev for delivery. It never blocks; when the queue is full
// the event is dropped and logged.
func (n *Notifier) Enqueue(ev domain.Event) {
	if !n.Wants(ev.Type) {
		return
	}
	select {
	case n.queue <- ev:
	default:
		n.logger.Warn("notification queue full, dropping event",
			slog.String("type", string(ev.Type)),
			slog.String("event_id", ev.ID),
		)
	}
}

// Run delivers queued events until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-n.queue:
			if err := n.NotifyEvent(ctx, ev); err != nil {
				n.logger.WarnContext(ctx, "notification failed",
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// NotifyEvent formats and sends ev immediately if its type is allowed.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	if !n.Wants(ev.Type) {
		return nil
	}
	title, msg := FormatEvent(ev)
	return n.dispatch(ctx, title, msg)
}

// NotifyAll sends a free-form alert to every sender, bypassing the filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failing does not stop the others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}
