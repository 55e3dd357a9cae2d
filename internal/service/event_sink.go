package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/cardmarket/internal/domain"
	"github.com/alanyoungcy/cardmarket/internal/notify"
)

// EventPublisher fans committed engine events out to the signal bus, the
// audit log, settlement history and operator notifications. It implements
// domain.EventSink.
type EventPublisher struct {
	bus         domain.SignalBus
	audit       domain.AuditStore
	settlements domain.SettlementStore
	notifier    *notify.Notifier
	logger      *slog.Logger
}

var _ domain.EventSink = (*EventPublisher)(nil)

// NewEventPublisher creates a publisher. Any dependency may be nil.
func NewEventPublisher(bus domain.SignalBus, audit domain.AuditStore, settlements domain.SettlementStore, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		bus:         bus,
		audit:       audit,
		settlements: settlements,
		logger:      logger.With(slog.String("component", "event_publisher")),
	}
}

// SetNotifier enables chat notifications.
func (p *EventPublisher) SetNotifier(n *notify.Notifier) {
	p.notifier = n
}

// Publish delivers ev to every configured destination. A failing destination
// does not stop the others; all failures are joined into the result.
func (p *EventPublisher) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error

	if ev.Settlement != nil && p.settlements != nil {
		if err := p.settlements.Record(ctx, *ev.Settlement); err != nil {
			errs = append(errs, fmt.Errorf("record settlement: %w", err))
		}
	}

	if p.audit != nil {
		if err := p.audit.Log(ctx, string(ev.Type), auditDetail(ev)); err != nil {
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}

	if p.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("service: marshal event: %w", err)
		}
		if err := p.bus.Publish(ctx, ev.Channel(), payload); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", ev.Channel(), err))
		}
		if err := p.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
			errs = append(errs, fmt.Errorf("stream append: %w", err))
		}
	}

	if p.notifier != nil {
		p.notifier.Enqueue(ev)
	}

	if len(errs) > 0 {
		return fmt.Errorf("service: publish %s: %w", ev.Type, errors.Join(errs...))
	}
	return nil
}

func auditDetail(ev domain.Event) map[string]any {
	d := map[string]any{
		"event_id": ev.ID,
		"asset_id": ev.AssetID,
		"actor":    ev.Actor.Hex(),
		"amount":   ev.Amount,
	}
	if ev.Counterparty != domain.ZeroAddress {
		d["counterparty"] = ev.Counterparty.Hex()
	}
	if ev.Settlement != nil {
		d["settlement_id"] = ev.Settlement.ID
	}
	return d
}
