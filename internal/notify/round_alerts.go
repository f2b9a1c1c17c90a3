package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/monarena/monarena/internal/domain"
)

// EventSource is a live subscription per event name, satisfied by the Redis
// event bus.
type EventSource interface {
	Subscribe(ctx context.Context, event string) (<-chan []byte, error)
}

// RoundAlerter listens for round outcome events on the bus and turns them
// into operator alerts. It runs out-of-process from the round loop, so a slow
// webhook never delays settlement.
type RoundAlerter struct {
	source   EventSource
	notifier *Notifier
	logger   *slog.Logger
}

// NewRoundAlerter creates a RoundAlerter bridging the event source to the
// notifier.
func NewRoundAlerter(source EventSource, notifier *Notifier, logger *slog.Logger) *RoundAlerter {
	return &RoundAlerter{
		source:   source,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "round_alerter")),
	}
}

// busEnvelope mirrors the bus wire format; only the fields alerts need.
type busEnvelope struct {
	Event   string         `json:"event"`
	RoundID uuid.UUID      `json:"round_id"`
	Data    map[string]any `json:"data"`
}

// Run subscribes to settlement and cancellation events and blocks until the
// context is cancelled.
func (ra *RoundAlerter) Run(ctx context.Context) error {
	settled, err := ra.source.Subscribe(ctx, domain.EventRoundSettled)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.EventRoundSettled, err)
	}
	cancelled, err := ra.source.Subscribe(ctx, domain.EventRoundCancelled)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.EventRoundCancelled, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-settled:
			if !ok {
				return nil
			}
			ra.handle(ctx, payload)
		case payload, ok := <-cancelled:
			if !ok {
				return nil
			}
			ra.handle(ctx, payload)
		}
	}
}

func (ra *RoundAlerter) handle(ctx context.Context, payload []byte) {
	var env busEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		ra.logger.Warn("malformed bus payload", slog.String("error", err.Error()))
		return
	}

	var title, message string
	switch env.Event {
	case domain.EventRoundSettled:
		title = fmt.Sprintf("Round %v settled", env.Data["number"])
		message = formatSettled(env)
	case domain.EventRoundCancelled:
		title = fmt.Sprintf("Round %v cancelled", env.Data["number"])
		message = fmt.Sprintf("Round %s\nReason: %v", env.RoundID, env.Data["reason"])
	default:
		return
	}

	if err := ra.notifier.Notify(ctx, env.Event, title, message); err != nil {
		ra.logger.Error("alert delivery failed",
			slog.String("event", env.Event),
			slog.String("error", err.Error()),
		)
	}
}

func formatSettled(env busEnvelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Round %s\n", env.RoundID)
	fmt.Fprintf(&b, "Final price: %v\n", env.Data["final_price"])
	if winners, ok := env.Data["winners"].([]any); ok {
		names := make([]string, 0, len(winners))
		for _, w := range winners {
			names = append(names, fmt.Sprint(w))
		}
		fmt.Fprintf(&b, "Winners: %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "Total pool: %v (platform cut %v)", env.Data["total_pool"], env.Data["platform_cut"])
	return b.String()
}
