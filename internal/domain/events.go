package domain

import (
	"context"

	"github.com/google/uuid"
)

// Event names published on the bus. Delivery is best-effort; the core never
// waits for acknowledgment.
const (
	EventRoundStarted     = "round_started"
	EventTradingStarted   = "trading_started"
	EventAgentPoolUpdate  = "agent_pool_update"
	EventAgentBetPlaced   = "agent_bet_placed"
	EventAgentBetResolved = "agent_bet_resolved"
	EventRoundSettled     = "round_settled"
	EventRoundCancelled   = "round_cancelled"
	EventPriceUpdate      = "price_update"
)

// EventBus publishes named round events outward (dashboard, websocket relay,
// audit stream). Implementations must be fire-and-forget; a failed publish
// is the implementation's problem to log, not the caller's to handle.
type EventBus interface {
	Publish(ctx context.Context, event string, roundID uuid.UUID, data map[string]any) error
}

// PriceStore caches the latest observed market price for cross-process
// consumers.
type PriceStore interface {
	SetLatest(ctx context.Context, symbol string, price float64) error
	GetLatest(ctx context.Context, symbol string) (float64, error)
}
