package domain

import (
	"time"

	"github.com/google/uuid"
)

// PriceTick is a single price observation from the live feed.
type PriceTick struct {
	Price     float64
	Timestamp time.Time
}

// PriceFeed exposes the most recent observation from the live market feed.
// Current returns ErrFeedUnavailable when the feed is disconnected or the
// last tick is stale.
type PriceFeed interface {
	Current() (PriceTick, error)
	Healthy() bool
}

// PriceSnapshot is a periodic price sample persisted while a round is active.
// Append-only; used for audit and replay.
type PriceSnapshot struct {
	ID        uuid.UUID
	RoundID   uuid.UUID
	Timestamp time.Time
	Price     float64
	Source    string
}
