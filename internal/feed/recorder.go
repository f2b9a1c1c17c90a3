package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/monarena/monarena/internal/domain"
)

// snapshotInterval is how often an active round's price is sampled.
const snapshotInterval = 5 * time.Second

// Recorder samples the live feed for active rounds: every interval it
// persists a PriceSnapshot, publishes a price_update event, and mirrors the
// latest price into the cache. One goroutine per subscribed round.
type Recorder struct {
	feed      domain.PriceFeed
	symbol    string
	snapshots domain.SnapshotStore
	prices    domain.PriceStore
	bus       domain.EventBus
	logger    *slog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
}

// NewRecorder creates a Recorder. prices and bus may be nil in tests.
func NewRecorder(feed domain.PriceFeed, symbol string, snapshots domain.SnapshotStore, prices domain.PriceStore, bus domain.EventBus, logger *slog.Logger) *Recorder {
	return &Recorder{
		feed:      feed,
		symbol:    symbol,
		snapshots: snapshots,
		prices:    prices,
		bus:       bus,
		logger:    logger.With(slog.String("component", "price_recorder")),
		active:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// SubscribeRound starts sampling for a round. Subscribing an already-active
// round is a no-op.
func (r *Recorder) SubscribeRound(ctx context.Context, roundID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[roundID]; ok {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.active[roundID] = cancel
	go r.sample(runCtx, roundID)
}

// UnsubscribeRound stops sampling for a round.
func (r *Recorder) UnsubscribeRound(roundID uuid.UUID) {
	r.mu.Lock()
	cancel, ok := r.active[roundID]
	if ok {
		delete(r.active, roundID)
	}
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

func (r *Recorder) sample(ctx context.Context, roundID uuid.UUID) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick, err := r.feed.Current()
			if err != nil {
				r.logger.Warn("snapshot skipped, feed unavailable",
					slog.String("round_id", roundID.String()),
				)
				continue
			}
			r.record(ctx, roundID, tick)
		}
	}
}

func (r *Recorder) record(ctx context.Context, roundID uuid.UUID, tick domain.PriceTick) {
	snap := domain.PriceSnapshot{
		ID:        uuid.New(),
		RoundID:   roundID,
		Timestamp: tick.Timestamp,
		Price:     tick.Price,
		Source:    r.symbol,
	}
	if err := r.snapshots.Insert(ctx, snap); err != nil {
		r.logger.Error("persist snapshot failed", slog.String("error", err.Error()))
	}

	if r.prices != nil {
		if err := r.prices.SetLatest(ctx, r.symbol, tick.Price); err != nil {
			r.logger.Warn("price cache update failed", slog.String("error", err.Error()))
		}
	}

	if r.bus != nil {
		_ = r.bus.Publish(ctx, domain.EventPriceUpdate, roundID, map[string]any{
			"price":     tick.Price,
			"timestamp": tick.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
}
