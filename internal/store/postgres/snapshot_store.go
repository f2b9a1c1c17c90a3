package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/monarena/monarena/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Snapshots
// are append-only; there is no update path.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Insert appends one price sample for a round.
func (s *SnapshotStore) Insert(ctx context.Context, snap domain.PriceSnapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_snapshots (id, round_id, ts, price, source)
		VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, snap.RoundID, snap.Timestamp, snap.Price, snap.Source,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert snapshot: %w", err)
	}
	return nil
}

// ListByRound returns a round's price trail in chronological order.
func (s *SnapshotStore) ListByRound(ctx context.Context, roundID uuid.UUID) ([]domain.PriceSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, round_id, ts, price, source FROM price_snapshots
		WHERE round_id = $1 ORDER BY ts`,
		roundID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.PriceSnapshot
	for rows.Next() {
		var snap domain.PriceSnapshot
		if err := rows.Scan(&snap.ID, &snap.RoundID, &snap.Timestamp, &snap.Price, &snap.Source); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
