package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/monarena/monarena/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL. Every mutation
// is a single atomic UPDATE with in-database arithmetic so concurrent tile
// resolutions never lose increments.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

const balanceSelectCols = `round_id, agent_id, starting_balance, allocated_to_tiles,
	current_balance, tiles_won, tiles_lost, final_pnl, updated_at`

func scanBalance(row pgx.Row) (domain.AgentRoundBalance, error) {
	var b domain.AgentRoundBalance
	err := row.Scan(
		&b.RoundID, &b.AgentID, &b.Starting, &b.AllocatedToTiles,
		&b.Current, &b.TilesWon, &b.TilesLost, &b.FinalPnL, &b.UpdatedAt,
	)
	return b, err
}

// Seed upserts a balance row for (round, agent) with the given starting
// stake. Seeding an existing row is a no-op so restarts cannot reset pools.
func (s *BalanceStore) Seed(ctx context.Context, roundID, agentID uuid.UUID, starting int64) error {
	const query = `
		INSERT INTO agent_round_balances (round_id, agent_id, starting_balance, current_balance)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (round_id, agent_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query, roundID, agentID, starting)
	if err != nil {
		return fmt.Errorf("postgres: seed balance: %w", err)
	}
	return nil
}

// Get returns the balance row for (round, agent), or domain.ErrNotFound.
func (s *BalanceStore) Get(ctx context.Context, roundID, agentID uuid.UUID) (domain.AgentRoundBalance, error) {
	query := `SELECT ` + balanceSelectCols + ` FROM agent_round_balances WHERE round_id = $1 AND agent_id = $2`
	b, err := scanBalance(s.pool.QueryRow(ctx, query, roundID, agentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AgentRoundBalance{}, domain.ErrNotFound
		}
		return domain.AgentRoundBalance{}, fmt.Errorf("postgres: get balance: %w", err)
	}
	return b, nil
}

// ListByRound returns all agent balances for a round.
func (s *BalanceStore) ListByRound(ctx context.Context, roundID uuid.UUID) ([]domain.AgentRoundBalance, error) {
	query := `SELECT ` + balanceSelectCols + ` FROM agent_round_balances WHERE round_id = $1`
	rows, err := s.pool.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.AgentRoundBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// AddToStarting grows both the starting and current balance by amount (a user
// backing the agent) and returns the new starting balance.
func (s *BalanceStore) AddToStarting(ctx context.Context, roundID, agentID uuid.UUID, amount int64) (int64, error) {
	var newStarting int64
	err := s.pool.QueryRow(ctx, `
		UPDATE agent_round_balances
		SET starting_balance = starting_balance + $3,
			current_balance = current_balance + $3,
			updated_at = NOW()
		WHERE round_id = $1 AND agent_id = $2
		RETURNING starting_balance`,
		roundID, agentID, amount,
	).Scan(&newStarting)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("postgres: add to starting balance: %w", err)
	}
	return newStarting, nil
}

// AddAllocated bumps the allocated-to-tiles counter by amount. The WHERE
// guard keeps the committed total inside the starting pool even when two
// placements race; an over-committing bump is rejected with ErrPoolExceeded.
func (s *BalanceStore) AddAllocated(ctx context.Context, roundID, agentID uuid.UUID, amount int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agent_round_balances
		SET allocated_to_tiles = allocated_to_tiles + $3, updated_at = NOW()
		WHERE round_id = $1 AND agent_id = $2
		  AND allocated_to_tiles + $3 <= starting_balance`,
		roundID, agentID, amount,
	)
	if err != nil {
		return fmt.Errorf("postgres: add allocated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, roundID, agentID); errors.Is(getErr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrPoolExceeded
	}
	return nil
}

// ApplyResolution adjusts the current balance by the signed delta and bumps
// the matching win/loss counter, in one statement.
func (s *BalanceStore) ApplyResolution(ctx context.Context, roundID, agentID uuid.UUID, delta int64, won bool) error {
	wonInc, lostInc := 0, 1
	if won {
		wonInc, lostInc = 1, 0
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE agent_round_balances
		SET current_balance = current_balance + $3,
			tiles_won = tiles_won + $4,
			tiles_lost = tiles_lost + $5,
			updated_at = NOW()
		WHERE round_id = $1 AND agent_id = $2`,
		roundID, agentID, delta, wonInc, lostInc,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply resolution: %w", err)
	}
	return nil
}

// SetFinalPnL writes the settled P&L. Idempotent: the inputs are frozen after
// trading ends, so recomputation overwrites with the same value.
func (s *BalanceStore) SetFinalPnL(ctx context.Context, roundID, agentID uuid.UUID, pnl int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE agent_round_balances
		SET final_pnl = $3, updated_at = NOW()
		WHERE round_id = $1 AND agent_id = $2`,
		roundID, agentID, pnl,
	)
	if err != nil {
		return fmt.Errorf("postgres: set final pnl: %w", err)
	}
	return nil
}

var _ domain.BalanceStore = (*BalanceStore)(nil)
