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

// TileBetStore implements domain.TileBetStore using PostgreSQL.
type TileBetStore struct {
	pool *pgxpool.Pool
}

// NewTileBetStore creates a TileBetStore backed by the given connection pool.
func NewTileBetStore(pool *pgxpool.Pool) *TileBetStore {
	return &TileBetStore{pool: pool}
}

const tileBetSelectCols = `id, round_id, agent_id, tile_col_index, tile_row_index,
	target_price, amount, multiplier, contract_tx_hash, status, profit_loss, created_at`

func scanTileBet(row pgx.Row) (domain.AgentTileBet, error) {
	var b domain.AgentTileBet
	var status string
	err := row.Scan(
		&b.ID, &b.RoundID, &b.AgentID, &b.Col, &b.Row,
		&b.TargetPrice, &b.Amount, &b.Multiplier, &b.ContractTxHash,
		&status, &b.ProfitLoss, &b.CreatedAt,
	)
	if err != nil {
		return domain.AgentTileBet{}, err
	}
	b.Status = domain.BetStatus(status)
	return b, nil
}

// Create inserts a placed tile bet.
func (s *TileBetStore) Create(ctx context.Context, bet domain.AgentTileBet) (domain.AgentTileBet, error) {
	if bet.ID == uuid.Nil {
		bet.ID = uuid.New()
	}
	const query = `
		INSERT INTO agent_tile_bets (
			id, round_id, agent_id, tile_col_index, tile_row_index,
			target_price, amount, multiplier, contract_tx_hash, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, query,
		bet.ID, bet.RoundID, bet.AgentID, bet.Col, bet.Row,
		bet.TargetPrice, bet.Amount, bet.Multiplier, bet.ContractTxHash,
		string(domain.BetPending),
	).Scan(&bet.CreatedAt)
	if err != nil {
		return domain.AgentTileBet{}, fmt.Errorf("postgres: create tile bet: %w", err)
	}
	bet.Status = domain.BetPending
	return bet, nil
}

// GetByID returns the tile bet with the given id, or domain.ErrNotFound.
func (s *TileBetStore) GetByID(ctx context.Context, id uuid.UUID) (domain.AgentTileBet, error) {
	query := `SELECT ` + tileBetSelectCols + ` FROM agent_tile_bets WHERE id = $1`
	b, err := scanTileBet(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AgentTileBet{}, domain.ErrNotFound
		}
		return domain.AgentTileBet{}, fmt.Errorf("postgres: get tile bet: %w", err)
	}
	return b, nil
}

func (s *TileBetStore) list(ctx context.Context, query string, args ...any) ([]domain.AgentTileBet, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tile bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.AgentTileBet
	for rows.Next() {
		b, err := scanTileBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan tile bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// ListByRound returns every tile bet of a round.
func (s *TileBetStore) ListByRound(ctx context.Context, roundID uuid.UUID) ([]domain.AgentTileBet, error) {
	return s.list(ctx, `SELECT `+tileBetSelectCols+` FROM agent_tile_bets WHERE round_id = $1`, roundID)
}

// ListPendingDue returns pending bets whose target column has been reached.
func (s *TileBetStore) ListPendingDue(ctx context.Context, roundID uuid.UUID, maxCol int) ([]domain.AgentTileBet, error) {
	return s.list(ctx, `
		SELECT `+tileBetSelectCols+` FROM agent_tile_bets
		WHERE round_id = $1 AND status = $2 AND tile_col_index <= $3
		ORDER BY tile_col_index`,
		roundID, string(domain.BetPending), maxCol,
	)
}

// ListPending returns all still-unresolved bets of a round.
func (s *TileBetStore) ListPending(ctx context.Context, roundID uuid.UUID) ([]domain.AgentTileBet, error) {
	return s.list(ctx, `
		SELECT `+tileBetSelectCols+` FROM agent_tile_bets
		WHERE round_id = $1 AND status = $2`,
		roundID, string(domain.BetPending),
	)
}

// Resolve transitions a bet out of pending. The status guard in the WHERE
// clause makes check-then-act a single atomic statement: two concurrent
// ticks cannot both resolve the same bet. Returns false when the bet was
// already resolved.
func (s *TileBetStore) Resolve(ctx context.Context, id uuid.UUID, status domain.BetStatus, profitLoss int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agent_tile_bets SET status = $2, profit_loss = $3
		WHERE id = $1 AND status = $4`,
		id, string(status), profitLoss, string(domain.BetPending),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: resolve tile bet: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

var _ domain.TileBetStore = (*TileBetStore)(nil)
