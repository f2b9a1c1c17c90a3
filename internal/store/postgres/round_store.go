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

// RoundStore implements domain.RoundStore using PostgreSQL.
type RoundStore struct {
	pool *pgxpool.Pool
}

// NewRoundStore creates a RoundStore backed by the given connection pool.
func NewRoundStore(pool *pgxpool.Pool) *RoundStore {
	return &RoundStore{pool: pool}
}

const roundSelectCols = `id, round_number, contract_round_id, status,
	start_time, betting_end_time, round_end_time,
	starting_price, final_price, winner_agent_ids,
	total_pool, platform_cut, cancellation_reason, created_at`

func scanRound(row pgx.Row) (domain.Round, error) {
	var r domain.Round
	var status string
	err := row.Scan(
		&r.ID, &r.Number, &r.ContractRoundID, &status,
		&r.StartTime, &r.BettingEndTime, &r.RoundEndTime,
		&r.StartingPrice, &r.FinalPrice, &r.WinnerAgentIDs,
		&r.TotalPool, &r.PlatformCut, &r.CancellationReason, &r.CreatedAt,
	)
	if err != nil {
		return domain.Round{}, err
	}
	r.Status = domain.RoundStatus(status)
	return r, nil
}

// Create inserts a new round row.
func (s *RoundStore) Create(ctx context.Context, round domain.Round) error {
	const query = `
		INSERT INTO trading_rounds (
			id, round_number, contract_round_id, status,
			start_time, betting_end_time, round_end_time, starting_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		round.ID, round.Number, round.ContractRoundID, string(round.Status),
		round.StartTime, round.BettingEndTime, round.RoundEndTime, round.StartingPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: create round: %w", err)
	}
	return nil
}

// GetByID returns the round with the given id, or domain.ErrNotFound.
func (s *RoundStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Round, error) {
	query := `SELECT ` + roundSelectCols + ` FROM trading_rounds WHERE id = $1`
	r, err := scanRound(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("postgres: get round: %w", err)
	}
	return r, nil
}

// UpdateStatus transitions a round from one status to another. The update is
// guarded on the current status so a stale caller cannot regress the state
// machine; a non-matching guard surfaces domain.ErrInvalidStatus.
func (s *RoundStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.RoundStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trading_rounds SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("postgres: update round status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: round %s %s -> %s: %w", id, from, to, domain.ErrInvalidStatus)
	}
	return nil
}

// SetSettled finalizes a round in a single statement. Only a SETTLING round
// can be settled.
func (s *RoundStore) SetSettled(ctx context.Context, id uuid.UUID, finalPrice float64, winners []uuid.UUID, totalPool, platformCut int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE trading_rounds
		SET status = $2, final_price = $3, winner_agent_ids = $4,
			total_pool = $5, platform_cut = $6
		WHERE id = $1 AND status = $7`,
		id, string(domain.RoundSettled), finalPrice, winners,
		totalPool, platformCut, string(domain.RoundSettling),
	)
	if err != nil {
		return fmt.Errorf("postgres: settle round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: settle round %s: %w", id, domain.ErrInvalidStatus)
	}
	return nil
}

// SetCancelled marks a round cancelled with the given reason. Terminal rounds
// are left untouched (idempotent for repeated cancellation).
func (s *RoundStore) SetCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trading_rounds
		SET status = $2, cancellation_reason = $3
		WHERE id = $1 AND status NOT IN ($4, $5)`,
		id, string(domain.RoundCancelled), reason,
		string(domain.RoundSettled), string(domain.RoundCancelled),
	)
	if err != nil {
		return fmt.Errorf("postgres: cancel round: %w", err)
	}
	return nil
}

// LatestNumber returns the highest round number recorded so far, or 0.
func (s *RoundStore) LatestNumber(ctx context.Context) (int, error) {
	var n *int
	err := s.pool.QueryRow(ctx, `SELECT MAX(round_number) FROM trading_rounds`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: latest round number: %w", err)
	}
	if n == nil {
		return 0, nil
	}
	return *n, nil
}

// ListRecent returns the most recently created rounds, newest first.
func (s *RoundStore) ListRecent(ctx context.Context, limit int) ([]domain.Round, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + roundSelectCols + ` FROM trading_rounds ORDER BY created_at DESC LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent rounds: %w", err)
	}
	defer rows.Close()

	var rounds []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

var _ domain.RoundStore = (*RoundStore)(nil)
