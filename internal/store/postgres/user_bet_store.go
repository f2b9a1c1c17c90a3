package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/monarena/monarena/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaches.
const uniqueViolation = "23505"

// UserBetStore implements domain.UserBetStore using PostgreSQL.
type UserBetStore struct {
	pool *pgxpool.Pool
}

// NewUserBetStore creates a UserBetStore backed by the given connection pool.
func NewUserBetStore(pool *pgxpool.Pool) *UserBetStore {
	return &UserBetStore{pool: pool}
}

const userBetSelectCols = `id, user_id, user_address, round_id, agent_id,
	amount, tx_hash, status, payout_amount, payout_tx_hash, created_at`

func scanUserBet(row pgx.Row) (domain.UserAgentBet, error) {
	var b domain.UserAgentBet
	var status string
	err := row.Scan(
		&b.ID, &b.UserID, &b.UserAddress, &b.RoundID, &b.AgentID,
		&b.Amount, &b.TxHash, &status, &b.PayoutAmount, &b.PayoutTxHash, &b.CreatedAt,
	)
	if err != nil {
		return domain.UserAgentBet{}, err
	}
	b.Status = domain.BetStatus(status)
	return b, nil
}

// Create inserts a user bet. The tx_hash unique constraint is the idempotency
// guard: a duplicate hash maps to domain.ErrDuplicateBet so the service layer
// can treat client retries as success without double-counting the pool.
func (s *UserBetStore) Create(ctx context.Context, bet domain.UserAgentBet) (domain.UserAgentBet, error) {
	if bet.ID == uuid.Nil {
		bet.ID = uuid.New()
	}
	const query = `
		INSERT INTO user_agent_bets (id, user_id, user_address, round_id, agent_id, amount, tx_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := s.pool.QueryRow(ctx, query,
		bet.ID, bet.UserID, bet.UserAddress, bet.RoundID, bet.AgentID,
		bet.Amount, bet.TxHash, string(domain.BetPending),
	).Scan(&bet.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.UserAgentBet{}, domain.ErrDuplicateBet
		}
		return domain.UserAgentBet{}, fmt.Errorf("postgres: create user bet: %w", err)
	}
	bet.Status = domain.BetPending
	return bet, nil
}

// GetByTxHash returns the bet recorded for a deposit transaction.
func (s *UserBetStore) GetByTxHash(ctx context.Context, txHash string) (domain.UserAgentBet, error) {
	query := `SELECT ` + userBetSelectCols + ` FROM user_agent_bets WHERE tx_hash = $1`
	b, err := scanUserBet(s.pool.QueryRow(ctx, query, txHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserAgentBet{}, domain.ErrNotFound
		}
		return domain.UserAgentBet{}, fmt.Errorf("postgres: get user bet by tx: %w", err)
	}
	return b, nil
}

func (s *UserBetStore) list(ctx context.Context, query string, args ...any) ([]domain.UserAgentBet, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list user bets: %w", err)
	}
	defer rows.Close()

	var bets []domain.UserAgentBet
	for rows.Next() {
		b, err := scanUserBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user bet: %w", err)
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// ListByRound returns all user bets for a round.
func (s *UserBetStore) ListByRound(ctx context.Context, roundID uuid.UUID) ([]domain.UserAgentBet, error) {
	return s.list(ctx, `SELECT `+userBetSelectCols+` FROM user_agent_bets WHERE round_id = $1`, roundID)
}

// ListByUser returns one user's bets in a round.
func (s *UserBetStore) ListByUser(ctx context.Context, userID, roundID uuid.UUID) ([]domain.UserAgentBet, error) {
	return s.list(ctx,
		`SELECT `+userBetSelectCols+` FROM user_agent_bets WHERE user_id = $1 AND round_id = $2`,
		userID, roundID,
	)
}

// ListByStatus returns a round's bets filtered by status.
func (s *UserBetStore) ListByStatus(ctx context.Context, roundID uuid.UUID, status domain.BetStatus) ([]domain.UserAgentBet, error) {
	return s.list(ctx,
		`SELECT `+userBetSelectCols+` FROM user_agent_bets WHERE round_id = $1 AND status = $2`,
		roundID, string(status),
	)
}

// MarkRoundOutcome flips every pending bet of the round to won or lost based
// on winner membership. Both updates run in one transaction so no bet is left
// pending if the process dies mid-settlement.
func (s *UserBetStore) MarkRoundOutcome(ctx context.Context, roundID uuid.UUID, winners []uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: mark outcome begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE user_agent_bets SET status = $3
		WHERE round_id = $1 AND status = $2 AND agent_id = ANY($4)`,
		roundID, string(domain.BetPending), string(domain.BetWon), winners,
	); err != nil {
		return fmt.Errorf("postgres: mark winning bets: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_agent_bets SET status = $3
		WHERE round_id = $1 AND status = $2 AND NOT (agent_id = ANY($4))`,
		roundID, string(domain.BetPending), string(domain.BetLost), winners,
	); err != nil {
		return fmt.Errorf("postgres: mark losing bets: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: mark outcome commit: %w", err)
	}
	return nil
}

// SetPayout records the payout amount and claim transaction for a won bet.
func (s *UserBetStore) SetPayout(ctx context.Context, betID uuid.UUID, amount int64, txHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE user_agent_bets SET payout_amount = $2, payout_tx_hash = $3 WHERE id = $1`,
		betID, amount, txHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: set payout: %w", err)
	}
	return nil
}

var _ domain.UserBetStore = (*UserBetStore)(nil)
