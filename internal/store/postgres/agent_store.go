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

// AgentStore implements domain.AgentStore using PostgreSQL.
type AgentStore struct {
	pool *pgxpool.Pool
}

// NewAgentStore creates an AgentStore backed by the given connection pool.
func NewAgentStore(pool *pgxpool.Pool) *AgentStore {
	return &AgentStore{pool: pool}
}

const agentSelectCols = `id, name, archetype, contract_index, avatar_color,
	total_wins, total_rounds, created_at`

func scanAgent(row pgx.Row) (domain.Agent, error) {
	var a domain.Agent
	var archetype string
	err := row.Scan(
		&a.ID, &a.Name, &archetype, &a.ContractIndex, &a.AvatarColor,
		&a.TotalWins, &a.TotalRounds, &a.CreatedAt,
	)
	if err != nil {
		return domain.Agent{}, err
	}
	a.Archetype = domain.Archetype(archetype)
	return a, nil
}

// Upsert inserts an agent or refreshes its display fields. Win/round counters
// are preserved on conflict.
func (s *AgentStore) Upsert(ctx context.Context, agent domain.Agent) error {
	const query = `
		INSERT INTO agents (id, name, archetype, contract_index, avatar_color)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (archetype) DO UPDATE
		SET name = EXCLUDED.name, avatar_color = EXCLUDED.avatar_color`

	_, err := s.pool.Exec(ctx, query,
		agent.ID, agent.Name, string(agent.Archetype), agent.ContractIndex, agent.AvatarColor,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert agent %s: %w", agent.Archetype, err)
	}
	return nil
}

// List returns all agents ordered by contract index.
func (s *AgentStore) List(ctx context.Context) ([]domain.Agent, error) {
	query := `SELECT ` + agentSelectCols + ` FROM agents ORDER BY contract_index`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// GetByID returns the agent with the given id, or domain.ErrNotFound.
func (s *AgentStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Agent, error) {
	query := `SELECT ` + agentSelectCols + ` FROM agents WHERE id = $1`
	a, err := scanAgent(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Agent{}, domain.ErrNotFound
		}
		return domain.Agent{}, fmt.Errorf("postgres: get agent: %w", err)
	}
	return a, nil
}

// IncrementStats bumps the agent's lifetime round counter, and the win
// counter when won is true.
func (s *AgentStore) IncrementStats(ctx context.Context, id uuid.UUID, won bool) error {
	wins := 0
	if won {
		wins = 1
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE agents
		SET total_rounds = total_rounds + 1, total_wins = total_wins + $2
		WHERE id = $1`,
		id, wins,
	)
	if err != nil {
		return fmt.Errorf("postgres: increment agent stats: %w", err)
	}
	return nil
}

var _ domain.AgentStore = (*AgentStore)(nil)
