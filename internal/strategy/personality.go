// Package strategy generates agent tile bets. Each agent archetype is a plain
// data record (risk distribution, multiplier band, directional bias) fed into
// one shared generation algorithm, so behavior differences are data, not code.
package strategy

import (
	"github.com/google/uuid"

	"github.com/monarena/monarena/internal/domain"
)

// Direction is an agent's price-direction bias.
type Direction string

const (
	DirectionBullish  Direction = "bullish"
	DirectionBearish  Direction = "bearish"
	DirectionNeutral  Direction = "neutral"
	DirectionAdaptive Direction = "adaptive"
)

// Distribution splits an agent's pool across time horizons. Weights sum to 1.
type Distribution struct {
	Near float64
	Mid  float64
	Far  float64
}

// Band is the multiplier range an archetype prefers to sit in.
type Band struct {
	Min float64
	Max float64
}

// Personality is the full data record behind one agent archetype.
type Personality struct {
	Archetype    domain.Archetype
	Name         string
	Style        string
	Distribution Distribution
	Band         Band
	Direction    Direction
}

var personalities = map[domain.Archetype]Personality{
	domain.ArchetypeAlpha: {
		Archetype:    domain.ArchetypeAlpha,
		Name:         "Alpha Bot",
		Style:        "aggressive",
		Distribution: Distribution{Near: 0.2, Mid: 0.3, Far: 0.5},
		Band:         Band{Min: 2.5, Max: 5.0},
		Direction:    DirectionAdaptive,
	},
	domain.ArchetypeBeta: {
		Archetype:    domain.ArchetypeBeta,
		Name:         "Beta Trader",
		Style:        "conservative",
		Distribution: Distribution{Near: 0.6, Mid: 0.3, Far: 0.1},
		Band:         Band{Min: 1.2, Max: 1.8},
		Direction:    DirectionNeutral,
	},
	domain.ArchetypeGamma: {
		Archetype:    domain.ArchetypeGamma,
		Name:         "Gamma Predictor",
		Style:        "momentum",
		Distribution: Distribution{Near: 0.35, Mid: 0.45, Far: 0.2},
		Band:         Band{Min: 1.5, Max: 2.5},
		Direction:    DirectionBullish,
	},
	domain.ArchetypeDelta: {
		Archetype:    domain.ArchetypeDelta,
		Name:         "Delta Oracle",
		Style:        "contrarian",
		Distribution: Distribution{Near: 0.25, Mid: 0.35, Far: 0.4},
		Band:         Band{Min: 3.0, Max: 6.0},
		Direction:    DirectionBearish,
	},
}

// ForArchetype returns the personality record for the given archetype.
func ForArchetype(a domain.Archetype) (Personality, bool) {
	p, ok := personalities[a]
	return p, ok
}

// agentNamespace derives stable agent IDs so repeated seeding upserts the
// same four rows.
var agentNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("monarena/agents"))

var avatarColors = map[domain.Archetype]string{
	domain.ArchetypeAlpha: "#f43f5e",
	domain.ArchetypeBeta:  "#38bdf8",
	domain.ArchetypeGamma: "#4ade80",
	domain.ArchetypeDelta: "#a78bfa",
}

// DefaultAgents returns the fixed four-agent roster, one per archetype, with
// deterministic IDs and contract indices 0..3.
func DefaultAgents() []domain.Agent {
	order := []domain.Archetype{
		domain.ArchetypeAlpha,
		domain.ArchetypeBeta,
		domain.ArchetypeGamma,
		domain.ArchetypeDelta,
	}
	agents := make([]domain.Agent, 0, len(order))
	for i, a := range order {
		p := personalities[a]
		agents = append(agents, domain.Agent{
			ID:            uuid.NewSHA1(agentNamespace, []byte(a)),
			Name:          p.Name,
			Archetype:     a,
			ContractIndex: i,
			AvatarColor:   avatarColors[a],
		})
	}
	return agents
}
