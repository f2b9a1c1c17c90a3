package domain

import (
	"time"

	"github.com/google/uuid"
)

// Archetype selects an agent's betting personality. Each archetype maps to a
// fixed risk distribution, multiplier band, and directional bias (see the
// strategy package).
type Archetype string

const (
	ArchetypeAlpha Archetype = "alpha" // aggressive, far-horizon, adaptive
	ArchetypeBeta  Archetype = "beta"  // conservative, near-horizon, neutral
	ArchetypeGamma Archetype = "gamma" // momentum, bullish
	ArchetypeDelta Archetype = "delta" // contrarian, bearish
)

// Agent is one of the four autonomous traders users can back.
// ContractIndex is the agent's fixed 0..3 slot in the on-chain round manager.
type Agent struct {
	ID            uuid.UUID
	Name          string
	Archetype     Archetype
	ContractIndex int
	AvatarColor   string
	TotalWins     int
	TotalRounds   int
	CreatedAt     time.Time
}
