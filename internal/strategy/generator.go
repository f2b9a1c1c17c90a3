package strategy

import (
	"math/rand"

	"github.com/monarena/monarena/internal/domain"
	"github.com/monarena/monarena/internal/tile"
)

// Horizon column offsets relative to the current column, and the fixed bet
// count per horizon.
const (
	nearStart, nearEnd, nearCount = 2, 4, 3
	midStart, midEnd, midCount    = 5, 9, 5
	farStart, farEnd, farCount    = 10, 15, 6
)

// Generate produces a flat list of tile bet drafts for one agent. The pool is
// split across near/mid/far horizons by the personality's distribution
// weights (integer division, remainder to far), each horizon's sub-pool is
// divided evenly over its fixed bet count, and row offsets follow the
// directional bias. Deterministic given rng; no side effects.
//
// A zero or negative pool yields no bets: nothing is ever wagered with zero
// stake.
func Generate(p Personality, pool int64, currentPrice float64, currentCol int, rng *rand.Rand) []domain.TileBet {
	if pool <= 0 {
		return nil
	}

	nearPool := pool * int64(p.Distribution.Near*100) / 100
	midPool := pool * int64(p.Distribution.Mid*100) / 100
	farPool := pool - nearPool - midPool

	bets := make([]domain.TileBet, 0, nearCount+midCount+farCount)
	bets = appendHorizon(bets, p.Direction, nearPool, nearCount, currentCol+nearStart, currentCol+nearEnd, currentPrice, currentCol, rng)
	bets = appendHorizon(bets, p.Direction, midPool, midCount, currentCol+midStart, currentCol+midEnd, currentPrice, currentCol, rng)
	bets = appendHorizon(bets, p.Direction, farPool, farCount, currentCol+farStart, currentCol+farEnd, currentPrice, currentCol, rng)
	return bets
}

func appendHorizon(bets []domain.TileBet, dir Direction, pool int64, count, startCol, endCol int, currentPrice float64, currentCol int, rng *rand.Rand) []domain.TileBet {
	amount := pool / int64(count)
	if amount <= 0 {
		return bets
	}

	for i := 0; i < count; i++ {
		col := startCol + rng.Intn(endCol-startCol+1)
		row := pickRow(dir, len(bets), rng)

		bets = append(bets, domain.TileBet{
			Col:         col,
			Row:         row,
			TargetPrice: tile.TargetPrice(row, currentPrice),
			Amount:      amount,
			Multiplier:  tile.Multiplier(col, currentCol),
		})
	}
	return bets
}

// pickRow chooses a row offset for one bet. Bullish agents sit above the base
// price, bearish below, neutral spans the symmetric range, and adaptive
// alternates sides bet by bet.
func pickRow(dir Direction, betIdx int, rng *rand.Rand) int {
	switch dir {
	case DirectionBullish:
		return rng.Intn(3) + 3 // rows 3..5
	case DirectionBearish:
		return rng.Intn(3) - 3 // rows -3..-1
	case DirectionNeutral:
		return rng.Intn(7) - 3 // rows -3..3
	default: // adaptive
		if betIdx%2 == 0 {
			return rng.Intn(3)
		}
		return -rng.Intn(3)
	}
}
