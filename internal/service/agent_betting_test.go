package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monarena/monarena/internal/domain"
	"github.com/monarena/monarena/internal/tile"
)

type agentBettingFixture struct {
	tileBets *fakeTileBetStore
	balances *fakeBalanceStore
	contract *fakeContract
	bus      *fakeBus
	svc      *AgentBettingService

	round domain.Round
	agent domain.Agent
}

func newAgentBettingFixture(t *testing.T) *agentBettingFixture {
	t.Helper()
	f := &agentBettingFixture{
		tileBets: newFakeTileBetStore(),
		balances: newFakeBalanceStore(),
		contract: newFakeContract(),
		bus:      newFakeBus(),
		round: domain.Round{
			ID:              uuid.New(),
			Number:          7,
			ContractRoundID: "round-7",
			Status:          domain.RoundTrading,
		},
		agent: domain.Agent{
			ID:            uuid.New(),
			Name:          "Alpha Bot",
			Archetype:     domain.ArchetypeAlpha,
			ContractIndex: 0,
		},
	}
	f.svc = NewAgentBettingService(f.tileBets, f.balances, f.contract, f.bus, testLogger())
	require.NoError(t, f.balances.Seed(context.Background(), f.round.ID, f.agent.ID, 10_000))
	return f
}

func (f *agentBettingFixture) pendingBet(t *testing.T, col int, targetPrice float64, amount int64, mult float64) domain.AgentTileBet {
	t.Helper()
	bet, err := f.tileBets.Create(context.Background(), domain.AgentTileBet{
		RoundID:     f.round.ID,
		AgentID:     f.agent.ID,
		Col:         col,
		Row:         10,
		TargetPrice: targetPrice,
		Amount:      amount,
		Multiplier:  mult,
	})
	require.NoError(t, err)
	return bet
}

func TestGenerateBetsRespectsPoolAndLookahead(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	bets, err := f.svc.GenerateBets(ctx, f.round, f.agent, 65_000, 3, rng)
	require.NoError(t, err)
	require.NotEmpty(t, bets)

	var committed int64
	for _, b := range bets {
		assert.GreaterOrEqual(t, b.Col, 3+minLookahead, "bet col %d too close", b.Col)
		assert.Positive(t, b.Amount)
		committed += b.Amount
	}
	assert.LessOrEqual(t, committed, int64(10_000))
}

func TestGenerateBetsExcludesAllocated(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	// Most of the pool already committed to earlier tiles.
	require.NoError(t, f.balances.AddAllocated(ctx, f.round.ID, f.agent.ID, 9_500))

	rng := rand.New(rand.NewSource(42))
	bets, err := f.svc.GenerateBets(ctx, f.round, f.agent, 65_000, 0, rng)
	require.NoError(t, err)

	var committed int64
	for _, b := range bets {
		committed += b.Amount
	}
	assert.LessOrEqual(t, committed, int64(500))
}

func TestGenerateBetsUnknownArchetype(t *testing.T) {
	f := newAgentBettingFixture(t)
	f.agent.Archetype = "omega"

	_, err := f.svc.GenerateBets(context.Background(), f.round, f.agent, 65_000, 0, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestGenerateBetsDeterministicWithSeed(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	a, err := f.svc.GenerateBets(ctx, f.round, f.agent, 65_000, 0, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	b, err := f.svc.GenerateBets(ctx, f.round, f.agent, 65_000, 0, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestPlaceGraduallyPersistsAndAllocates(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	drafts := []domain.TileBet{
		{Col: 5, Row: 12, TargetPrice: 65_100, Amount: 400, Multiplier: 1.4},
		{Col: 8, Row: 14, TargetPrice: 65_150, Amount: 600, Multiplier: 2.1},
	}
	require.NoError(t, f.svc.PlaceGradually(ctx, f.round, f.agent, drafts, 20*time.Millisecond))

	placed, err := f.tileBets.ListByRound(ctx, f.round.ID)
	require.NoError(t, err)
	assert.Len(t, placed, 2)
	for _, b := range placed {
		assert.NotEmpty(t, b.ContractTxHash)
		assert.Equal(t, domain.BetPending, b.Status)
	}

	bal, err := f.balances.Get(ctx, f.round.ID, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.AllocatedToTiles)

	assert.Contains(t, f.bus.names(), domain.EventAgentBetPlaced)
}

func TestPlaceGraduallyContinuesPastChainFailure(t *testing.T) {
	f := newAgentBettingFixture(t)
	f.contract.failRecordBet = true
	ctx := context.Background()

	drafts := []domain.TileBet{
		{Col: 5, Row: 12, TargetPrice: 65_100, Amount: 400, Multiplier: 1.4},
	}
	require.NoError(t, f.svc.PlaceGradually(ctx, f.round, f.agent, drafts, 10*time.Millisecond))

	placed, err := f.tileBets.ListByRound(ctx, f.round.ID)
	require.NoError(t, err)
	assert.Empty(t, placed)

	bal, err := f.balances.Get(ctx, f.round.ID, f.agent.ID)
	require.NoError(t, err)
	assert.Zero(t, bal.AllocatedToTiles)
}

func TestPlaceGraduallySkipsOverCommittingDraft(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	// A racing placement committed most of the pool after these drafts
	// were generated, so the first one no longer fits.
	require.NoError(t, f.balances.AddAllocated(ctx, f.round.ID, f.agent.ID, 9_500))

	drafts := []domain.TileBet{
		{Col: 5, Row: 12, TargetPrice: 65_100, Amount: 800, Multiplier: 1.4},
		{Col: 8, Row: 14, TargetPrice: 65_150, Amount: 300, Multiplier: 2.1},
	}
	require.NoError(t, f.svc.PlaceGradually(ctx, f.round, f.agent, drafts, 10*time.Millisecond))

	placed, err := f.tileBets.ListByRound(ctx, f.round.ID)
	require.NoError(t, err)
	require.Len(t, placed, 1)
	assert.Equal(t, int64(300), placed[0].Amount)

	bal, err := f.balances.Get(ctx, f.round.ID, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9_800), bal.AllocatedToTiles)
}

func TestAddAllocatedRejectsPoolOverrun(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	require.NoError(t, f.balances.AddAllocated(ctx, f.round.ID, f.agent.ID, 9_500))

	err := f.balances.AddAllocated(ctx, f.round.ID, f.agent.ID, 800)
	assert.ErrorIs(t, err, domain.ErrPoolExceeded)

	bal, err := f.balances.Get(ctx, f.round.ID, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9_500), bal.AllocatedToTiles)
}

func TestPlaceGraduallyStopsOnContextCancel(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	drafts := []domain.TileBet{
		{Col: 5, Row: 12, TargetPrice: 65_100, Amount: 400, Multiplier: 1.4},
		{Col: 8, Row: 14, TargetPrice: 65_150, Amount: 600, Multiplier: 2.1},
	}
	err := f.svc.PlaceGradually(ctx, f.round, f.agent, drafts, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateBetWin(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	bet := f.pendingBet(t, 4, 65_100, 1000, 1.4)

	// Price inside [target, target+step) wins.
	require.NoError(t, f.svc.EvaluateBet(ctx, bet, 65_110))

	got, err := f.tileBets.GetByID(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetWon, got.Status)
	assert.Equal(t, int64(1400), got.ProfitLoss)

	bal, err := f.balances.Get(ctx, f.round.ID, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11_400), bal.Current)
	assert.Equal(t, 1, bal.TilesWon)
}

func TestEvaluateBetLossAtUpperBound(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	bet := f.pendingBet(t, 4, 65_100, 1000, 1.4)

	// The tile range is half-open: target+step is a loss.
	require.NoError(t, f.svc.EvaluateBet(ctx, bet, 65_100+tile.PriceStep))

	got, err := f.tileBets.GetByID(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetLost, got.Status)
	assert.Equal(t, int64(-1000), got.ProfitLoss)

	bal, err := f.balances.Get(ctx, f.round.ID, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9_000), bal.Current)
	assert.Equal(t, 1, bal.TilesLost)
}

func TestEvaluateBetIdempotent(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	bet := f.pendingBet(t, 4, 65_100, 1000, 1.4)

	require.NoError(t, f.svc.EvaluateBet(ctx, bet, 65_110))
	// A second evaluation, even at a losing price, is rejected by the
	// status guard and leaves no trace on the ledger.
	require.ErrorIs(t, f.svc.EvaluateBet(ctx, bet, 64_000), domain.ErrAlreadyResolved)

	got, err := f.tileBets.GetByID(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetWon, got.Status)

	bal, err := f.balances.Get(ctx, f.round.ID, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11_400), bal.Current)
	assert.Equal(t, 1, bal.TilesWon)
	assert.Zero(t, bal.TilesLost)
}

func TestResolveDueOnlyTouchesReachedColumns(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	due := f.pendingBet(t, 3, 65_100, 500, 1.2)
	future := f.pendingBet(t, 9, 65_100, 500, 1.2)

	require.NoError(t, f.svc.ResolveDue(ctx, f.round, 65_110, 4))

	got, err := f.tileBets.GetByID(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetWon, got.Status)

	got, err = f.tileBets.GetByID(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BetPending, got.Status)
}

func TestResolveAllPendingBalanceConservation(t *testing.T) {
	f := newAgentBettingFixture(t)
	ctx := context.Background()

	bets := []domain.AgentTileBet{
		f.pendingBet(t, 3, 65_100, 1000, 1.4), // win: +1400
		f.pendingBet(t, 5, 64_000, 800, 1.1),  // loss: -800
		f.pendingBet(t, 7, 65_090, 500, 2.5),  // win: +1250
		f.pendingBet(t, 9, 66_000, 700, 1.8),  // loss: -700
	}
	_ = bets

	require.NoError(t, f.svc.ResolveAllPending(ctx, f.round, 65_110))

	pending, err := f.tileBets.ListPending(ctx, f.round.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Current balance equals starting plus the sum of every resolution
	// delta, and that sum matches the per-bet ledger.
	all, err := f.tileBets.ListByRound(ctx, f.round.ID)
	require.NoError(t, err)
	var sum int64
	for _, b := range all {
		sum += b.ProfitLoss
	}
	assert.Equal(t, int64(1400-800+1250-700), sum)

	bal, err := f.balances.Get(ctx, f.round.ID, f.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, bal.Starting+sum, bal.Current)
	assert.Equal(t, 2, bal.TilesWon)
	assert.Equal(t, 2, bal.TilesLost)
}
