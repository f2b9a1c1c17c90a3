package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monarena/monarena/internal/domain"
)

type userBettingFixture struct {
	rounds   *fakeRoundStore
	userBets *fakeUserBetStore
	balances *fakeBalanceStore
	contract *fakeContract
	bus      *fakeBus
	svc      *UserBettingService

	roundID uuid.UUID
	agentID uuid.UUID
}

func newUserBettingFixture(t *testing.T) *userBettingFixture {
	t.Helper()
	f := &userBettingFixture{
		rounds:   newFakeRoundStore(),
		userBets: newFakeUserBetStore(),
		balances: newFakeBalanceStore(),
		contract: newFakeContract(),
		bus:      newFakeBus(),
		roundID:  uuid.New(),
		agentID:  uuid.New(),
	}
	f.svc = NewUserBettingService(f.rounds, f.userBets, f.balances, f.contract, f.bus, 100, testLogger())

	ctx := context.Background()
	require.NoError(t, f.rounds.Create(ctx, domain.Round{
		ID:              f.roundID,
		Number:          1,
		ContractRoundID: "round-1",
		Status:          domain.RoundBetting,
	}))
	require.NoError(t, f.balances.Seed(ctx, f.roundID, f.agentID, 1000))
	return f
}

func TestPlaceBetGrowsAgentPool(t *testing.T) {
	f := newUserBettingFixture(t)
	ctx := context.Background()

	bet, err := f.svc.PlaceBet(ctx, uuid.New(), "0xabc", f.roundID, f.agentID, 500, "0xdeposit1")
	require.NoError(t, err)
	assert.Equal(t, domain.BetPending, bet.Status)
	assert.Equal(t, int64(500), bet.Amount)

	bal, err := f.balances.Get(ctx, f.roundID, f.agentID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), bal.Starting)
	assert.Equal(t, int64(1500), bal.Current)

	assert.Contains(t, f.bus.names(), domain.EventAgentPoolUpdate)
}

func TestPlaceBetDuplicateTxHashIsIdempotent(t *testing.T) {
	f := newUserBettingFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := f.svc.PlaceBet(ctx, userID, "0xabc", f.roundID, f.agentID, 500, "0xdeposit1")
	require.NoError(t, err)

	// Resubmitting the same deposit succeeds and returns the original bet.
	second, err := f.svc.PlaceBet(ctx, userID, "0xabc", f.roundID, f.agentID, 500, "0xdeposit1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	bets, err := f.userBets.ListByRound(ctx, f.roundID)
	require.NoError(t, err)
	assert.Len(t, bets, 1)

	// The pool was only grown once.
	bal, err := f.balances.Get(ctx, f.roundID, f.agentID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), bal.Starting)
}

func TestPlaceBetBelowMinimum(t *testing.T) {
	f := newUserBettingFixture(t)

	_, err := f.svc.PlaceBet(context.Background(), uuid.New(), "0xabc", f.roundID, f.agentID, 99, "0xdeposit1")
	assert.ErrorIs(t, err, domain.ErrBetTooSmall)

	bets, listErr := f.userBets.ListByRound(context.Background(), f.roundID)
	require.NoError(t, listErr)
	assert.Empty(t, bets)
}

func TestPlaceBetOutsideBettingWindow(t *testing.T) {
	f := newUserBettingFixture(t)
	ctx := context.Background()
	require.NoError(t, f.rounds.UpdateStatus(ctx, f.roundID, domain.RoundBetting, domain.RoundTrading))

	_, err := f.svc.PlaceBet(ctx, uuid.New(), "0xabc", f.roundID, f.agentID, 500, "0xdeposit1")
	assert.ErrorIs(t, err, domain.ErrBettingClosed)
}

func TestPlaceBetUnverifiedDeposit(t *testing.T) {
	f := newUserBettingFixture(t)
	f.contract.depositErr = domain.ErrTxFailed

	_, err := f.svc.PlaceBet(context.Background(), uuid.New(), "0xabc", f.roundID, f.agentID, 500, "0xdeposit1")
	assert.ErrorIs(t, err, domain.ErrTxFailed)

	bets, listErr := f.userBets.ListByRound(context.Background(), f.roundID)
	require.NoError(t, listErr)
	assert.Empty(t, bets)
}

func TestPlaceBetUnknownRound(t *testing.T) {
	f := newUserBettingFixture(t)

	_, err := f.svc.PlaceBet(context.Background(), uuid.New(), "0xabc", uuid.New(), f.agentID, 500, "0xdeposit1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
