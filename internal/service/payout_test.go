package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monarena/monarena/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type payoutFixture struct {
	rounds   *fakeRoundStore
	balances *fakeBalanceStore
	userBets *fakeUserBetStore
	contract *fakeContract
	svc      *PayoutService

	roundID uuid.UUID
	agents  [4]uuid.UUID
}

func newPayoutFixture(t *testing.T) *payoutFixture {
	t.Helper()
	f := &payoutFixture{
		rounds:   newFakeRoundStore(),
		balances: newFakeBalanceStore(),
		userBets: newFakeUserBetStore(),
		contract: newFakeContract(),
		roundID:  uuid.New(),
	}
	for i := range f.agents {
		f.agents[i] = uuid.New()
	}
	f.svc = NewPayoutService(f.rounds, f.balances, f.userBets, f.contract, testLogger())

	require.NoError(t, f.rounds.Create(context.Background(), domain.Round{
		ID:              f.roundID,
		Number:          1,
		ContractRoundID: "round-1",
		Status:          domain.RoundSettling,
	}))
	return f
}

func (f *payoutFixture) setPnL(t *testing.T, pnls [4]int64) {
	t.Helper()
	ctx := context.Background()
	for i, agentID := range f.agents {
		require.NoError(t, f.balances.Seed(ctx, f.roundID, agentID, 1000))
		require.NoError(t, f.balances.SetFinalPnL(ctx, f.roundID, agentID, pnls[i]))
	}
}

func (f *payoutFixture) addUserBet(t *testing.T, userID uuid.UUID, agentID uuid.UUID, amount int64, tx string) domain.UserAgentBet {
	t.Helper()
	bet, err := f.userBets.Create(context.Background(), domain.UserAgentBet{
		UserID:      userID,
		UserAddress: "0xuser-" + tx,
		RoundID:     f.roundID,
		AgentID:     agentID,
		Amount:      amount,
		TxHash:      tx,
	})
	require.NoError(t, err)
	return bet
}

func TestDetermineWinnersTies(t *testing.T) {
	f := newPayoutFixture(t)
	f.setPnL(t, [4]int64{100, 100, 50, -20})

	winners, err := f.svc.DetermineWinners(context.Background(), f.roundID)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uuid.UUID{f.agents[0], f.agents[1]}, winners)
}

func TestDetermineWinnersAllNegative(t *testing.T) {
	f := newPayoutFixture(t)
	f.setPnL(t, [4]int64{-300, -50, -50, -800})

	winners, err := f.svc.DetermineWinners(context.Background(), f.roundID)
	require.NoError(t, err)

	// The least-negative P&L wins; there is no zero floor.
	assert.ElementsMatch(t, []uuid.UUID{f.agents[1], f.agents[2]}, winners)
}

func TestDetermineWinnersMissingPnL(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()
	require.NoError(t, f.balances.Seed(ctx, f.roundID, f.agents[0], 1000))

	_, err := f.svc.DetermineWinners(ctx, f.roundID)
	assert.Error(t, err)
}

func TestCalculateAgentPnL(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()
	require.NoError(t, f.balances.Seed(ctx, f.roundID, f.agents[0], 1000))
	require.NoError(t, f.balances.ApplyResolution(ctx, f.roundID, f.agents[0], 250, true))
	require.NoError(t, f.balances.ApplyResolution(ctx, f.roundID, f.agents[0], -100, false))

	pnl, err := f.svc.CalculateAgentPnL(ctx, f.roundID, f.agents[0])
	require.NoError(t, err)
	assert.Equal(t, int64(150), pnl)

	// Recomputation overwrites with the same value.
	again, err := f.svc.CalculateAgentPnL(ctx, f.roundID, f.agents[0])
	require.NoError(t, err)
	assert.Equal(t, pnl, again)

	bal, err := f.balances.Get(ctx, f.roundID, f.agents[0])
	require.NoError(t, err)
	require.NotNil(t, bal.FinalPnL)
	assert.Equal(t, int64(150), *bal.FinalPnL)
}

func TestPoolsFeeTruncation(t *testing.T) {
	f := newPayoutFixture(t)
	f.addUserBet(t, uuid.New(), f.agents[0], 701, "0xa")
	f.addUserBet(t, uuid.New(), f.agents[1], 300, "0xb")

	pools, err := f.svc.Pools(context.Background(), f.roundID)
	require.NoError(t, err)

	// 5% of 1001 truncates to 50; the dust stays with the platform.
	assert.Equal(t, int64(1001), pools.Total)
	assert.Equal(t, int64(50), pools.PlatformCut)
	assert.Equal(t, int64(951), pools.PrizePool)
	assert.Equal(t, int64(701), pools.ByAgent[f.agents[0]])
	assert.Equal(t, int64(300), pools.ByAgent[f.agents[1]])
}

func TestWinnerSubPoolsProportional(t *testing.T) {
	f := newPayoutFixture(t)
	f.addUserBet(t, uuid.New(), f.agents[0], 700, "0xa")
	f.addUserBet(t, uuid.New(), f.agents[1], 300, "0xb")
	f.addUserBet(t, uuid.New(), f.agents[2], 1000, "0xc")

	pools, err := f.svc.Pools(context.Background(), f.roundID)
	require.NoError(t, err)
	assert.Equal(t, int64(1900), pools.PrizePool)

	sub := winnerSubPools(pools, []uuid.UUID{f.agents[0], f.agents[1]})
	assert.Equal(t, int64(1330), sub[f.agents[0]]) // 1900 * 700 / 1000
	assert.Equal(t, int64(570), sub[f.agents[1]])  // 1900 * 300 / 1000
}

func TestWinnerSubPoolsSingleWinner(t *testing.T) {
	f := newPayoutFixture(t)
	f.addUserBet(t, uuid.New(), f.agents[0], 500, "0xa")
	f.addUserBet(t, uuid.New(), f.agents[1], 500, "0xb")

	pools, err := f.svc.Pools(context.Background(), f.roundID)
	require.NoError(t, err)

	sub := winnerSubPools(pools, []uuid.UUID{f.agents[0]})
	assert.Equal(t, pools.PrizePool, sub[f.agents[0]])
}

func TestWinnerSubPoolsUnbackedWinners(t *testing.T) {
	f := newPayoutFixture(t)
	f.addUserBet(t, uuid.New(), f.agents[2], 1000, "0xa")

	pools, err := f.svc.Pools(context.Background(), f.roundID)
	require.NoError(t, err)

	// Two tied winners, neither backed by any user: nothing to distribute.
	sub := winnerSubPools(pools, []uuid.UUID{f.agents[0], f.agents[1]})
	assert.Empty(t, sub)
}

func TestCalculateUserPayout(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	f.addUserBet(t, alice, f.agents[0], 200, "0xalice")
	f.addUserBet(t, uuid.New(), f.agents[0], 300, "0xbob")
	f.addUserBet(t, uuid.New(), f.agents[1], 500, "0xcarol")

	// Total 1000, cut 50, prize 950. Single winner: agent 0 backed by 500.
	require.NoError(t, f.rounds.UpdateStatus(ctx, f.roundID, domain.RoundSettling, domain.RoundSettled))
	r, err := f.rounds.GetByID(ctx, f.roundID)
	require.NoError(t, err)
	r.WinnerAgentIDs = []uuid.UUID{f.agents[0]}
	f.rounds.rounds[f.roundID] = r

	payout, err := f.svc.CalculateUserPayout(ctx, alice, f.roundID)
	require.NoError(t, err)
	assert.Equal(t, int64(380), payout) // 200 * 950 / 500
}

func TestCalculateUserPayoutMultipleWinningBets(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	f.addUserBet(t, alice, f.agents[0], 400, "0xa1")
	f.addUserBet(t, alice, f.agents[1], 100, "0xa2")
	f.addUserBet(t, uuid.New(), f.agents[1], 100, "0xb1")
	f.addUserBet(t, uuid.New(), f.agents[2], 400, "0xc1")

	// Total 1000, prize 950. Winners 0 and 1, combined backing 600.
	// Sub-pools: agent0 = 950*400/600 = 633, agent1 = 950*200/600 = 316.
	r, err := f.rounds.GetByID(ctx, f.roundID)
	require.NoError(t, err)
	r.WinnerAgentIDs = []uuid.UUID{f.agents[0], f.agents[1]}
	f.rounds.rounds[f.roundID] = r

	payout, err := f.svc.CalculateUserPayout(ctx, alice, f.roundID)
	require.NoError(t, err)
	// Alice holds all of agent0's backing (633) plus half of agent1's
	// sub-pool (316*100/200 = 158).
	assert.Equal(t, int64(633+158), payout)
}

func TestCalculateUserPayoutNoWinners(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	f.addUserBet(t, alice, f.agents[0], 200, "0xalice")

	payout, err := f.svc.CalculateUserPayout(ctx, alice, f.roundID)
	require.NoError(t, err)
	assert.Zero(t, payout)
}

func TestMarkWinningBets(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	winBet := f.addUserBet(t, uuid.New(), f.agents[0], 100, "0xwin")
	loseBet := f.addUserBet(t, uuid.New(), f.agents[1], 100, "0xlose")

	require.NoError(t, f.svc.MarkWinningBets(ctx, f.roundID, []uuid.UUID{f.agents[0]}))

	got, err := f.userBets.GetByTxHash(ctx, winBet.TxHash)
	require.NoError(t, err)
	assert.Equal(t, domain.BetWon, got.Status)

	got, err = f.userBets.GetByTxHash(ctx, loseBet.TxHash)
	require.NoError(t, err)
	assert.Equal(t, domain.BetLost, got.Status)
}

func TestProcessPayouts(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	f.addUserBet(t, uuid.New(), f.agents[0], 200, "0xalice")
	f.addUserBet(t, uuid.New(), f.agents[0], 300, "0xbob")
	f.addUserBet(t, uuid.New(), f.agents[1], 500, "0xcarol")

	require.NoError(t, f.svc.MarkWinningBets(ctx, f.roundID, []uuid.UUID{f.agents[0]}))

	round := domain.Round{
		ID:              f.roundID,
		ContractRoundID: "round-1",
		WinnerAgentIDs:  []uuid.UUID{f.agents[0]},
		StartTime:       time.Now(),
	}
	require.NoError(t, f.svc.ProcessPayouts(ctx, round))

	// Prize pool 950, agent0 backed by 500: payouts 380 and 570.
	alice, err := f.userBets.GetByTxHash(ctx, "0xalice")
	require.NoError(t, err)
	assert.Equal(t, int64(380), alice.PayoutAmount)
	assert.NotEmpty(t, alice.PayoutTxHash)

	bob, err := f.userBets.GetByTxHash(ctx, "0xbob")
	require.NoError(t, err)
	assert.Equal(t, int64(570), bob.PayoutAmount)

	carol, err := f.userBets.GetByTxHash(ctx, "0xcarol")
	require.NoError(t, err)
	assert.Zero(t, carol.PayoutAmount)
	assert.Empty(t, carol.PayoutTxHash)
}

func TestProcessPayoutsClaimsOncePerUser(t *testing.T) {
	f := newPayoutFixture(t)
	ctx := context.Background()

	// Alice backed the winner twice; the contract claim releases her whole
	// round balance at once, so only one claim may go out.
	alice := uuid.New()
	for _, tx := range []string{"0xa1", "0xa2"} {
		_, err := f.userBets.Create(ctx, domain.UserAgentBet{
			UserID:      alice,
			UserAddress: "0xalice",
			RoundID:     f.roundID,
			AgentID:     f.agents[0],
			Amount:      250,
			TxHash:      tx,
		})
		require.NoError(t, err)
	}
	f.addUserBet(t, uuid.New(), f.agents[1], 500, "0xbob")

	require.NoError(t, f.svc.MarkWinningBets(ctx, f.roundID, []uuid.UUID{f.agents[0]}))

	round := domain.Round{
		ID:              f.roundID,
		ContractRoundID: "round-1",
		WinnerAgentIDs:  []uuid.UUID{f.agents[0]},
		StartTime:       time.Now(),
	}
	require.NoError(t, f.svc.ProcessPayouts(ctx, round))

	var claims int
	for _, call := range f.contract.callNames() {
		if call == "claimWinnings:round-1:0xalice" {
			claims++
		}
	}
	assert.Equal(t, 1, claims)

	// Both bets still get their share recorded, under the same claim tx.
	a1, err := f.userBets.GetByTxHash(ctx, "0xa1")
	require.NoError(t, err)
	a2, err := f.userBets.GetByTxHash(ctx, "0xa2")
	require.NoError(t, err)
	assert.Equal(t, int64(475), a1.PayoutAmount) // 250 * 950 / 500
	assert.Equal(t, int64(475), a2.PayoutAmount)
	assert.NotEmpty(t, a1.PayoutTxHash)
	assert.Equal(t, a1.PayoutTxHash, a2.PayoutTxHash)
}
