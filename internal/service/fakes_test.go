package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/monarena/monarena/internal/domain"
)

// In-memory fakes for the store, contract, bus, and feed interfaces. They
// mirror the semantics the Postgres stores guarantee: status-guarded
// updates, atomic increments, unique tx hashes.

type fakeRoundStore struct {
	mu     sync.Mutex
	rounds map[uuid.UUID]domain.Round
}

func newFakeRoundStore() *fakeRoundStore {
	return &fakeRoundStore{rounds: make(map[uuid.UUID]domain.Round)}
}

func (s *fakeRoundStore) Create(_ context.Context, round domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	round.CreatedAt = time.Now()
	s.rounds[round.ID] = round
	return nil
}

func (s *fakeRoundStore) GetByID(_ context.Context, id uuid.UUID) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *fakeRoundStore) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.RoundStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok || r.Status != from {
		return domain.ErrInvalidStatus
	}
	r.Status = to
	s.rounds[id] = r
	return nil
}

func (s *fakeRoundStore) SetSettled(_ context.Context, id uuid.UUID, finalPrice float64, winners []uuid.UUID, totalPool, platformCut int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok || r.Status != domain.RoundSettling {
		return domain.ErrInvalidStatus
	}
	r.Status = domain.RoundSettled
	r.FinalPrice = finalPrice
	r.WinnerAgentIDs = winners
	r.TotalPool = totalPool
	r.PlatformCut = platformCut
	s.rounds[id] = r
	return nil
}

func (s *fakeRoundStore) SetCancelled(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return domain.ErrNotFound
	}
	if r.Status.Terminal() {
		return nil
	}
	r.Status = domain.RoundCancelled
	r.CancellationReason = reason
	s.rounds[id] = r
	return nil
}

func (s *fakeRoundStore) LatestNumber(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, r := range s.rounds {
		if r.Number > max {
			max = r.Number
		}
	}
	return max, nil
}

func (s *fakeRoundStore) ListRecent(_ context.Context, limit int) ([]domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAgentStore struct {
	mu     sync.Mutex
	agents map[uuid.UUID]domain.Agent
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{agents: make(map[uuid.UUID]domain.Agent)}
}

func (s *fakeAgentStore) Upsert(_ context.Context, agent domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.agents[agent.ID]; ok {
		agent.TotalWins = existing.TotalWins
		agent.TotalRounds = existing.TotalRounds
	}
	s.agents[agent.ID] = agent
	return nil
}

func (s *fakeAgentStore) List(_ context.Context) ([]domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContractIndex < out[j].ContractIndex })
	return out, nil
}

func (s *fakeAgentStore) GetByID(_ context.Context, id uuid.UUID) (domain.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return domain.Agent{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *fakeAgentStore) IncrementStats(_ context.Context, id uuid.UUID, won bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.TotalRounds++
	if won {
		a.TotalWins++
	}
	s.agents[id] = a
	return nil
}

type balanceKey struct {
	round, agent uuid.UUID
}

type fakeBalanceStore struct {
	mu       sync.Mutex
	balances map[balanceKey]domain.AgentRoundBalance
}

func newFakeBalanceStore() *fakeBalanceStore {
	return &fakeBalanceStore{balances: make(map[balanceKey]domain.AgentRoundBalance)}
}

func (s *fakeBalanceStore) Seed(_ context.Context, roundID, agentID uuid.UUID, starting int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey{roundID, agentID}
	if _, ok := s.balances[key]; ok {
		return nil
	}
	s.balances[key] = domain.AgentRoundBalance{
		RoundID:  roundID,
		AgentID:  agentID,
		Starting: starting,
		Current:  starting,
	}
	return nil
}

func (s *fakeBalanceStore) Get(_ context.Context, roundID, agentID uuid.UUID) (domain.AgentRoundBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[balanceKey{roundID, agentID}]
	if !ok {
		return domain.AgentRoundBalance{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *fakeBalanceStore) ListByRound(_ context.Context, roundID uuid.UUID) ([]domain.AgentRoundBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AgentRoundBalance
	for key, b := range s.balances {
		if key.round == roundID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeBalanceStore) AddToStarting(_ context.Context, roundID, agentID uuid.UUID, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey{roundID, agentID}
	b, ok := s.balances[key]
	if !ok {
		return 0, domain.ErrNotFound
	}
	b.Starting += amount
	b.Current += amount
	s.balances[key] = b
	return b.Starting, nil
}

func (s *fakeBalanceStore) AddAllocated(_ context.Context, roundID, agentID uuid.UUID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey{roundID, agentID}
	b, ok := s.balances[key]
	if !ok {
		return domain.ErrNotFound
	}
	if b.AllocatedToTiles+amount > b.Starting {
		return domain.ErrPoolExceeded
	}
	b.AllocatedToTiles += amount
	s.balances[key] = b
	return nil
}

func (s *fakeBalanceStore) ApplyResolution(_ context.Context, roundID, agentID uuid.UUID, delta int64, won bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey{roundID, agentID}
	b, ok := s.balances[key]
	if !ok {
		return domain.ErrNotFound
	}
	b.Current += delta
	if won {
		b.TilesWon++
	} else {
		b.TilesLost++
	}
	s.balances[key] = b
	return nil
}

func (s *fakeBalanceStore) SetFinalPnL(_ context.Context, roundID, agentID uuid.UUID, pnl int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey{roundID, agentID}
	b, ok := s.balances[key]
	if !ok {
		return domain.ErrNotFound
	}
	b.FinalPnL = &pnl
	s.balances[key] = b
	return nil
}

type fakeUserBetStore struct {
	mu   sync.Mutex
	bets map[uuid.UUID]domain.UserAgentBet
	byTx map[string]uuid.UUID
}

func newFakeUserBetStore() *fakeUserBetStore {
	return &fakeUserBetStore{
		bets: make(map[uuid.UUID]domain.UserAgentBet),
		byTx: make(map[string]uuid.UUID),
	}
}

func (s *fakeUserBetStore) Create(_ context.Context, bet domain.UserAgentBet) (domain.UserAgentBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byTx[bet.TxHash]; ok {
		return domain.UserAgentBet{}, domain.ErrDuplicateBet
	}
	if bet.ID == uuid.Nil {
		bet.ID = uuid.New()
	}
	bet.Status = domain.BetPending
	bet.CreatedAt = time.Now()
	s.bets[bet.ID] = bet
	s.byTx[bet.TxHash] = bet.ID
	return bet, nil
}

func (s *fakeUserBetStore) GetByTxHash(_ context.Context, txHash string) (domain.UserAgentBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byTx[txHash]
	if !ok {
		return domain.UserAgentBet{}, domain.ErrNotFound
	}
	return s.bets[id], nil
}

func (s *fakeUserBetStore) ListByRound(_ context.Context, roundID uuid.UUID) ([]domain.UserAgentBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.UserAgentBet
	for _, b := range s.bets {
		if b.RoundID == roundID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeUserBetStore) ListByUser(_ context.Context, userID, roundID uuid.UUID) ([]domain.UserAgentBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.UserAgentBet
	for _, b := range s.bets {
		if b.UserID == userID && b.RoundID == roundID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeUserBetStore) ListByStatus(_ context.Context, roundID uuid.UUID, status domain.BetStatus) ([]domain.UserAgentBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.UserAgentBet
	for _, b := range s.bets {
		if b.RoundID == roundID && b.Status == status {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeUserBetStore) MarkRoundOutcome(_ context.Context, roundID uuid.UUID, winners []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	winnerSet := make(map[uuid.UUID]bool, len(winners))
	for _, w := range winners {
		winnerSet[w] = true
	}
	for id, b := range s.bets {
		if b.RoundID != roundID || b.Status != domain.BetPending {
			continue
		}
		if winnerSet[b.AgentID] {
			b.Status = domain.BetWon
		} else {
			b.Status = domain.BetLost
		}
		s.bets[id] = b
	}
	return nil
}

func (s *fakeUserBetStore) SetPayout(_ context.Context, betID uuid.UUID, amount int64, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[betID]
	if !ok {
		return domain.ErrNotFound
	}
	b.PayoutAmount = amount
	b.PayoutTxHash = txHash
	s.bets[betID] = b
	return nil
}

type fakeTileBetStore struct {
	mu   sync.Mutex
	bets map[uuid.UUID]domain.AgentTileBet
}

func newFakeTileBetStore() *fakeTileBetStore {
	return &fakeTileBetStore{bets: make(map[uuid.UUID]domain.AgentTileBet)}
}

func (s *fakeTileBetStore) Create(_ context.Context, bet domain.AgentTileBet) (domain.AgentTileBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bet.ID == uuid.Nil {
		bet.ID = uuid.New()
	}
	bet.Status = domain.BetPending
	bet.CreatedAt = time.Now()
	s.bets[bet.ID] = bet
	return bet, nil
}

func (s *fakeTileBetStore) GetByID(_ context.Context, id uuid.UUID) (domain.AgentTileBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.AgentTileBet{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *fakeTileBetStore) ListByRound(_ context.Context, roundID uuid.UUID) ([]domain.AgentTileBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AgentTileBet
	for _, b := range s.bets {
		if b.RoundID == roundID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeTileBetStore) ListPendingDue(_ context.Context, roundID uuid.UUID, maxCol int) ([]domain.AgentTileBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AgentTileBet
	for _, b := range s.bets {
		if b.RoundID == roundID && b.Status == domain.BetPending && b.Col <= maxCol {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeTileBetStore) ListPending(_ context.Context, roundID uuid.UUID) ([]domain.AgentTileBet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AgentTileBet
	for _, b := range s.bets {
		if b.RoundID == roundID && b.Status == domain.BetPending {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeTileBetStore) Resolve(_ context.Context, id uuid.UUID, status domain.BetStatus, profitLoss int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if b.Status != domain.BetPending {
		return false, nil
	}
	b.Status = status
	b.ProfitLoss = profitLoss
	s.bets[id] = b
	return true, nil
}

// fakeContract records calls and mints deterministic tx hashes.
type fakeContract struct {
	mu    sync.Mutex
	calls []string
	seq   int

	failRecordBet   bool
	failLockBetting bool
	depositErr      error
}

func newFakeContract() *fakeContract {
	return &fakeContract{}
}

func (c *fakeContract) record(call string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	c.seq++
	return fmt.Sprintf("0xtx%04d", c.seq)
}

func (c *fakeContract) callNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeContract) CreateRound(_ context.Context, roundRef string, _, _ time.Time) (string, error) {
	return c.record("createRound:" + roundRef), nil
}

func (c *fakeContract) LockBetting(_ context.Context, roundRef string) (string, error) {
	if c.failLockBetting {
		return "", domain.ErrTxFailed
	}
	return c.record("lockBetting:" + roundRef), nil
}

func (c *fakeContract) RecordAgentBet(_ context.Context, roundRef string, agentIndex int, _ int64) (string, error) {
	if c.failRecordBet {
		return "", domain.ErrTxFailed
	}
	return c.record(fmt.Sprintf("recordAgentBet:%s:%d", roundRef, agentIndex)), nil
}

func (c *fakeContract) SettleRound(_ context.Context, roundRef string, _ [domain.AgentCount]int64) (string, error) {
	return c.record("settleRound:" + roundRef), nil
}

func (c *fakeContract) CancelRound(_ context.Context, roundRef string, _ string) (string, error) {
	return c.record("cancelRound:" + roundRef), nil
}

func (c *fakeContract) ClaimWinnings(_ context.Context, roundRef string, user string) (string, error) {
	return c.record("claimWinnings:" + roundRef + ":" + user), nil
}

func (c *fakeContract) AgentPool(context.Context, string, int) (int64, error) { return 0, nil }
func (c *fakeContract) RoundStatus(context.Context, string) (uint8, error)   { return 0, nil }
func (c *fakeContract) Winners(context.Context, string) ([]uint8, error)     { return nil, nil }
func (c *fakeContract) UserBet(context.Context, string, string, int) (int64, error) {
	return 0, nil
}

func (c *fakeContract) VerifyDeposit(context.Context, string) error {
	return c.depositErr
}

type publishedEvent struct {
	Event   string
	RoundID uuid.UUID
	Data    map[string]any
}

type fakeBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

func newFakeBus() *fakeBus {
	return &fakeBus{}
}

func (b *fakeBus) Publish(_ context.Context, event string, roundID uuid.UUID, data map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{Event: event, RoundID: roundID, Data: data})
	return nil
}

func (b *fakeBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Event)
	}
	return out
}

type fakeFeed struct {
	mu    sync.Mutex
	price float64
	err   error
}

func (f *fakeFeed) setPrice(p float64) {
	f.mu.Lock()
	f.price = p
	f.mu.Unlock()
}

func (f *fakeFeed) Current() (domain.PriceTick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.PriceTick{}, f.err
	}
	return domain.PriceTick{Price: f.price, Timestamp: time.Now()}, nil
}

func (f *fakeFeed) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err == nil
}

type fakeRecorder struct {
	mu         sync.Mutex
	subscribed map[uuid.UUID]bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{subscribed: make(map[uuid.UUID]bool)}
}

func (r *fakeRecorder) SubscribeRound(_ context.Context, roundID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribed[roundID] = true
}

func (r *fakeRecorder) UnsubscribeRound(roundID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribed, roundID)
}

// Compile-time interface checks for the fakes.
var (
	_ domain.RoundStore    = (*fakeRoundStore)(nil)
	_ domain.AgentStore    = (*fakeAgentStore)(nil)
	_ domain.BalanceStore  = (*fakeBalanceStore)(nil)
	_ domain.UserBetStore  = (*fakeUserBetStore)(nil)
	_ domain.TileBetStore  = (*fakeTileBetStore)(nil)
	_ domain.RoundContract = (*fakeContract)(nil)
	_ domain.EventBus      = (*fakeBus)(nil)
	_ domain.PriceFeed     = (*fakeFeed)(nil)
	_ RoundRecorder        = (*fakeRecorder)(nil)
)
