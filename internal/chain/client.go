// Package chain talks to the on-chain round manager contract.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/monarena/monarena/internal/domain"
)

// roundManagerABI is the subset of the round manager contract we call.
const roundManagerABI = `[
	{"name":"createRound","type":"function","inputs":[{"name":"roundRef","type":"bytes32"},{"name":"bettingEnd","type":"uint64"},{"name":"roundEnd","type":"uint64"}],"outputs":[]},
	{"name":"lockBetting","type":"function","inputs":[{"name":"roundRef","type":"bytes32"}],"outputs":[]},
	{"name":"recordAgentBet","type":"function","inputs":[{"name":"roundRef","type":"bytes32"},{"name":"agentIndex","type":"uint8"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"settleRound","type":"function","inputs":[{"name":"roundRef","type":"bytes32"},{"name":"pnls","type":"int256[4]"}],"outputs":[]},
	{"name":"cancelRound","type":"function","inputs":[{"name":"roundRef","type":"bytes32"},{"name":"reason","type":"string"}],"outputs":[]},
	{"name":"claimWinnings","type":"function","inputs":[{"name":"roundRef","type":"bytes32"},{"name":"user","type":"address"}],"outputs":[]},
	{"name":"agentPool","type":"function","stateMutability":"view","inputs":[{"name":"roundRef","type":"bytes32"},{"name":"agentIndex","type":"uint8"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"roundStatus","type":"function","stateMutability":"view","inputs":[{"name":"roundRef","type":"bytes32"}],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"winners","type":"function","stateMutability":"view","inputs":[{"name":"roundRef","type":"bytes32"}],"outputs":[{"name":"","type":"uint8[]"}]},
	{"name":"userBet","type":"function","stateMutability":"view","inputs":[{"name":"roundRef","type":"bytes32"},{"name":"user","type":"address"},{"name":"agentIndex","type":"uint8"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const (
	// weiPerUnit converts ledger minor units (1e9 per native token) to wei
	// (1e18 per native token).
	weiPerUnit = 1_000_000_000

	// writeAttempts is the per-call retry budget for contract writes.
	writeAttempts = 3

	// writeBackoffBase is the delay before retry n, multiplied by 3 each
	// attempt: 1s, 3s, 9s.
	writeBackoffBase = time.Second

	// minedTimeout bounds how long a write waits for its receipt.
	minedTimeout = 90 * time.Second
)

// ClientConfig holds connection parameters for the chain client.
type ClientConfig struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64
	Key             KeyConfig
}

// Client implements domain.RoundContract against the round manager contract
// using a bound ABI. Writes are serialized under a mutex so concurrent agent
// placements cannot race on the admin account nonce.
type Client struct {
	eth      *ethclient.Client
	contract *bind.BoundContract
	addr     common.Address
	chainID  *big.Int
	key      *bind.TransactOpts
	logger   *slog.Logger

	writeMu sync.Mutex
}

// New dials the RPC endpoint, loads the admin key, and binds the contract.
func New(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	keyHex, err := LoadKey(cfg.Key)
	if err != nil {
		return nil, err
	}
	privKey, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid admin key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial rpc: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	opts, err := bind.NewKeyedTransactorWithChainID(privKey, chainID)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: transactor: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(roundManagerABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: parse abi: %w", err)
	}

	addr := common.HexToAddress(cfg.ContractAddress)
	return &Client{
		eth:      eth,
		contract: bind.NewBoundContract(addr, parsed, eth, eth, eth),
		addr:     addr,
		chainID:  chainID,
		key:      opts,
		logger:   logger.With(slog.String("component", "chain_client")),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() error {
	c.eth.Close()
	return nil
}

// refBytes maps a round reference string onto the contract's bytes32 key.
func refBytes(roundRef string) [32]byte {
	return ethcrypto.Keccak256Hash([]byte(roundRef))
}

// toWei converts ledger minor units to wei.
func toWei(amount int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(amount), big.NewInt(weiPerUnit))
}

// fromWei converts wei to ledger minor units, truncating sub-unit dust.
func fromWei(wei *big.Int) int64 {
	return new(big.Int).Div(wei, big.NewInt(weiPerUnit)).Int64()
}

// transact submits one contract write, waits for it to be mined, and checks
// the receipt. Failed sends and missing receipts are retried with backoff;
// a mined-but-reverted transaction is a hard domain.ErrTxFailed.
func (c *Client) transact(ctx context.Context, method string, args ...any) (string, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var lastErr error
	backoff := writeBackoffBase
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 3
		}

		txHash, err := c.submitOnce(ctx, method, args...)
		if err == nil {
			return txHash, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// A revert will not pass on retry.
		if isRevert(err) {
			return "", err
		}
		lastErr = err
		c.logger.Warn("contract write failed, retrying",
			slog.String("method", method),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	return "", fmt.Errorf("chain: %s: attempts exhausted: %w", method, lastErr)
}

func (c *Client) submitOnce(ctx context.Context, method string, args ...any) (string, error) {
	opts := *c.key
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, method, args...)
	if err != nil {
		return "", fmt.Errorf("chain: %s: send: %w", method, err)
	}

	minedCtx, cancel := context.WithTimeout(ctx, minedTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(minedCtx, c.eth, tx)
	if err != nil {
		return "", fmt.Errorf("chain: %s: wait mined %s: %w", method, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("chain: %s: tx %s: %w", method, tx.Hash().Hex(), domain.ErrTxFailed)
	}
	return tx.Hash().Hex(), nil
}

func isRevert(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, domain.ErrTxFailed.Error())
}

// CreateRound opens a round window on the contract.
func (c *Client) CreateRound(ctx context.Context, roundRef string, bettingEnd, roundEnd time.Time) (string, error) {
	return c.transact(ctx, "createRound", refBytes(roundRef), uint64(bettingEnd.Unix()), uint64(roundEnd.Unix()))
}

// LockBetting closes the user betting window on the contract.
func (c *Client) LockBetting(ctx context.Context, roundRef string) (string, error) {
	return c.transact(ctx, "lockBetting", refBytes(roundRef))
}

// RecordAgentBet records one synthetic tile allocation for audit.
func (c *Client) RecordAgentBet(ctx context.Context, roundRef string, agentIndex int, amount int64) (string, error) {
	return c.transact(ctx, "recordAgentBet", refBytes(roundRef), uint8(agentIndex), toWei(amount))
}

// SettleRound submits the final per-agent P&L vector; the contract derives
// winners and releases the prize pool for claims.
func (c *Client) SettleRound(ctx context.Context, roundRef string, pnls [domain.AgentCount]int64) (string, error) {
	var vec [domain.AgentCount]*big.Int
	for i, pnl := range pnls {
		vec[i] = toWei(pnl)
	}
	return c.transact(ctx, "settleRound", refBytes(roundRef), vec)
}

// CancelRound voids a round on the contract, enabling refunds.
func (c *Client) CancelRound(ctx context.Context, roundRef string, reason string) (string, error) {
	return c.transact(ctx, "cancelRound", refBytes(roundRef), reason)
}

// ClaimWinnings pushes a settled user's payout from the contract.
func (c *Client) ClaimWinnings(ctx context.Context, roundRef string, userAddress string) (string, error) {
	return c.transact(ctx, "claimWinnings", refBytes(roundRef), common.HexToAddress(userAddress))
}

func (c *Client) call(ctx context.Context, out *[]any, method string, args ...any) error {
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, out, method, args...); err != nil {
		return fmt.Errorf("chain: call %s: %w", method, err)
	}
	return nil
}

// AgentPool returns one agent's staked pool in ledger minor units.
func (c *Client) AgentPool(ctx context.Context, roundRef string, agentIndex int) (int64, error) {
	var out []any
	if err := c.call(ctx, &out, "agentPool", refBytes(roundRef), uint8(agentIndex)); err != nil {
		return 0, err
	}
	pool, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain: agentPool: unexpected output type %T", out[0])
	}
	return fromWei(pool), nil
}

// RoundStatus returns the contract-side round status code.
func (c *Client) RoundStatus(ctx context.Context, roundRef string) (uint8, error) {
	var out []any
	if err := c.call(ctx, &out, "roundStatus", refBytes(roundRef)); err != nil {
		return 0, err
	}
	status, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: roundStatus: unexpected output type %T", out[0])
	}
	return status, nil
}

// Winners returns the winning agent slot indices recorded at settlement.
func (c *Client) Winners(ctx context.Context, roundRef string) ([]uint8, error) {
	var out []any
	if err := c.call(ctx, &out, "winners", refBytes(roundRef)); err != nil {
		return nil, err
	}
	winners, ok := out[0].([]uint8)
	if !ok {
		return nil, fmt.Errorf("chain: winners: unexpected output type %T", out[0])
	}
	return winners, nil
}

// UserBet returns one user's stake on an agent in ledger minor units.
func (c *Client) UserBet(ctx context.Context, roundRef string, userAddress string, agentIndex int) (int64, error) {
	var out []any
	if err := c.call(ctx, &out, "userBet", refBytes(roundRef), common.HexToAddress(userAddress), uint8(agentIndex)); err != nil {
		return 0, err
	}
	bet, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain: userBet: unexpected output type %T", out[0])
	}
	return fromWei(bet), nil
}

// VerifyDeposit confirms that a user deposit transaction was mined
// successfully and targeted the round manager contract. A mined transaction
// to any other recipient is rejected; a tx hash alone proves nothing about
// where the funds went.
func (c *Client) VerifyDeposit(ctx context.Context, txHash string) error {
	hash := common.HexToHash(txHash)
	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return fmt.Errorf("chain: verify deposit %s: %w", txHash, err)
	}
	tx, _, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("chain: verify deposit %s: %w", txHash, err)
	}
	return checkDeposit(receipt, tx, c.addr)
}

// checkDeposit validates a mined deposit: the receipt must be successful and
// the transaction recipient must be the round manager contract. Contract
// creations have a nil recipient and are rejected.
func checkDeposit(receipt *types.Receipt, tx *types.Transaction, contract common.Address) error {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("chain: deposit %s: %w", tx.Hash().Hex(), domain.ErrTxFailed)
	}
	to := tx.To()
	if to == nil || *to != contract {
		return fmt.Errorf("chain: deposit %s: recipient is not the round contract: %w", tx.Hash().Hex(), domain.ErrTxFailed)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RoundContract = (*Client)(nil)
