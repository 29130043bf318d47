package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"nftmint/internal/logging"
)

// Backend is the subset of *ethclient.Client the wrapper relies on.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

var _ Backend = (*ethclient.Client)(nil)

// Observer is told about every RPC round trip, e.g. to feed metrics.
type Observer func(op string, took time.Duration, err error)

type Config struct {
	RPCURL string
	// RequestTimeout bounds each individual RPC call. Zero disables it.
	RequestTimeout time.Duration
	// PollInterval is the receipt polling period.
	PollInterval time.Duration
	// ReceiptTimeout bounds WaitForTransaction. Zero waits for the caller's context only.
	ReceiptTimeout time.Duration
	// MissingPolls is how many consecutive polls the node may not know the
	// transaction before it is reported as dropped. Zero disables the check.
	MissingPolls int
}

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMissingPolls = 15
)

// Client is a thin wrapper over one JSON-RPC endpoint. Create it once at
// process start and pass it to whatever needs chain access.
type Client struct {
	backend  Backend
	cfg      Config
	logger   logging.Logger
	observer Observer
}

type Option func(*Client)

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Dial connects to cfg.RPCURL.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, classify("dial", err)
	}
	return NewClient(cli, cfg, opts...), nil
}

// NewClient wraps an existing backend, mostly for tests.
func NewClient(backend Backend, cfg Config, opts ...Option) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MissingPolls < 0 {
		cfg.MissingPolls = 0
	}
	c := &Client{backend: backend, cfg: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
}

// call runs fn under the per-request timeout and reports it to the observer.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	if c.observer != nil {
		c.observer(op, time.Since(start), err)
	}
	return err
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.call(ctx, "eth_blockNumber", func(ctx context.Context) (err error) {
		n, err = c.backend.BlockNumber(ctx)
		return err
	})
	return n, classify("eth_blockNumber", err)
}

// Call performs a read-only eth_call against the latest block.
func (c *Client) Call(ctx context.Context, contract common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := c.call(ctx, "eth_call", func(ctx context.Context) (err error) {
		out, err = c.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
		return err
	})
	return out, classify("eth_call", err)
}

func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	var code []byte
	err := c.call(ctx, "eth_getCode", func(ctx context.Context) (err error) {
		code, err = c.backend.CodeAt(ctx, addr, nil)
		return err
	})
	return code, classify("eth_getCode", err)
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.call(ctx, "eth_estimateGas", func(ctx context.Context) (err error) {
		gas, err = c.backend.EstimateGas(ctx, msg)
		return err
	})
	return gas, classify("eth_estimateGas", err)
}

func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.call(ctx, "eth_gasPrice", func(ctx context.Context) (err error) {
		price, err = c.backend.SuggestGasPrice(ctx)
		return err
	})
	return price, classify("eth_gasPrice", err)
}

func (c *Client) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	var tip *big.Int
	err := c.call(ctx, "eth_maxPriorityFeePerGas", func(ctx context.Context) (err error) {
		tip, err = c.backend.SuggestGasTipCap(ctx)
		return err
	})
	return tip, classify("eth_maxPriorityFeePerGas", err)
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.call(ctx, "eth_chainId", func(ctx context.Context) (err error) {
		id, err = c.backend.ChainID(ctx)
		return err
	})
	return id, classify("eth_chainId", err)
}

// ErrChainIDMismatch means the endpoint serves a different chain than configured.
var ErrChainIDMismatch = errors.New("chain id mismatch")

// ExpectChainID fails when the endpoint's chain id differs from want. A
// zero want skips the check.
func (c *Client) ExpectChainID(ctx context.Context, want int64) error {
	if want == 0 {
		return nil
	}
	got, err := c.ChainID(ctx)
	if err != nil {
		return err
	}
	if !got.IsInt64() || got.Int64() != want {
		return fmt.Errorf("%w: endpoint reports %s, configured %d", ErrChainIDMismatch, got, want)
	}
	return nil
}

func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.call(ctx, "eth_getTransactionCount", func(ctx context.Context) (err error) {
		nonce, err = c.backend.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, classify("eth_getTransactionCount", err)
}

func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	err := c.call(ctx, "eth_sendRawTransaction", func(ctx context.Context) error {
		return c.backend.SendTransaction(ctx, tx)
	})
	return classify("eth_sendRawTransaction", err)
}

// Ping checks the endpoint answers at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.BlockNumber(ctx)
	return err
}

// WaitForTransaction polls until hash is mined and returns its receipt.
// It returns nil, nil when the node has not known the transaction for
// MissingPolls consecutive polls, and *TimeoutError once ReceiptTimeout (or
// the caller's deadline) expires.
func (c *Client) WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	start := time.Now()
	waitCtx := ctx
	if c.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	log := c.logger.With("txHash", hash.Hex())
	missing := 0
	for {
		var receipt *types.Receipt
		err := c.call(waitCtx, "eth_getTransactionReceipt", func(ctx context.Context) (err error) {
			receipt, err = c.backend.TransactionReceipt(ctx, hash)
			return err
		})
		switch {
		case err == nil && receipt != nil:
			log.Debug("receipt available", "status", receipt.Status, "logs", len(receipt.Logs))
			return receipt, nil
		case err == nil || errors.Is(err, ethereum.NotFound):
			known, kerr := c.transactionKnown(waitCtx, hash)
			if kerr != nil {
				if waitCtx.Err() != nil {
					return nil, c.waitExpired(ctx, hash, start)
				}
				return nil, kerr
			}
			if known {
				missing = 0
			} else {
				missing++
				if c.cfg.MissingPolls > 0 && missing >= c.cfg.MissingPolls {
					log.Warn("transaction unknown to node, treating as dropped", "polls", missing)
					return nil, nil
				}
			}
		default:
			if waitCtx.Err() != nil {
				return nil, c.waitExpired(ctx, hash, start)
			}
			return nil, classify("eth_getTransactionReceipt", err)
		}

		select {
		case <-waitCtx.Done():
			return nil, c.waitExpired(ctx, hash, start)
		case <-ticker.C:
		}
	}
}

func (c *Client) transactionKnown(ctx context.Context, hash common.Hash) (bool, error) {
	err := c.call(ctx, "eth_getTransactionByHash", func(ctx context.Context) error {
		_, _, err := c.backend.TransactionByHash(ctx, hash)
		return err
	})
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, classify("eth_getTransactionByHash", err)
	}
	return true, nil
}

// waitExpired distinguishes an abandoned wait from an expired one.
func (c *Client) waitExpired(parent context.Context, hash common.Hash, start time.Time) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	return &TimeoutError{TxHash: hash, After: time.Since(start).Round(time.Millisecond)}
}
