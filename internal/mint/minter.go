package mint

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"nftmint/internal/abicodec"
	"nftmint/internal/logging"
	"nftmint/internal/status"
)

// Config describes the deployed NFT contract.
type Config struct {
	Contract      common.Address
	Codec         *abicodec.Codec
	MintFunction  string
	PriceFunction string
	FallbackPrice *big.Int
}

// Minter runs the build, sign and confirm pipeline against one contract
// and records progress in a status tracker.
type Minter struct {
	cfg     Config
	reader  ContractReader
	waiter  ReceiptWaiter
	sender  TransactionSender
	oracle  GasOracle
	tracker *status.Tracker
	logger  logging.Logger
}

type Option func(*Minter)

func WithTracker(t *status.Tracker) Option {
	return func(m *Minter) { m.tracker = t }
}

func WithLogger(l logging.Logger) Option {
	return func(m *Minter) { m.logger = l }
}

// WithGasOracle enables gas estimates on quotes.
func WithGasOracle(o GasOracle) Option {
	return func(m *Minter) { m.oracle = o }
}

func NewMinter(cfg Config, reader ContractReader, waiter ReceiptWaiter, sender TransactionSender, opts ...Option) (*Minter, error) {
	if cfg.Codec == nil {
		return nil, fmt.Errorf("mint: codec is required")
	}
	if cfg.Contract == (common.Address{}) {
		return nil, fmt.Errorf("mint: contract address is required")
	}
	if cfg.MintFunction == "" {
		cfg.MintFunction = DefaultMintFunction
	}
	if !cfg.Codec.HasMethod(cfg.MintFunction) {
		return nil, fmt.Errorf("mint: abi does not declare %s", cfg.MintFunction)
	}
	m := &Minter{
		cfg:    cfg,
		reader: reader,
		waiter: waiter,
		sender: sender,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Minter) Contract() common.Address { return m.cfg.Contract }

func (m *Minter) Codec() *abicodec.Codec { return m.cfg.Codec }

func (m *Minter) Tracker() *status.Tracker { return m.tracker }

func (m *Minter) buildOptions() []BuildOption {
	return []BuildOption{
		WithMintFunction(m.cfg.MintFunction),
		WithPriceFunction(m.cfg.PriceFunction),
		WithFallbackPrice(m.cfg.FallbackPrice),
		WithBuildLogger(m.logger),
	}
}

// Quote is a built transaction plus, when a gas oracle is configured, its
// estimated cost.
type Quote struct {
	Build    *BuildResult
	Gas      *GasEstimate
	GasError string
}

// Build constructs the unsigned mint transaction without sending it.
func (m *Minter) Build(ctx context.Context, sender common.Address, metadataURI string) (*BuildResult, error) {
	return BuildMintTransaction(ctx, m.reader, sender, metadataURI, m.cfg.Contract, m.cfg.Codec, m.buildOptions()...)
}

// Quote builds the transaction and estimates its cost. A failed estimate is
// reported in GasError and does not fail the quote.
func (m *Minter) Quote(ctx context.Context, sender common.Address, metadataURI string) (*Quote, error) {
	build, err := m.Build(ctx, sender, metadataURI)
	if err != nil {
		return nil, err
	}
	q := &Quote{Build: build}
	if m.oracle == nil {
		return q, nil
	}
	err = m.tracker.Track(status.Estimate, func() (string, error) {
		est, err := EstimateMint(ctx, m.oracle, build.Tx)
		if err != nil {
			return "", err
		}
		q.Gas = est
		return fmt.Sprintf("%d gas, %s ether total", est.GasLimit, est.TotalEther.String()), nil
	})
	if err != nil {
		m.logger.Warn("gas estimate failed", "sender", sender.Hex(), "error", err)
		q.GasError = err.Error()
	}
	return q, nil
}

type Submission struct {
	TxHash common.Hash
	Build  *BuildResult
}

// Submit builds the transaction and hands it to the signer. The mint
// operation stays pending until TokenID resolves it. The tracker holds a
// single mint slot, so it always describes the last mint observed and its
// detail names the transaction hash.
func (m *Minter) Submit(ctx context.Context, sender common.Address, metadataURI string) (*Submission, error) {
	if m.sender == nil {
		return nil, fmt.Errorf("mint: no transaction sender configured")
	}
	m.tracker.Start(status.Mint)

	build, err := m.Build(ctx, sender, metadataURI)
	if err != nil {
		m.tracker.Fail(status.Mint, err)
		return nil, err
	}
	hash, err := m.sender.SendTransaction(ctx, build.Tx)
	if err != nil {
		m.tracker.Fail(status.Mint, err)
		return nil, fmt.Errorf("send mint transaction: %w", err)
	}

	m.tracker.Note(status.Mint, "submitted "+hash.Hex())
	m.logger.Info("mint transaction submitted",
		"txHash", hash.Hex(),
		"sender", sender.Hex(),
		"valueWei", build.Tx.Value.String(),
		"fallbackPrice", build.Quote.Fallback)
	return &Submission{TxHash: hash, Build: build}, nil
}

// TokenID waits for hash and extracts the minted token id.
func (m *Minter) TokenID(ctx context.Context, hash common.Hash) (*big.Int, error) {
	if m.waiter == nil {
		return nil, fmt.Errorf("mint: no receipt waiter configured")
	}
	id, err := ExtractTokenID(ctx, hash, m.waiter, m.cfg.Codec)
	if err != nil {
		m.tracker.Fail(status.Mint, fmt.Errorf("%s: %w", hash.Hex(), err))
		return nil, err
	}
	m.tracker.Succeed(status.Mint, fmt.Sprintf("token %s in %s", id, hash.Hex()))
	m.logger.Info("mint confirmed", "txHash", hash.Hex(), "tokenId", id.String())
	return id, nil
}

type Result struct {
	Submission
	TokenID *big.Int
}

// Mint runs the whole pipeline. On a confirmation failure the submission is
// still returned so the caller can report the hash.
func (m *Minter) Mint(ctx context.Context, sender common.Address, metadataURI string) (*Result, error) {
	sub, err := m.Submit(ctx, sender, metadataURI)
	if err != nil {
		return nil, err
	}
	res := &Result{Submission: *sub}
	id, err := m.TokenID(ctx, sub.TxHash)
	if err != nil {
		return res, err
	}
	res.TokenID = id
	return res, nil
}

// Probe checks the provider and the contract; see ProbeContract.
func (m *Minter) Probe(ctx context.Context, p ChainProbe) (*ContractReport, error) {
	return ProbeContract(ctx, p, m.cfg.Contract, m.cfg.Codec, m.tracker, m.buildOptions()...)
}
