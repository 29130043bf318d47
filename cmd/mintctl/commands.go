package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"nftmint/internal/abicodec"
	"nftmint/internal/chain"
	"nftmint/internal/config"
	"nftmint/internal/logging"
	"nftmint/internal/metadata"
	"nftmint/internal/mint"
)

const defaultTimeout = 30 * time.Second

// session holds what every command needs: config, a chain client and a
// read-only minter with no signer attached.
type session struct {
	cfg    *config.AppConfig
	logger logging.Logger
	client *chain.Client
	minter *mint.Minter
}

func openSession(ctx context.Context, c *cli.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if rpc := c.String("rpc"); rpc != "" {
		cfg.Chain.RPCURL = rpc
	}

	logger, err := logging.New(logging.Config{Environment: logging.Development, Service: "mintctl"})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	client, err := chain.Dial(ctx, chain.Config{
		RPCURL:         cfg.Chain.RPCURL,
		RequestTimeout: cfg.Chain.RequestTimeout,
		PollInterval:   cfg.Chain.PollInterval,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout,
		MissingPolls:   cfg.Chain.MissingPolls,
	}, chain.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.Chain.RPCURL, err)
	}

	if err := client.ExpectChainID(ctx, cfg.Chain.ChainID); err != nil {
		client.Close()
		return nil, err
	}

	codec, err := abicodec.Parse(cfg.Contract.ABI)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to parse contract abi: %w", err)
	}

	minter, err := mint.NewMinter(mint.Config{
		Contract:      cfg.Contract.Address,
		Codec:         codec,
		MintFunction:  cfg.Contract.MintFunction,
		PriceFunction: cfg.Contract.PriceFunction,
		FallbackPrice: cfg.Contract.FallbackPrice,
	}, client, client, nil, mint.WithLogger(logger), mint.WithGasOracle(client))
	if err != nil {
		client.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, client: client, minter: minter}, nil
}

func (s *session) close() {
	s.client.Close()
	_ = s.logger.Sync()
}

func withSession(fn func(ctx context.Context, c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		s, err := openSession(ctx, c)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(ctx, c, s)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ContractCommand() *cli.Command {
	return &cli.Command{
		Name:   "contract",
		Usage:  "Check the RPC endpoint and the configured contract, and read its mint price",
		Action: withSession(showContract),
	}
}

func showContract(ctx context.Context, _ *cli.Context, s *session) error {
	report, err := s.minter.Probe(ctx, s.client)
	if err != nil {
		return fmt.Errorf("provider unreachable: %w", err)
	}
	return printJSON(map[string]any{
		"contract":       report.Contract.Hex(),
		"blockNumber":    report.BlockNumber,
		"hasCode":        report.HasCode,
		"mintPriceWei":   report.Quote.PriceWei.String(),
		"mintPriceEther": report.PriceEther.String(),
		"priceFallback":  report.Quote.Fallback,
	})
}

func QuoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "quote",
		Usage: "Build the unsigned mint transaction and estimate what it costs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sender", Usage: "minting address", Required: true},
			&cli.StringFlag{Name: "uri", Usage: "token metadata URI", Required: true},
		},
		Action: withSession(showQuote),
	}
}

func showQuote(ctx context.Context, c *cli.Context, s *session) error {
	raw := c.String("sender")
	if !common.IsHexAddress(raw) {
		return fmt.Errorf("invalid sender address %q", raw)
	}
	q, err := s.minter.Quote(ctx, common.HexToAddress(raw), c.String("uri"))
	if err != nil {
		return err
	}

	out := map[string]any{
		"transaction":   q.Build.Tx,
		"priceWei":      q.Build.Quote.PriceWei.String(),
		"priceEther":    mint.FormatEther(q.Build.Quote.PriceWei),
		"priceFallback": q.Build.Quote.Fallback,
	}
	if q.Build.Quote.Fallback {
		out["priceFallbackReason"] = q.Build.Quote.Reason
	}
	if q.Gas != nil {
		out["gasLimit"] = q.Gas.GasLimit
		out["gasCostEther"] = q.Gas.GasCostEther.String()
		out["totalEther"] = q.Gas.TotalEther.String()
	}
	if q.GasError != "" {
		out["gasError"] = q.GasError
	}
	return printJSON(out)
}

func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Wait for a mint transaction and print the token id it minted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tx", Usage: "mint transaction hash", Required: true},
		},
		Action: withSession(showToken),
	}
}

func showToken(ctx context.Context, c *cli.Context, s *session) error {
	raw := c.String("tx")
	b := common.FromHex(raw)
	if len(b) != common.HashLength {
		return fmt.Errorf("invalid transaction hash %q", raw)
	}
	hash := common.BytesToHash(b)
	id, err := s.minter.TokenID(ctx, hash)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"txHash": hash.Hex(), "tokenId": id.String()})
}

func PinCommand() *cli.Command {
	return &cli.Command{
		Name:      "pin",
		Usage:     "Pin an ERC-721 metadata JSON file to IPFS and print its ipfs:// URI",
		ArgsUsage: "<metadata.json>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one metadata file")
			}
			raw, err := os.ReadFile(c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to read metadata file: %w", err)
			}
			var doc metadata.Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("failed to parse metadata file: %w", err)
			}
			if err := doc.Validate(); err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			uri, err := metadata.NewIPFSPinner(cfg.IPFS.APIURL, logging.NewNop()).Pin(ctx, doc)
			if err != nil {
				return err
			}
			fmt.Println(uri)
			return nil
		},
	}
}
