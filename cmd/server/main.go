package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nftmint/internal/abicodec"
	"nftmint/internal/chain"
	"nftmint/internal/config"
	"nftmint/internal/idempotency"
	"nftmint/internal/logging"
	"nftmint/internal/metadata"
	"nftmint/internal/mint"
	"nftmint/internal/server"
	"nftmint/internal/signer"
	"nftmint/internal/status"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Environment: logging.Environment(cfg.Service.Environment),
		Service:     "nftmint-api",
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger logging.Logger) error {
	ctx := context.Background()
	metrics := server.NewMetrics()
	tracker := status.NewTracker()

	client, err := chain.Dial(ctx, chain.Config{
		RPCURL:         cfg.Chain.RPCURL,
		RequestTimeout: cfg.Chain.RequestTimeout,
		PollInterval:   cfg.Chain.PollInterval,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout,
		MissingPolls:   cfg.Chain.MissingPolls,
	}, chain.WithLogger(logger), chain.WithObserver(metrics.ObserveRPC))
	if err != nil {
		return err
	}
	defer client.Close()

	chainCtx, cancelChain := context.WithTimeout(ctx, 10*time.Second)
	err = client.ExpectChainID(chainCtx, cfg.Chain.ChainID)
	cancelChain()
	if err != nil {
		return err
	}

	codec, err := abicodec.Parse(cfg.Contract.ABI)
	if err != nil {
		return err
	}

	var (
		sender mint.TransactionSender
		wallet func(context.Context) error
	)
	switch {
	case cfg.Signer.RelayURL != "":
		session, err := signer.DialSession(ctx, signer.SessionConfig{
			RelayURL:  cfg.Signer.RelayURL,
			ProjectID: cfg.Signer.ProjectID,
		}, logger)
		if err != nil {
			return err
		}
		defer session.Close()
		sender, wallet = session, session.Ping
	case cfg.Signer.PrivateKey != "":
		keyed, err := signer.NewKeyedSigner(ctx, client, cfg.Signer.PrivateKey)
		if err != nil {
			return err
		}
		logger.Warn("signing with a local key", "address", keyed.Address().Hex())
		sender = keyed
	default:
		logger.Warn("no signer configured, using fake signer")
		sender = &signer.FakeSigner{}
	}

	minter, err := mint.NewMinter(mint.Config{
		Contract:      cfg.Contract.Address,
		Codec:         codec,
		MintFunction:  cfg.Contract.MintFunction,
		PriceFunction: cfg.Contract.PriceFunction,
		FallbackPrice: cfg.Contract.FallbackPrice,
	}, client, client, sender,
		mint.WithTracker(tracker),
		mint.WithLogger(logger),
		mint.WithGasOracle(client),
	)
	if err != nil {
		return err
	}

	var store idempotency.Store
	if cfg.Service.PostgresDSN != "" {
		pg, err := idempotency.NewPostgresStore(ctx, cfg.Service.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		store = pg
		go purgeExpired(ctx, pg, cfg.Service.IdempotencyWindow, logger)
	} else {
		fs, err := idempotency.NewFileStore(cfg.Service.IdempotencyStorePath)
		if err != nil {
			return err
		}
		store = fs
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	report, err := minter.Probe(probeCtx, client)
	cancel()
	if err != nil {
		logger.Warn("initial contract probe failed", "rpc", cfg.Chain.RPCURL, "error", err)
	} else {
		logger.Info("contract probed",
			"contract", report.Contract.Hex(),
			"block", report.BlockNumber,
			"hasCode", report.HasCode,
			"mintPrice", report.PriceEther.String(),
			"priceFallback", report.Quote.Fallback)
	}

	apiServer := server.NewServer(cfg, server.Deps{
		Minter:  minter,
		Chain:   client,
		Pinner:  metadata.NewIPFSPinner(cfg.IPFS.APIURL, logger),
		Store:   store,
		Tracker: tracker,
		Logger:  logger,
		Metrics: metrics,
		Wallet:  wallet,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-ch:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancelShutdown()
	return apiServer.Shutdown(shutdownCtx)
}

func purgeExpired(ctx context.Context, store *idempotency.PostgresStore, every time.Duration, logger logging.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge expired submissions failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired submissions", "count", n)
			}
		}
	}
}
