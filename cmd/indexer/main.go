package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/chaintrace/asset-indexer/internal/adapter"
	"github.com/chaintrace/asset-indexer/internal/block"
	"github.com/chaintrace/asset-indexer/internal/config"
	"github.com/chaintrace/asset-indexer/internal/ingest"
	"github.com/chaintrace/asset-indexer/internal/logger"
	"github.com/chaintrace/asset-indexer/internal/messaging"
	"github.com/chaintrace/asset-indexer/internal/providers/ethereum"
	"github.com/chaintrace/asset-indexer/internal/providers/jetstream"
	"github.com/chaintrace/asset-indexer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadIndexerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags: map[string]string{
			"service": "indexer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Asset Indexer")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database")

	// Initialize store and adapters
	dataStore := store.NewPGStore(db)
	clockAdapter := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()

	// Initialize ledger client
	ethDialer := adapter.NewEthClientDialer()
	ethClient, err := ethDialer.Dial(ctx, cfg.Ledger.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to dial ledger RPC", zap.Error(err), zap.String("rpc_url", cfg.Ledger.RPCURL))
	}
	defer ethClient.Close()

	ledgerClient := ethereum.NewLedgerClient(ethereum.Config{
		ChainID:         cfg.Ledger.ChainID,
		ContractAddress: cfg.Ledger.ContractAddress,
	}, ethClient)

	blockProvider := block.NewProvider(
		ethereum.NewBlockFetcher(ethClient),
		block.Config{
			HeadTTL:     cfg.Ledger.HeadTTL,
			StaleWindow: cfg.Ledger.HeadStaleWindow,
		},
		clockAdapter,
	)

	// Initialize NATS publisher (optional)
	var publisher messaging.Publisher
	if cfg.NATS.URL != "" {
		natsJS := adapter.NewNatsJetStream()
		publisher, err = jetstream.NewPublisher(jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, natsJS, jsonAdapter)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create NATS publisher", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		defer publisher.Close()
		logger.InfoCtx(ctx, "Connected to NATS JetStream")
	}

	// Assemble the ingestion pipeline
	decoder := ingest.NewDecoder(ledgerClient, blockProvider, dataStore)
	processor := ingest.NewProcessor(dataStore, cfg.Ledger.ChainID)
	poller := ingest.NewPoller(ingest.PollerConfig{
		Chain:         cfg.Ledger.ChainID,
		GenesisBlock:  cfg.Ledger.GenesisBlock,
		Confirmations: cfg.Ledger.Confirmations,
		PollInterval:  cfg.Ledger.PollInterval,
		BatchBlocks:   cfg.Ledger.BatchBlocks,
	}, dataStore, decoder, processor, blockProvider, publisher, clockAdapter)

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.ErrorCtx(ctx, fmt.Errorf("poller stopped: %w", err))
	}

	// Wait for the poll loop to wind down before the deferred teardown of
	// the connections it uses
	cancel()
	<-done
	logger.InfoCtx(ctx, "Asset Indexer stopped")
}
