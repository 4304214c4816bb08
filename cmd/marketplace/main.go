package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/api"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/broker"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/config"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/controller"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/escrow"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/indexer"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/metrics"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/repository"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/sweeper"
	"github.com/taskmesh/taskmesh-backend/pkg/database"
	"github.com/taskmesh/taskmesh-backend/pkg/eventbus"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := config.Init(); err != nil {
		panic(fmt.Sprintf("Failed to initialize config: %v", err))
	}

	logConfig := logging.NewDefaultConfig(logging.MarketplaceProcess)
	if !config.DevMode {
		logConfig.Environment = logging.Production
	}
	if err := logging.InitServiceLogger(logConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logging.Shutdown()
	logger := logging.GetServiceLogger()

	logger.Info("Starting marketplace...",
		"rpc", config.EthRPCUrl,
		"contract", config.EscrowAddress,
		"db", config.DatabaseHosts,
		"port", config.ServerPort,
	)

	dbConfig := database.DefaultConfig()
	dbConfig.Hosts = strings.Split(config.DatabaseHosts, ",")
	conn, err := database.NewConnection(dbConfig, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	store := repository.NewStore(conn, logger)

	signer := escrow.NewLocalSigner(big.NewInt(config.SignerChainID))
	for _, pair := range strings.Split(config.AgentSigningKeys, ",") {
		if pair == "" {
			continue
		}
		agentID, hexKey, ok := strings.Cut(pair, ":")
		if !ok {
			logger.Fatalf("Malformed AGENT_SIGNING_KEYS entry %q", pair)
		}
		if err := signer.AddKey(agentID, hexKey); err != nil {
			logger.Fatalf("Failed to load signing key for agent %s: %v", agentID, err)
		}
	}

	ledger, err := escrow.NewClient(config.EthRPCUrl, config.EscrowAddress, signer, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to escrow contract: %v", err)
	}

	bus := eventbus.New(logger)
	txBroker := broker.New(store.Transactions, ledger, logger)
	ctrl := controller.New(controller.Deps{
		Jobs:   store.Jobs,
		Agents: store.Agents,
		Broker: txBroker,
		Ledger: ledger,
		Bus:    bus,
		Logger: logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	indexerConfig := indexer.DefaultConfig()
	indexerConfig.Workers = config.IndexerWorkers
	indexerConfig.BatchSize = config.IndexerBackfill
	ix := indexer.New(ledger, store, logger, indexerConfig)
	if err := ix.Start(ctx); err != nil {
		logger.Fatalf("Failed to start indexer: %v", err)
	}

	sweepConfig := sweeper.Config{
		Schedule:          config.SweepSchedule,
		LenientSettlement: config.LenientSettle,
		SweepTimeout:      config.SweepTimeout,
	}
	sw := sweeper.New(store.Jobs, ledger, ctrl, logger, sweepConfig)
	if err := sw.Start(); err != nil {
		logger.Fatalf("Failed to start sweeper: %v", err)
	}

	metrics.StartMetricsCollection()

	server := api.NewServer(ctrl, config.ServerPort, logger)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Errorf("Server error: %v", err)
	case sig := <-quit:
		logger.Infof("Received signal %s, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	cancel()
	sw.Stop()
	ix.Stop()
	txBroker.Close()

	logger.Info("Marketplace stopped")
}
