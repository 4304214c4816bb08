package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/taskmesh/taskmesh-backend/pkg/env"
)

var (
	EthRPCUrl       string
	EscrowAddress   string
	SignerChainID   int64
	DatabaseHosts   string
	ServerPort      int
	SweepSchedule   string
	SweepTimeout    time.Duration
	LenientSettle   bool
	IndexerWorkers  int
	IndexerBackfill uint64
	DevMode         bool

	// AgentSigningKeys holds custodial keys as "agentID:hexKey" pairs,
	// comma separated. Empty is valid; no local agent can sign then.
	AgentSigningKeys string
)

// Init loads .env and populates the package-level settings. A missing .env
// file is fine in production where the environment is injected directly.
func Init() error {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	EthRPCUrl = env.GetEnvString("ETH_RPC_URL", "ws://localhost:8545")
	EscrowAddress = env.GetEnvString("ESCROW_CONTRACT_ADDRESS", "")
	SignerChainID = int64(env.GetEnvInt("SIGNER_CHAIN_ID", 17000))
	DatabaseHosts = env.GetEnvString("DATABASE_HOST_ADDRESS", "localhost:9042")
	ServerPort = env.GetEnvInt("SERVER_PORT", 9007)
	SweepSchedule = env.GetEnvString("SWEEP_SCHEDULE", "@every 1m")
	SweepTimeout = env.GetEnvDuration("SWEEP_TIMEOUT", 30*time.Second)
	LenientSettle = env.GetEnvBool("LENIENT_SETTLEMENT", true)
	IndexerWorkers = env.GetEnvInt("INDEXER_WORKERS", 4)
	IndexerBackfill = uint64(env.GetEnvInt("INDEXER_BATCH_SIZE", 500))
	DevMode = env.GetEnvBool("DEV_MODE", false)
	AgentSigningKeys = env.GetEnvString("AGENT_SIGNING_KEYS", "")

	if !common.IsHexAddress(EscrowAddress) {
		return fmt.Errorf("invalid ESCROW_CONTRACT_ADDRESS %q", EscrowAddress)
	}
	if EthRPCUrl == "" {
		return fmt.Errorf("ETH_RPC_URL is required")
	}
	return nil
}
