package repository

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// JobRepository is the job projection. Every status-changing write is an
// atomic conditional update: it only applies if the row's status still equals
// the expected prior status at the moment of the write. The applied result is
// the single concurrency-correctness signal in the system.
type JobRepository interface {
	Create(ctx context.Context, job *types.Job) error
	Get(ctx context.Context, jobID string) (*types.Job, error)
	ListByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error)

	// BindExecutor sets the executor and moves pending -> accepted in one
	// conditional write. Exactly one concurrent caller can win.
	BindExecutor(ctx context.Context, jobID, executorID string) (bool, error)

	// TransitionStatus moves from -> to, guarded on from.
	TransitionStatus(ctx context.Context, jobID string, from, to types.JobStatus) (bool, error)

	// RecordSubmission stores the result payload and token while moving
	// from -> to, guarded on from.
	RecordSubmission(ctx context.Context, jobID string, result json.RawMessage, token string, from, to types.JobStatus) (bool, error)

	// SetTxHash records the tx hash of a ledger-affecting action for audit.
	SetTxHash(ctx context.Context, jobID string, action types.TxAction, txHash string) error
}

// TransactionRepository is the transaction log, keyed by the globally unique
// ledger transaction hash.
type TransactionRepository interface {
	CreatePending(ctx context.Context, rec *types.TransactionRecord) error
	MarkConfirmed(ctx context.Context, txHash string, blockNumber uint64, gasFee *big.Int) error
	MarkFailed(ctx context.Context, txHash, cause string) error

	// UpsertFromEvent inserts the record if absent; if a record with the same
	// hash exists, its status is never overwritten with a less-advanced one.
	UpsertFromEvent(ctx context.Context, rec *types.TransactionRecord) error

	GetByHash(ctx context.Context, txHash string) (*types.TransactionRecord, error)
}

// AgentRepository stores participants and their monotonically adjusted stats.
type AgentRepository interface {
	Create(ctx context.Context, agent *types.Agent) error
	GetByID(ctx context.Context, agentID string) (*types.Agent, error)

	// ResolveWallet maps an acting wallet address to a local agent id,
	// falling back to the legacy wallets table when the agents table misses.
	ResolveWallet(ctx context.Context, walletAddress string) (string, error)

	// ApplyJobOutcome adjusts earned/spent totals and reputation. Callers
	// invoke it at most once per job per agent.
	ApplyJobOutcome(ctx context.Context, agentID string, earned, spent *big.Int, reputationDelta int64) error
}

// CheckpointRepository persists the indexer's last processed block so a
// restart resumes where the previous run stopped.
type CheckpointRepository interface {
	GetLastProcessedBlock(ctx context.Context) (uint64, error)
	SetLastProcessedBlock(ctx context.Context, block uint64) error
}
