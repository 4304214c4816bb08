package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

// MemoryStore is an in-memory projection store with the same conditional
// update semantics as the scylla implementation. It backs tests and local
// development without a database.
type MemoryStore struct {
	Jobs         *MemoryJobRepository
	Transactions *MemoryTransactionRepository
	Agents       *MemoryAgentRepository
	Checkpoints  *MemoryCheckpointRepository
}

type memoryState struct {
	mu           sync.Mutex
	jobs         map[string]*types.Job
	transactions map[string]*types.TransactionRecord
	agents       map[string]*types.Agent
	wallets      map[string]string // legacy wallet table: address -> agent id
	lastBlock    uint64
}

func NewMemoryStore() *MemoryStore {
	state := &memoryState{
		jobs:         make(map[string]*types.Job),
		transactions: make(map[string]*types.TransactionRecord),
		agents:       make(map[string]*types.Agent),
		wallets:      make(map[string]string),
	}
	return &MemoryStore{
		Jobs:         &MemoryJobRepository{state: state},
		Transactions: &MemoryTransactionRepository{state: state},
		Agents:       &MemoryAgentRepository{state: state},
		Checkpoints:  &MemoryCheckpointRepository{state: state},
	}
}

type MemoryJobRepository struct{ state *memoryState }

var _ JobRepository = (*MemoryJobRepository)(nil)

func copyJob(j *types.Job) *types.Job {
	cp := *j
	if j.Payment != nil {
		cp.Payment = new(big.Int).Set(j.Payment)
	}
	if j.Collateral != nil {
		cp.Collateral = new(big.Int).Set(j.Collateral)
	}
	cp.Result = append(json.RawMessage(nil), j.Result...)
	return &cp
}

func (r *MemoryJobRepository) Create(ctx context.Context, job *types.Job) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, ok := r.state.jobs[job.JobID]; ok {
		return fmt.Errorf("job %s already exists", job.JobID)
	}
	r.state.jobs[job.JobID] = copyJob(job)
	return nil
}

func (r *MemoryJobRepository) Get(ctx context.Context, jobID string) (*types.Job, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	job, ok := r.state.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (r *MemoryJobRepository) ListByStatus(ctx context.Context, status types.JobStatus) ([]*types.Job, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	var out []*types.Job
	for _, job := range r.state.jobs {
		if job.Status == status {
			out = append(out, copyJob(job))
		}
	}
	return out, nil
}

func (r *MemoryJobRepository) BindExecutor(ctx context.Context, jobID, executorID string) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	job, ok := r.state.jobs[jobID]
	if !ok {
		return false, ErrNotFound
	}
	if job.Status != types.JobStatusPending {
		return false, nil
	}
	job.ExecutorID = executorID
	job.Status = types.JobStatusAccepted
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryJobRepository) TransitionStatus(ctx context.Context, jobID string, from, to types.JobStatus) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	job, ok := r.state.jobs[jobID]
	if !ok {
		return false, ErrNotFound
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = to
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryJobRepository) RecordSubmission(ctx context.Context, jobID string, result json.RawMessage, token string, from, to types.JobStatus) (bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	job, ok := r.state.jobs[jobID]
	if !ok {
		return false, ErrNotFound
	}
	if job.Status != from {
		return false, nil
	}
	job.Result = append(json.RawMessage(nil), result...)
	job.ResultToken = token
	job.Status = to
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryJobRepository) SetTxHash(ctx context.Context, jobID string, action types.TxAction, txHash string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	job, ok := r.state.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	switch action {
	case types.TxActionAccept:
		job.AcceptTxHash = txHash
	case types.TxActionSubmit:
		job.SettleTxHash = txHash
	default:
		return fmt.Errorf("no tx hash column for action %s", action)
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

type MemoryTransactionRepository struct{ state *memoryState }

var _ TransactionRepository = (*MemoryTransactionRepository)(nil)

func copyRecord(rec *types.TransactionRecord) *types.TransactionRecord {
	cp := *rec
	if rec.GasFee != nil {
		cp.GasFee = new(big.Int).Set(rec.GasFee)
	}
	if rec.Metadata != nil {
		cp.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (r *MemoryTransactionRepository) CreatePending(ctx context.Context, rec *types.TransactionRecord) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, ok := r.state.transactions[rec.TxHash]; ok {
		return nil
	}
	r.state.transactions[rec.TxHash] = copyRecord(rec)
	return nil
}

func (r *MemoryTransactionRepository) MarkConfirmed(ctx context.Context, txHash string, blockNumber uint64, gasFee *big.Int) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	rec, ok := r.state.transactions[txHash]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != types.TxStatusPending {
		return nil
	}
	rec.Status = types.TxStatusConfirmed
	rec.BlockNumber = blockNumber
	if gasFee != nil {
		rec.GasFee = new(big.Int).Set(gasFee)
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryTransactionRepository) MarkFailed(ctx context.Context, txHash, cause string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	rec, ok := r.state.transactions[txHash]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != types.TxStatusPending {
		return nil
	}
	rec.Status = types.TxStatusFailed
	rec.ErrorCause = cause
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryTransactionRepository) UpsertFromEvent(ctx context.Context, rec *types.TransactionRecord) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	existing, ok := r.state.transactions[rec.TxHash]
	if !ok {
		r.state.transactions[rec.TxHash] = copyRecord(rec)
		return nil
	}
	if rec.Status.Rank() <= existing.Status.Rank() {
		return nil
	}
	existing.Status = rec.Status
	existing.BlockNumber = rec.BlockNumber
	if rec.GasFee != nil {
		existing.GasFee = new(big.Int).Set(rec.GasFee)
	}
	existing.ErrorCause = rec.ErrorCause
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryTransactionRepository) GetByHash(ctx context.Context, txHash string) (*types.TransactionRecord, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	rec, ok := r.state.transactions[txHash]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

type MemoryAgentRepository struct{ state *memoryState }

var _ AgentRepository = (*MemoryAgentRepository)(nil)

func copyAgent(a *types.Agent) *types.Agent {
	cp := *a
	if a.TotalEarned != nil {
		cp.TotalEarned = new(big.Int).Set(a.TotalEarned)
	}
	if a.TotalSpent != nil {
		cp.TotalSpent = new(big.Int).Set(a.TotalSpent)
	}
	cp.Capabilities = append([]string(nil), a.Capabilities...)
	return &cp
}

func (r *MemoryAgentRepository) Create(ctx context.Context, agent *types.Agent) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, ok := r.state.agents[agent.AgentID]; ok {
		return fmt.Errorf("agent %s already exists", agent.AgentID)
	}
	cp := copyAgent(agent)
	if cp.TotalEarned == nil {
		cp.TotalEarned = big.NewInt(0)
	}
	if cp.TotalSpent == nil {
		cp.TotalSpent = big.NewInt(0)
	}
	cp.WalletAddress = strings.ToLower(cp.WalletAddress)
	r.state.agents[agent.AgentID] = cp
	return nil
}

func (r *MemoryAgentRepository) GetByID(ctx context.Context, agentID string) (*types.Agent, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	agent, ok := r.state.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAgent(agent), nil
}

func (r *MemoryAgentRepository) ResolveWallet(ctx context.Context, walletAddress string) (string, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	walletAddress = strings.ToLower(walletAddress)
	for _, agent := range r.state.agents {
		if agent.WalletAddress == walletAddress {
			return agent.AgentID, nil
		}
	}
	if id, ok := r.state.wallets[walletAddress]; ok {
		return id, nil
	}
	return "", fmt.Errorf("agent not found for wallet %s: %w", walletAddress, ErrNotFound)
}

// AddLegacyWallet seeds the fallback wallets table.
func (r *MemoryAgentRepository) AddLegacyWallet(walletAddress, agentID string) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.wallets[strings.ToLower(walletAddress)] = agentID
}

func (r *MemoryAgentRepository) ApplyJobOutcome(ctx context.Context, agentID string, earned, spent *big.Int, reputationDelta int64) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	agent, ok := r.state.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	agent.Reputation += reputationDelta
	if earned != nil {
		agent.TotalEarned = new(big.Int).Add(agent.TotalEarned, earned)
	}
	if spent != nil {
		agent.TotalSpent = new(big.Int).Add(agent.TotalSpent, spent)
	}
	return nil
}

type MemoryCheckpointRepository struct{ state *memoryState }

var _ CheckpointRepository = (*MemoryCheckpointRepository)(nil)

func (r *MemoryCheckpointRepository) GetLastProcessedBlock(ctx context.Context) (uint64, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.lastBlock, nil
}

func (r *MemoryCheckpointRepository) SetLastProcessedBlock(ctx context.Context, block uint64) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.lastBlock = block
	return nil
}
