package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/broker"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/escrow"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/repository"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
	"github.com/taskmesh/taskmesh-backend/pkg/resulthash"
	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

// fakeLedger answers every submission with an instantly mined receipt.
type fakeLedger struct {
	mu        sync.Mutex
	txCounter int
	nextJobID uint64
	postCalls int

	postErr       error
	revertNext    bool
	settleVerdict *bool

	receipts map[string]*escrow.Receipt
	statuses map[uint64]escrow.LedgerStatus
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		receipts: make(map[string]*escrow.Receipt),
		statuses: make(map[uint64]escrow.LedgerStatus),
	}
}

func (f *fakeLedger) mint(settle bool, postedJobID uint64) (string, error) {
	f.txCounter++
	hash := fmt.Sprintf("0xtx%04d", f.txCounter)
	receipt := &escrow.Receipt{
		TxHash:      hash,
		BlockNumber: uint64(f.txCounter),
		GasFee:      big.NewInt(21000),
		Success:     !f.revertNext,
		PostedJobID: postedJobID,
	}
	if settle && f.settleVerdict != nil {
		verdict := *f.settleVerdict
		receipt.SettleVerified = &verdict
	}
	f.revertNext = false
	f.receipts[hash] = receipt
	return hash, nil
}

func (f *fakeLedger) PostJob(ctx context.Context, posterID string, payment, collateral *big.Int, deadline time.Time, expectedToken string, manualReview bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postCalls++
	if f.postErr != nil {
		return "", f.postErr
	}
	f.nextJobID++
	return f.mint(false, f.nextJobID)
}

func (f *fakeLedger) AcceptJob(ctx context.Context, executorID string, ledgerJobID uint64, collateral *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mint(false, 0)
}

func (f *fakeLedger) SubmitResult(ctx context.Context, executorID string, ledgerJobID uint64, resultToken string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mint(true, 0)
}

func (f *fakeLedger) ApproveJob(ctx context.Context, posterID string, ledgerJobID uint64, approved bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mint(false, 0)
}

func (f *fakeLedger) CancelJob(ctx context.Context, posterID string, ledgerJobID uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mint(false, 0)
}

func (f *fakeLedger) ClaimTimeout(ctx context.Context, posterID string, ledgerJobID uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mint(false, 0)
}

func (f *fakeLedger) RegisterAgent(ctx context.Context, agentID, walletAddress string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mint(false, 0)
}

func (f *fakeLedger) WaitMined(ctx context.Context, txHash string) (*escrow.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", txHash)
	}
	return receipt, nil
}

func (f *fakeLedger) JobStatus(ctx context.Context, ledgerJobID uint64) (escrow.LedgerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[ledgerJobID], nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	ctrl   *Controller
	store  *repository.MemoryStore
	ledger *fakeLedger
	broker *broker.Broker
	clock  *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.NewNoopLogger()
	store := repository.NewMemoryStore()
	ledger := newFakeLedger()
	clock := newFakeClock()
	txBroker := broker.New(store.Transactions, ledger, logger)

	ctrl := New(Deps{
		Jobs:   store.Jobs,
		Agents: store.Agents,
		Broker: txBroker,
		Ledger: ledger,
		Logger: logger,
		Now:    clock.Now,
	})

	for _, id := range []string{"poster-1", "executor-1", "executor-2"} {
		err := store.Agents.Create(context.Background(), &types.Agent{
			AgentID:      id,
			Capabilities: []string{"translate"},
			TotalEarned:  big.NewInt(0),
			TotalSpent:   big.NewInt(0),
			Active:       true,
		})
		require.NoError(t, err)
	}

	return &testEnv{ctrl: ctrl, store: store, ledger: ledger, broker: txBroker, clock: clock}
}

func (e *testEnv) postJob(t *testing.T, mutate func(*types.PostJobRequest)) *types.JobView {
	t.Helper()
	req := &types.PostJobRequest{
		PosterID:        "poster-1",
		CapabilityTag:   "translate",
		Description:     "translate a document",
		Payment:         big.NewInt(10),
		Collateral:      big.NewInt(5),
		DeadlineMinutes: 30,
	}
	if mutate != nil {
		mutate(req)
	}
	view, err := e.ctrl.PostJob(context.Background(), req)
	require.NoError(t, err)
	return view
}

func (e *testEnv) acceptJob(t *testing.T, jobID, executorID string) *types.JobView {
	t.Helper()
	view, err := e.ctrl.AcceptJob(context.Background(), &types.AcceptJobRequest{
		JobID:      jobID,
		ExecutorID: executorID,
		Collateral: big.NewInt(5),
	})
	require.NoError(t, err)
	return view
}

func hashOf(t *testing.T, raw string) string {
	t.Helper()
	token, err := resulthash.Token(json.RawMessage(raw))
	require.NoError(t, err)
	return token
}

func (e *testEnv) agent(t *testing.T, id string) *types.Agent {
	t.Helper()
	agent, err := e.store.Agents.GetByID(context.Background(), id)
	require.NoError(t, err)
	return agent
}

func TestPostJob_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*types.PostJobRequest)
	}{
		{"missing poster", func(r *types.PostJobRequest) { r.PosterID = "" }},
		{"missing capability", func(r *types.PostJobRequest) { r.CapabilityTag = "" }},
		{"missing description", func(r *types.PostJobRequest) { r.Description = "" }},
		{"zero deadline", func(r *types.PostJobRequest) { r.DeadlineMinutes = 0 }},
		{"zero payment", func(r *types.PostJobRequest) { r.Payment = big.NewInt(0) }},
		{"nil collateral", func(r *types.PostJobRequest) { r.Collateral = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &types.PostJobRequest{
				PosterID:        "poster-1",
				CapabilityTag:   "translate",
				Description:     "translate a document",
				Payment:         big.NewInt(10),
				Collateral:      big.NewInt(5),
				DeadlineMinutes: 30,
			}
			tc.mutate(req)
			_, err := env.ctrl.PostJob(ctx, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	assert.Equal(t, 0, env.ledger.postCalls, "Invalid requests should never reach the ledger")
}

func TestPostJob_ZeroTermsAllowedUnderManualReview(t *testing.T) {
	env := newTestEnv(t)

	view := env.postJob(t, func(r *types.PostJobRequest) {
		r.ManualReview = true
		r.Payment = big.NewInt(0)
		r.Collateral = big.NewInt(0)
	})
	assert.Equal(t, types.JobStatusPending, view.Status)
}

func TestPostJob_LedgerFailureLeavesNoLocalRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ledger.postErr = fmt.Errorf("insufficient funds")
	_, err := env.ctrl.PostJob(ctx, &types.PostJobRequest{
		PosterID:        "poster-1",
		CapabilityTag:   "translate",
		Description:     "translate a document",
		Payment:         big.NewInt(10),
		Collateral:      big.NewInt(5),
		DeadlineMinutes: 30,
	})
	require.Error(t, err)

	pending, err := env.store.Jobs.ListByStatus(ctx, types.JobStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending, "A failed ledger submission must leave no local trace")
}

func TestPostJob_RevertedTransactionLeavesNoLocalRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ledger.revertNext = true
	_, err := env.ctrl.PostJob(ctx, &types.PostJobRequest{
		PosterID:        "poster-1",
		CapabilityTag:   "translate",
		Description:     "translate a document",
		Payment:         big.NewInt(10),
		Collateral:      big.NewInt(5),
		DeadlineMinutes: 30,
	})
	assert.ErrorIs(t, err, broker.ErrReverted)

	pending, err := env.store.Jobs.ListByStatus(ctx, types.JobStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPostJob_RecordsLedgerLinkage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view := env.postJob(t, nil)
	assert.NotZero(t, view.LedgerJobID)
	assert.NotEmpty(t, view.TxHash)

	job, err := env.store.Jobs.Get(ctx, view.JobID)
	require.NoError(t, err)
	assert.Equal(t, view.LedgerJobID, job.LedgerJobID)
	assert.Equal(t, view.TxHash, job.PostTxHash)

	rec, err := env.store.Transactions.GetByHash(ctx, view.TxHash)
	require.NoError(t, err)
	assert.Equal(t, types.TxStatusConfirmed, rec.Status)
	assert.Equal(t, types.TxActionPost, rec.Action)
}

// Scenario: post, accept, submit a matching result with no expected token.
func TestLifecycle_OptimisticCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, nil)
	env.acceptJob(t, posted.JobID, "executor-1")

	view, err := env.ctrl.SubmitResult(ctx, &types.SubmitResultRequest{
		JobID:      posted.JobID,
		ExecutorID: "executor-1",
		Result:     json.RawMessage(`{"x":1}`),
		Token:      hashOf(t, `{"x":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, view.Status)

	env.broker.Close()

	executor := env.agent(t, "executor-1")
	assert.Equal(t, int64(10), executor.TotalEarned.Int64())
	assert.Equal(t, int64(reputationReward), executor.Reputation)

	poster := env.agent(t, "poster-1")
	assert.Equal(t, int64(10), poster.TotalSpent.Int64())
}

// Scenario: the expected token differs from the submitted one.
func TestLifecycle_ExpectedTokenMismatchFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, func(r *types.PostJobRequest) {
		r.ExpectedToken = hashOf(t, `{"x":2}`)
	})
	env.acceptJob(t, posted.JobID, "executor-1")

	view, err := env.ctrl.SubmitResult(ctx, &types.SubmitResultRequest{
		JobID:      posted.JobID,
		ExecutorID: "executor-1",
		Result:     json.RawMessage(`{"x":1}`),
		Token:      hashOf(t, `{"x":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, view.Status)

	env.broker.Close()

	executor := env.agent(t, "executor-1")
	assert.Equal(t, int64(0), executor.TotalEarned.Int64())
	assert.Equal(t, int64(reputationPenalty), executor.Reputation)
}

// Scenario: manual review tolerates a mismatched token, rejection pays nothing.
func TestLifecycle_ManualReviewRejection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, func(r *types.PostJobRequest) {
		r.ManualReview = true
	})
	env.acceptJob(t, posted.JobID, "executor-1")

	view, err := env.ctrl.SubmitResult(ctx, &types.SubmitResultRequest{
		JobID:      posted.JobID,
		ExecutorID: "executor-1",
		Result:     json.RawMessage(`{"x":1}`),
		Token:      "0xdef1n1telynotthehash",
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPendingReview, view.Status, "Manual review overrides automatic hash gating")

	view, err = env.ctrl.ValidateJob(ctx, &types.ValidateJobRequest{
		JobID:    posted.JobID,
		PosterID: "poster-1",
		Approved: false,
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, view.Status)

	env.broker.Close()

	executor := env.agent(t, "executor-1")
	assert.Equal(t, int64(0), executor.TotalEarned.Int64())
	assert.Equal(t, int64(reputationPenalty), executor.Reputation)
}

func TestLifecycle_ManualReviewApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, func(r *types.PostJobRequest) {
		r.ManualReview = true
	})
	env.acceptJob(t, posted.JobID, "executor-1")

	_, err := env.ctrl.SubmitResult(ctx, &types.SubmitResultRequest{
		JobID:      posted.JobID,
		ExecutorID: "executor-1",
		Result:     json.RawMessage(`{"x":1}`),
		Token:      hashOf(t, `{"x":1}`),
	})
	require.NoError(t, err)

	view, err := env.ctrl.ValidateJob(ctx, &types.ValidateJobRequest{
		JobID:    posted.JobID,
		PosterID: "poster-1",
		Approved: true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, view.Status)

	env.broker.Close()

	executor := env.agent(t, "executor-1")
	assert.Equal(t, int64(10), executor.TotalEarned.Int64())
	assert.Equal(t, int64(reputationReward), executor.Reputation)
}

// Scenario: accepting after the deadline is a state conflict.
func TestAcceptJob_AfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, nil)
	env.clock.Advance(31 * time.Minute)

	_, err := env.ctrl.AcceptJob(ctx, &types.AcceptJobRequest{
		JobID:      posted.JobID,
		ExecutorID: "executor-1",
		Collateral: big.NewInt(5),
	})
	assert.ErrorIs(t, err, ErrStateConflict)

	job, err := env.store.Jobs.Get(ctx, posted.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPending, job.Status)
}

func TestAcceptJob_PosterCannotAcceptOwnJob(t *testing.T) {
	env := newTestEnv(t)

	posted := env.postJob(t, nil)
	_, err := env.ctrl.AcceptJob(context.Background(), &types.AcceptJobRequest{
		JobID:      posted.JobID,
		ExecutorID: "poster-1",
		Collateral: big.NewInt(5),
	})
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestAcceptJob_InsufficientCollateral(t *testing.T) {
	env := newTestEnv(t)

	posted := env.postJob(t, nil)
	_, err := env.ctrl.AcceptJob(context.Background(), &types.AcceptJobRequest{
		JobID:      posted.JobID,
		ExecutorID: "executor-1",
		Collateral: big.NewInt(4),
	})
	assert.ErrorIs(t, err, ErrStateConflict)
}

// Scenario: two concurrent accepts on the same pending job.
func TestAcceptJob_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, nil)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			executor := "executor-1"
			if n%2 == 1 {
				executor = "executor-2"
			}
			_, err := env.ctrl.AcceptJob(ctx, &types.AcceptJobRequest{
				JobID:      posted.JobID,
				ExecutorID: executor,
				Collateral: big.NewInt(5),
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	successes, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrStateConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, successes, "Exactly one concurrent accept should succeed")
	assert.Equal(t, attempts-1, conflicts)
}

func TestSubmitResult_Checks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, nil)
	env.acceptJob(t, posted.JobID, "executor-1")

	t.Run("wrong executor", func(t *testing.T) {
		_, err := env.ctrl.SubmitResult(ctx, &types.SubmitResultRequest{
			JobID:      posted.JobID,
			ExecutorID: "executor-2",
			Result:     json.RawMessage(`{"x":1}`),
			Token:      hashOf(t, `{"x":1}`),
		})
		assert.ErrorIs(t, err, ErrStateConflict)
	})

	t.Run("token does not match result", func(t *testing.T) {
		_, err := env.ctrl.SubmitResult(ctx, &types.SubmitResultRequest{
			JobID:      posted.JobID,
			ExecutorID: "executor-1",
			Result:     json.RawMessage(`{"x":1}`),
			Token:      hashOf(t, `{"x":2}`),
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("after deadline", func(t *testing.T) {
		env.clock.Advance(31 * time.Minute)
		defer env.clock.Advance(-31 * time.Minute)
		_, err := env.ctrl.SubmitResult(ctx, &types.SubmitResultRequest{
			JobID:      posted.JobID,
			ExecutorID: "executor-1",
			Result:     json.RawMessage(`{"x":1}`),
			Token:      hashOf(t, `{"x":1}`),
		})
		assert.ErrorIs(t, err, ErrStateConflict)
	})
}

func TestCancelJob_PendingOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, nil)
	view, err := env.ctrl.CancelJob(ctx, &types.CancelJobRequest{JobID: posted.JobID, PosterID: "poster-1"})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCancelled, view.Status)

	// Terminal states are final records.
	_, err = env.ctrl.CancelJob(ctx, &types.CancelJobRequest{JobID: posted.JobID, PosterID: "poster-1"})
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestClaimTimeout_ForfeitsCollateral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, nil)
	env.acceptJob(t, posted.JobID, "executor-1")

	_, err := env.ctrl.ClaimTimeout(ctx, &types.ClaimTimeoutRequest{JobID: posted.JobID, PosterID: "poster-1"})
	assert.ErrorIs(t, err, ErrStateConflict, "Timeout cannot be claimed before the deadline")

	env.clock.Advance(31 * time.Minute)
	view, err := env.ctrl.ClaimTimeout(ctx, &types.ClaimTimeoutRequest{JobID: posted.JobID, PosterID: "poster-1"})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, view.Status)

	env.broker.Close()

	executor := env.agent(t, "executor-1")
	assert.Equal(t, int64(reputationPenalty), executor.Reputation)

	poster := env.agent(t, "poster-1")
	assert.Equal(t, int64(5), poster.TotalEarned.Int64(), "Forfeited collateral goes to the poster")
}

// Deadlines are computed once at creation and never recomputed.
func TestPostJob_DeadlineImmutable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, nil)
	job, err := env.store.Jobs.Get(ctx, posted.JobID)
	require.NoError(t, err)
	want := job.Deadline

	env.clock.Advance(10 * time.Minute)
	job, err = env.store.Jobs.Get(ctx, posted.JobID)
	require.NoError(t, err)
	assert.True(t, job.Deadline.Equal(want))
}

// Duplicate terminal transitions must not double-adjust stats.
func TestReconcileLedgerOutcome_ExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	posted := env.postJob(t, nil)
	env.acceptJob(t, posted.JobID, "executor-1")

	job, err := env.store.Jobs.Get(ctx, posted.JobID)
	require.NoError(t, err)

	applied, err := env.ctrl.ReconcileLedgerOutcome(ctx, job, types.JobStatusCompleted)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = env.ctrl.ReconcileLedgerOutcome(ctx, job, types.JobStatusCompleted)
	require.NoError(t, err)
	assert.False(t, applied, "A duplicate observation finds the guard already consumed")

	executor := env.agent(t, "executor-1")
	assert.Equal(t, int64(10), executor.TotalEarned.Int64())
	assert.Equal(t, int64(reputationReward), executor.Reputation)
}

// The ledger verdict overrides a disagreeing local optimistic verdict, and
// the retroactive correction adjusts stats exactly once.
func TestSubmitResult_LedgerVerdictOverridesLocal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	verified := true
	env.ledger.settleVerdict = &verified

	posted := env.postJob(t, func(r *types.PostJobRequest) {
		r.ExpectedToken = hashOf(t, `{"x":2}`)
	})
	env.acceptJob(t, posted.JobID, "executor-1")

	view, err := env.ctrl.SubmitResult(ctx, &types.SubmitResultRequest{
		JobID:      posted.JobID,
		ExecutorID: "executor-1",
		Result:     json.RawMessage(`{"x":1}`),
		Token:      hashOf(t, `{"x":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, view.Status, "Local verdict is a mismatch")

	env.broker.Close()

	job, err := env.store.Jobs.Get(ctx, posted.JobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, job.Status, "Ledger verdict is authoritative")

	executor := env.agent(t, "executor-1")
	assert.Equal(t, int64(10), executor.TotalEarned.Int64())
	assert.Equal(t, int64(reputationReward), executor.Reputation, "Correction reverses the penalty and applies the reward once")
}

func TestRegisterAgent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ctrl.RegisterAgent(ctx, &types.RegisterAgentRequest{
		WalletAddress: "not-an-address",
		Capabilities:  []string{"translate"},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.ctrl.RegisterAgent(ctx, &types.RegisterAgentRequest{
		WalletAddress: "0x000000000000000000000000000000000000dEaD",
	})
	assert.ErrorIs(t, err, ErrValidation)

	agent, err := env.ctrl.RegisterAgent(ctx, &types.RegisterAgentRequest{
		WalletAddress: "0x000000000000000000000000000000000000dEaD",
		Capabilities:  []string{"translate", "summarize"},
	})
	require.NoError(t, err)
	assert.True(t, agent.Active)
	assert.NotEmpty(t, agent.AgentID)

	env.broker.Close()

	id, err := env.store.Agents.ResolveWallet(ctx, "0x000000000000000000000000000000000000dead")
	require.NoError(t, err)
	assert.Equal(t, agent.AgentID, id)
}
