package controller

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/taskmesh/taskmesh-backend/internal/marketplace/broker"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/escrow"
	"github.com/taskmesh/taskmesh-backend/internal/marketplace/repository"
	"github.com/taskmesh/taskmesh-backend/pkg/events"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
	"github.com/taskmesh/taskmesh-backend/pkg/resulthash"
	"github.com/taskmesh/taskmesh-backend/pkg/types"
)

// Reputation deltas applied once per job reaching a terminal state.
const (
	reputationReward  = 10
	reputationPenalty = -25
)

// Notifier is the fire-and-forget lifecycle event publisher.
type Notifier interface {
	Publish(event events.Event)
}

// Deps are the controller's collaborators, injected explicitly.
type Deps struct {
	Jobs   repository.JobRepository
	Agents repository.AgentRepository
	Broker *broker.Broker
	Ledger escrow.Ledger
	Bus    Notifier
	Logger logging.Logger

	// Now defaults to time.Now. Tests override it to control deadlines.
	Now func() time.Time
}

// Controller orchestrates the job lifecycle. It validates requests against
// the projection, applies optimistic local transitions guarded by conditional
// status updates, and hands ledger calls to the broker. The ledger remains
// authoritative; asynchronous confirmations reconcile back into the
// projection through the callbacks here and the sweeper.
type Controller struct {
	jobs   repository.JobRepository
	agents repository.AgentRepository
	broker *broker.Broker
	ledger escrow.Ledger
	bus    Notifier
	logger logging.Logger
	now    func() time.Time
}

func New(d Deps) *Controller {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		jobs:   d.Jobs,
		agents: d.Agents,
		broker: d.Broker,
		ledger: d.Ledger,
		bus:    d.Bus,
		logger: d.Logger,
		now:    now,
	}
}

// PostJob creates a job. It blocks until the ledger post transaction
// confirms; a failed submission leaves no local record.
func (c *Controller) PostJob(ctx context.Context, req *types.PostJobRequest) (*types.JobView, error) {
	if req.PosterID == "" {
		return nil, validationError("poster_id is required")
	}
	if req.CapabilityTag == "" {
		return nil, validationError("capability_tag is required")
	}
	if req.Description == "" {
		return nil, validationError("description is required")
	}
	if req.DeadlineMinutes <= 0 {
		return nil, validationError("deadline_minutes must be positive")
	}
	// Zero-value terms are only allowed for manual-review jobs.
	if !isPositive(req.Payment) || !isPositive(req.Collateral) {
		if !req.ManualReview || isPositive(req.Payment) != isPositive(req.Collateral) {
			return nil, validationError("payment and collateral must be positive")
		}
	}

	now := c.now().UTC()
	deadline := now.Add(time.Duration(req.DeadlineMinutes) * time.Minute)
	payment := orZero(req.Payment)
	collateral := orZero(req.Collateral)

	receipt, err := c.broker.SubmitAndWait(ctx, broker.Submission{
		AgentID:  req.PosterID,
		Action:   types.TxActionPost,
		Metadata: map[string]string{"capability_tag": req.CapabilityTag},
		Send: func(ctx context.Context) (string, error) {
			return c.ledger.PostJob(ctx, req.PosterID, payment, collateral, deadline, req.ExpectedToken, req.ManualReview)
		},
	})
	if err != nil {
		return nil, err
	}

	job := &types.Job{
		JobID:         uuid.New().String(),
		LedgerJobID:   receipt.PostedJobID,
		PosterID:      req.PosterID,
		CapabilityTag: req.CapabilityTag,
		Description:   req.Description,
		Payment:       payment,
		Collateral:    collateral,
		Deadline:      deadline,
		ExpectedToken: req.ExpectedToken,
		ManualReview:  req.ManualReview,
		Status:        types.JobStatusPending,
		PostTxHash:    receipt.TxHash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	c.publish(events.JobPosted, job.JobID, req.PosterID)
	c.logger.Infof("Posted job %s (ledger id %d) by %s", job.JobID, job.LedgerJobID, req.PosterID)

	return &types.JobView{JobID: job.JobID, LedgerJobID: job.LedgerJobID, Status: job.Status, TxHash: receipt.TxHash}, nil
}

// AcceptJob binds an executor. The projection transition is optimistic: it is
// applied before the ledger confirms so the job becomes unavailable to other
// executors immediately. The conditional update enforces at most one winner.
func (c *Controller) AcceptJob(ctx context.Context, req *types.AcceptJobRequest) (*types.JobView, error) {
	if req.JobID == "" || req.ExecutorID == "" {
		return nil, validationError("job_id and executor_id are required")
	}

	job, err := c.getJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusPending {
		return nil, conflictError("job %s is %s, not pending", job.JobID, job.Status)
	}
	if req.ExecutorID == job.PosterID {
		return nil, conflictError("poster cannot accept their own job")
	}
	if c.now().After(job.Deadline) {
		return nil, conflictError("job %s deadline has passed", job.JobID)
	}
	collateral := orZero(req.Collateral)
	if collateral.Cmp(job.Collateral) < 0 {
		return nil, conflictError("offered collateral %s below required %s", collateral, job.Collateral)
	}

	applied, err := c.jobs.BindExecutor(ctx, job.JobID, req.ExecutorID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, conflictError("job %s was accepted concurrently", job.JobID)
	}

	txHash := c.submitAsync(ctx, req.ExecutorID, types.TxActionAccept, job.JobID, func(ctx context.Context) (string, error) {
		return c.ledger.AcceptJob(ctx, req.ExecutorID, job.LedgerJobID, collateral)
	}, func(receipt *escrow.Receipt) {
		// Confirmation updates linkage only; the state is already optimistic.
		if err := c.jobs.SetTxHash(context.Background(), job.JobID, types.TxActionAccept, receipt.TxHash); err != nil {
			c.logger.Errorf("Failed to link accept tx %s to job %s: %v", receipt.TxHash, job.JobID, err)
		}
	})

	c.publish(events.JobAccepted, job.JobID, req.ExecutorID)
	return &types.JobView{JobID: job.JobID, LedgerJobID: job.LedgerJobID, Status: types.JobStatusAccepted, TxHash: txHash}, nil
}

// SubmitResult records the executor's result. The claimed token is recomputed
// locally from the payload; a mismatch is rejected unless the job is under
// manual review, where mismatches are forwarded for human judgment.
func (c *Controller) SubmitResult(ctx context.Context, req *types.SubmitResultRequest) (*types.JobView, error) {
	if req.JobID == "" || req.ExecutorID == "" {
		return nil, validationError("job_id and executor_id are required")
	}
	if len(req.Result) == 0 || req.Token == "" {
		return nil, validationError("result and token are required")
	}

	job, err := c.getJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusAccepted {
		return nil, conflictError("job %s is %s, not accepted", job.JobID, job.Status)
	}
	if req.ExecutorID != job.ExecutorID {
		return nil, conflictError("agent %s is not the bound executor", req.ExecutorID)
	}
	if c.now().After(job.Deadline) {
		return nil, conflictError("job %s deadline has passed", job.JobID)
	}

	recomputed, err := resulthash.Token(req.Result)
	if err != nil {
		return nil, validationError("result is not hashable: %v", err)
	}
	if !resulthash.Matches(recomputed, req.Token) && !job.ManualReview {
		return nil, validationError("claimed token does not match submitted result")
	}

	if job.ManualReview {
		applied, err := c.jobs.RecordSubmission(ctx, job.JobID, req.Result, req.Token, types.JobStatusAccepted, types.JobStatusPendingReview)
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, conflictError("job %s changed state concurrently", job.JobID)
		}
		return &types.JobView{JobID: job.JobID, LedgerJobID: job.LedgerJobID, Status: types.JobStatusPendingReview}, nil
	}

	match := job.ExpectedToken == "" || resulthash.Matches(job.ExpectedToken, req.Token)
	target := types.JobStatusCompleted
	if !match {
		target = types.JobStatusFailed
	}

	applied, err := c.jobs.RecordSubmission(ctx, job.JobID, req.Result, req.Token, types.JobStatusAccepted, target)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, conflictError("job %s changed state concurrently", job.JobID)
	}

	// Only the first transition into a terminal state mutates stats.
	c.applyTerminalStats(ctx, job, target)

	token := req.Token
	txHash := c.submitAsync(ctx, req.ExecutorID, types.TxActionSubmit, job.JobID, func(ctx context.Context) (string, error) {
		return c.ledger.SubmitResult(ctx, req.ExecutorID, job.LedgerJobID, token)
	}, func(receipt *escrow.Receipt) {
		c.reconcileSettlement(job, target, receipt)
	})

	c.publishOutcome(job.JobID, job.ExecutorID, target)
	return &types.JobView{JobID: job.JobID, LedgerJobID: job.LedgerJobID, Status: target, TxHash: txHash}, nil
}

// ValidateJob resolves a manual-review submission. Approve settles and pays;
// reject penalizes the executor and pays nothing.
func (c *Controller) ValidateJob(ctx context.Context, req *types.ValidateJobRequest) (*types.JobView, error) {
	if req.JobID == "" || req.PosterID == "" {
		return nil, validationError("job_id and poster_id are required")
	}

	job, err := c.getJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusPendingReview {
		return nil, conflictError("job %s is %s, not pending_review", job.JobID, job.Status)
	}
	if req.PosterID != job.PosterID {
		return nil, conflictError("only the poster can validate job %s", job.JobID)
	}

	target := types.JobStatusCompleted
	if !req.Approved {
		target = types.JobStatusFailed
	}

	applied, err := c.jobs.TransitionStatus(ctx, job.JobID, types.JobStatusPendingReview, target)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, conflictError("job %s changed state concurrently", job.JobID)
	}

	c.applyTerminalStats(ctx, job, target)

	txHash := c.submitAsync(ctx, req.PosterID, types.TxActionSubmit, job.JobID, func(ctx context.Context) (string, error) {
		return c.ledger.ApproveJob(ctx, req.PosterID, job.LedgerJobID, req.Approved)
	}, func(receipt *escrow.Receipt) {
		if err := c.jobs.SetTxHash(context.Background(), job.JobID, types.TxActionSubmit, receipt.TxHash); err != nil {
			c.logger.Errorf("Failed to link settle tx %s to job %s: %v", receipt.TxHash, job.JobID, err)
		}
	})

	c.publishOutcome(job.JobID, job.ExecutorID, target)
	return &types.JobView{JobID: job.JobID, LedgerJobID: job.LedgerJobID, Status: target, TxHash: txHash}, nil
}

// CancelJob withdraws a still-pending job. The ledger refunds the poster.
func (c *Controller) CancelJob(ctx context.Context, req *types.CancelJobRequest) (*types.JobView, error) {
	if req.JobID == "" || req.PosterID == "" {
		return nil, validationError("job_id and poster_id are required")
	}

	job, err := c.getJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusPending {
		return nil, conflictError("job %s is %s, not pending", job.JobID, job.Status)
	}
	if req.PosterID != job.PosterID {
		return nil, conflictError("only the poster can cancel job %s", job.JobID)
	}

	applied, err := c.jobs.TransitionStatus(ctx, job.JobID, types.JobStatusPending, types.JobStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, conflictError("job %s changed state concurrently", job.JobID)
	}

	txHash := c.submitAsync(ctx, req.PosterID, types.TxActionWithdraw, job.JobID, func(ctx context.Context) (string, error) {
		return c.ledger.CancelJob(ctx, req.PosterID, job.LedgerJobID)
	}, nil)

	c.publish(events.JobCancelled, job.JobID, req.PosterID)
	return &types.JobView{JobID: job.JobID, LedgerJobID: job.LedgerJobID, Status: types.JobStatusCancelled, TxHash: txHash}, nil
}

// ClaimTimeout lets the poster fail an accepted job whose deadline has
// elapsed. Collateral is forfeited to the poster and the payment refunded.
func (c *Controller) ClaimTimeout(ctx context.Context, req *types.ClaimTimeoutRequest) (*types.JobView, error) {
	if req.JobID == "" || req.PosterID == "" {
		return nil, validationError("job_id and poster_id are required")
	}

	job, err := c.getJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusAccepted {
		return nil, conflictError("job %s is %s, not accepted", job.JobID, job.Status)
	}
	if req.PosterID != job.PosterID {
		return nil, conflictError("only the poster can claim a timeout on job %s", job.JobID)
	}
	if !c.now().After(job.Deadline) {
		return nil, conflictError("job %s deadline has not passed", job.JobID)
	}

	applied, err := c.jobs.TransitionStatus(ctx, job.JobID, types.JobStatusAccepted, types.JobStatusFailed)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, conflictError("job %s changed state concurrently", job.JobID)
	}

	c.applyTimeoutStats(ctx, job)

	txHash := c.submitAsync(ctx, req.PosterID, types.TxActionWithdraw, job.JobID, func(ctx context.Context) (string, error) {
		return c.ledger.ClaimTimeout(ctx, req.PosterID, job.LedgerJobID)
	}, nil)

	c.publishOutcome(job.JobID, job.ExecutorID, types.JobStatusFailed)
	return &types.JobView{JobID: job.JobID, LedgerJobID: job.LedgerJobID, Status: types.JobStatusFailed, TxHash: txHash}, nil
}

// RegisterAgent creates a participant and submits the ledger registration.
func (c *Controller) RegisterAgent(ctx context.Context, req *types.RegisterAgentRequest) (*types.Agent, error) {
	if !common.IsHexAddress(req.WalletAddress) {
		return nil, validationError("wallet_address %q is not a valid address", req.WalletAddress)
	}
	if len(req.Capabilities) == 0 {
		return nil, validationError("at least one capability is required")
	}

	agent := &types.Agent{
		AgentID:       uuid.New().String(),
		WalletAddress: req.WalletAddress,
		Capabilities:  req.Capabilities,
		TotalEarned:   big.NewInt(0),
		TotalSpent:    big.NewInt(0),
		Active:        true,
		CreatedAt:     c.now().UTC(),
	}
	if err := c.agents.Create(ctx, agent); err != nil {
		return nil, err
	}

	c.submitAsync(ctx, agent.AgentID, types.TxActionRegister, "", func(ctx context.Context) (string, error) {
		return c.ledger.RegisterAgent(ctx, agent.AgentID, agent.WalletAddress)
	}, nil)

	c.publish(events.AgentRegistered, "", agent.AgentID)
	return agent, nil
}

// ReconcileLedgerOutcome moves an accepted job to the terminal status the
// ledger reports, through the same conditional update and stat path as the
// serving operations. It returns whether the correction was applied; a false
// result means another writer already moved the job.
func (c *Controller) ReconcileLedgerOutcome(ctx context.Context, job *types.Job, target types.JobStatus) (bool, error) {
	if !target.IsTerminal() {
		return false, validationError("%s is not a terminal status", target)
	}

	applied, err := c.jobs.TransitionStatus(ctx, job.JobID, types.JobStatusAccepted, target)
	if err != nil || !applied {
		return false, err
	}

	c.applyTerminalStats(ctx, job, target)
	switch target {
	case types.JobStatusCancelled:
		c.publish(events.JobCancelled, job.JobID, job.PosterID)
	default:
		c.publishOutcome(job.JobID, job.ExecutorID, target)
	}
	return true, nil
}

// GetJob reads the projection.
func (c *Controller) GetJob(ctx context.Context, jobID string) (*types.Job, error) {
	return c.getJob(ctx, jobID)
}

func (c *Controller) getJob(ctx context.Context, jobID string) (*types.Job, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, conflictError("job %s does not exist", jobID)
	}
	return job, err
}

// submitAsync wraps a ledger call that must not block the request path.
// A submission failure is logged but the optimistic local transition is not
// rolled back; the sweeper reconciles eventual divergence.
func (c *Controller) submitAsync(ctx context.Context, agentID string, action types.TxAction, jobID string, send func(context.Context) (string, error), onMined func(*escrow.Receipt)) string {
	meta := map[string]string{}
	if jobID != "" {
		meta["job_id"] = jobID
	}
	txHash, err := c.broker.SubmitAsync(ctx, broker.Submission{
		AgentID:  agentID,
		Action:   action,
		Metadata: meta,
		Send:     send,
	}, onMined)
	if err != nil {
		c.logger.Errorf("Ledger %s submission failed for job %s: %v", action, jobID, err)
		return ""
	}
	return txHash
}

// reconcileSettlement re-derives the terminal status from the ledger's own
// verdict once the settle transaction confirms. The conditional update makes
// the correction idempotent: a duplicate confirmation finds the status
// already moved and adjusts nothing.
func (c *Controller) reconcileSettlement(job *types.Job, local types.JobStatus, receipt *escrow.Receipt) {
	ctx := context.Background()

	if err := c.jobs.SetTxHash(ctx, job.JobID, types.TxActionSubmit, receipt.TxHash); err != nil {
		c.logger.Errorf("Failed to link settle tx %s to job %s: %v", receipt.TxHash, job.JobID, err)
	}
	if !receipt.Success || receipt.SettleVerified == nil {
		return
	}

	ledgerTarget := types.JobStatusCompleted
	if !*receipt.SettleVerified {
		ledgerTarget = types.JobStatusFailed
	}
	if ledgerTarget == local {
		return
	}

	applied, err := c.jobs.TransitionStatus(ctx, job.JobID, local, ledgerTarget)
	if err != nil {
		c.logger.Errorf("Failed to correct job %s to ledger verdict %s: %v", job.JobID, ledgerTarget, err)
		return
	}
	if !applied {
		return
	}

	c.logger.Warnf("Ledger verdict %s overrides local %s for job %s", ledgerTarget, local, job.JobID)
	c.reverseTerminalStats(ctx, job, local)
	c.applyTerminalStats(ctx, job, ledgerTarget)
	c.publishOutcome(job.JobID, job.ExecutorID, ledgerTarget)
}

// applyTerminalStats adjusts both parties' totals and reputation. Callers
// only invoke it after winning the terminal conditional update, which is what
// makes the adjustment exactly-once.
func (c *Controller) applyTerminalStats(ctx context.Context, job *types.Job, target types.JobStatus) {
	switch target {
	case types.JobStatusCompleted:
		c.applyOutcome(ctx, job.ExecutorID, job.Payment, nil, reputationReward)
		c.applyOutcome(ctx, job.PosterID, nil, job.Payment, 0)
	case types.JobStatusFailed:
		c.applyOutcome(ctx, job.ExecutorID, nil, nil, reputationPenalty)
	}
}

func (c *Controller) reverseTerminalStats(ctx context.Context, job *types.Job, target types.JobStatus) {
	switch target {
	case types.JobStatusCompleted:
		c.applyOutcome(ctx, job.ExecutorID, new(big.Int).Neg(job.Payment), nil, -reputationReward)
		c.applyOutcome(ctx, job.PosterID, nil, new(big.Int).Neg(job.Payment), 0)
	case types.JobStatusFailed:
		c.applyOutcome(ctx, job.ExecutorID, nil, nil, -reputationPenalty)
	}
}

// applyTimeoutStats forfeits the executor's collateral to the poster on top
// of the usual failure penalty.
func (c *Controller) applyTimeoutStats(ctx context.Context, job *types.Job) {
	c.applyOutcome(ctx, job.ExecutorID, nil, nil, reputationPenalty)
	c.applyOutcome(ctx, job.PosterID, job.Collateral, nil, 0)
}

func (c *Controller) applyOutcome(ctx context.Context, agentID string, earned, spent *big.Int, reputationDelta int64) {
	if agentID == "" {
		return
	}
	if err := c.agents.ApplyJobOutcome(ctx, agentID, orZero(earned), orZero(spent), reputationDelta); err != nil {
		c.logger.Errorf("Failed to apply job outcome to agent %s: %v", agentID, err)
	}
}

func (c *Controller) publish(eventType events.EventType, jobID, agentID string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{
		Type:      eventType,
		JobID:     jobID,
		AgentID:   agentID,
		Timestamp: c.now().UTC(),
	})
}

func (c *Controller) publishOutcome(jobID, agentID string, target types.JobStatus) {
	if target == types.JobStatusCompleted {
		c.publish(events.JobCompleted, jobID, agentID)
	} else {
		c.publish(events.JobFailed, jobID, agentID)
	}
}

func isPositive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	return x
}
