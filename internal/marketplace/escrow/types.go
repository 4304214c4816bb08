// Package escrow is the client for the authoritative escrow contract. The
// contract holds funds and enforces the canonical job state machine; this
// package only reaches it through signed transactions and subscribable
// events, never through shared state.
package escrow

import (
	"context"
	"math/big"
	"time"
)

// LedgerStatus is the contract's own job status enum.
type LedgerStatus uint8

const (
	LedgerStatusOpen LedgerStatus = iota
	LedgerStatusAssigned
	LedgerStatusCompletedVerified
	LedgerStatusCompletedMismatch
	LedgerStatusCancelled
	LedgerStatusTimedOut
)

func (s LedgerStatus) String() string {
	switch s {
	case LedgerStatusOpen:
		return "open"
	case LedgerStatusAssigned:
		return "assigned"
	case LedgerStatusCompletedVerified:
		return "completed_verified"
	case LedgerStatusCompletedMismatch:
		return "completed_mismatch"
	case LedgerStatusCancelled:
		return "cancelled"
	case LedgerStatusTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// IsTerminal reports whether the ledger considers the job settled.
func (s LedgerStatus) IsTerminal() bool {
	switch s {
	case LedgerStatusCompletedVerified, LedgerStatusCompletedMismatch, LedgerStatusCancelled, LedgerStatusTimedOut:
		return true
	}
	return false
}

// Receipt is the confirmed outcome of a ledger transaction, with the
// ledger-assigned data parsed out of the receipt logs.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	GasFee      *big.Int
	Success     bool

	// PostedJobID is set when the receipt carries a JobPosted event.
	PostedJobID uint64

	// SettleVerified is set when the receipt carries a JobSettled event;
	// it is the ledger's own verdict on the submitted result.
	SettleVerified *bool
}

// Ledger is the escrow contract surface the marketplace depends on. All
// submit calls return the transaction hash immediately; confirmation is a
// separate WaitMined call so the broker decides what blocks and what doesn't.
type Ledger interface {
	PostJob(ctx context.Context, posterID string, payment, collateral *big.Int, deadline time.Time, expectedToken string, manualReview bool) (string, error)
	AcceptJob(ctx context.Context, executorID string, ledgerJobID uint64, collateral *big.Int) (string, error)
	SubmitResult(ctx context.Context, executorID string, ledgerJobID uint64, resultToken string) (string, error)
	ApproveJob(ctx context.Context, posterID string, ledgerJobID uint64, approved bool) (string, error)
	CancelJob(ctx context.Context, posterID string, ledgerJobID uint64) (string, error)
	ClaimTimeout(ctx context.Context, posterID string, ledgerJobID uint64) (string, error)
	RegisterAgent(ctx context.Context, agentID, walletAddress string) (string, error)

	WaitMined(ctx context.Context, txHash string) (*Receipt, error)
	JobStatus(ctx context.Context, ledgerJobID uint64) (LedgerStatus, error)
}
