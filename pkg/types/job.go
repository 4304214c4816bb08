package types

import (
	"encoding/json"
	"math/big"
	"time"
)

// JobStatus tracks a job through the escrow lifecycle. The set of states and
// allowed transitions mirrors the escrow contract exactly; the projection is
// only ever ahead of the ledger by one optimistic transition.
type JobStatus string

const (
	JobStatusPending       JobStatus = "pending"
	JobStatusAccepted      JobStatus = "accepted"
	JobStatusPendingReview JobStatus = "pending_review"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusFailed        JobStatus = "failed"
	JobStatusCancelled     JobStatus = "cancelled"
)

// IsTerminal reports whether the status is a final record.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job is the central projection entity. JobID is generated locally;
// LedgerJobID is bound once the posting transaction confirms and is 0 before
// that. Deadline is computed once at creation and never recomputed.
type Job struct {
	JobID         string
	LedgerJobID   uint64
	PosterID      string
	ExecutorID    string
	CapabilityTag string
	Description   string
	Payment       *big.Int
	Collateral    *big.Int
	Deadline      time.Time
	ExpectedToken string
	ManualReview  bool
	Result        json.RawMessage
	ResultToken   string
	Status        JobStatus
	PostTxHash    string
	AcceptTxHash  string
	SettleTxHash  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
