package types

import (
	"encoding/json"
	"math/big"
)

// PostJobRequest creates a job. DeadlineMinutes is a relative offset; the
// absolute deadline is computed at creation time and never again.
type PostJobRequest struct {
	PosterID        string          `json:"poster_id"`
	CapabilityTag   string          `json:"capability_tag"`
	Description     string          `json:"description"`
	Payment         *big.Int        `json:"payment"`
	Collateral      *big.Int        `json:"collateral"`
	DeadlineMinutes int64           `json:"deadline_minutes"`
	ExpectedToken   string          `json:"expected_token,omitempty"`
	ManualReview    bool            `json:"manual_review"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

type AcceptJobRequest struct {
	JobID      string   `json:"job_id"`
	ExecutorID string   `json:"executor_id"`
	Collateral *big.Int `json:"collateral"`
}

type SubmitResultRequest struct {
	JobID      string          `json:"job_id"`
	ExecutorID string          `json:"executor_id"`
	Result     json.RawMessage `json:"result"`
	Token      string          `json:"token"`
}

type ValidateJobRequest struct {
	JobID    string `json:"job_id"`
	PosterID string `json:"poster_id"`
	Approved bool   `json:"approved"`
}

type CancelJobRequest struct {
	JobID    string `json:"job_id"`
	PosterID string `json:"poster_id"`
}

type ClaimTimeoutRequest struct {
	JobID    string `json:"job_id"`
	PosterID string `json:"poster_id"`
}

type RegisterAgentRequest struct {
	WalletAddress string   `json:"wallet_address"`
	Capabilities  []string `json:"capabilities"`
}

// JobView is the response for every lifecycle operation.
type JobView struct {
	JobID       string    `json:"job_id"`
	LedgerJobID uint64    `json:"ledger_job_id,omitempty"`
	Status      JobStatus `json:"status"`
	TxHash      string    `json:"tx_hash,omitempty"`
}
