package types

import (
	"math/big"
	"time"
)

// TxAction is the kind of ledger-affecting call a transaction record tracks.
type TxAction string

const (
	TxActionPost     TxAction = "post"
	TxActionAccept   TxAction = "accept"
	TxActionSubmit   TxAction = "submit"
	TxActionWithdraw TxAction = "withdraw"
	TxActionRegister TxAction = "register"
)

// TxStatus transitions are monotonically forward: pending -> confirmed|failed.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// Rank orders statuses so an upsert can refuse to overwrite a record with a
// less-advanced one.
func (s TxStatus) Rank() int {
	switch s {
	case TxStatusPending:
		return 0
	case TxStatusConfirmed, TxStatusFailed:
		return 1
	}
	return -1
}

// TransactionRecord is one row per outbound ledger action, keyed by the
// globally unique transaction hash.
type TransactionRecord struct {
	TxHash      string
	AgentID     string
	Action      TxAction
	Status      TxStatus
	BlockNumber uint64
	GasFee      *big.Int
	Metadata    map[string]string
	ErrorCause  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
