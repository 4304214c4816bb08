package types

import (
	"math/big"
	"time"
)

// Agent is a marketplace participant. Reputation and the cumulative totals
// are adjusted only as a side effect of a job reaching a terminal state, and
// only once per job.
type Agent struct {
	AgentID       string
	WalletAddress string
	Capabilities  []string
	Reputation    int64
	TotalEarned   *big.Int
	TotalSpent    *big.Int
	Active        bool
	CreatedAt     time.Time
}
