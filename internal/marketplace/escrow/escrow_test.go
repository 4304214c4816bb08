package escrow

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/taskmesh-backend/pkg/logging"
)

// Well-known throwaway development key, never used on a real network.
const testKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func newDecodeClient(t *testing.T) *Client {
	t.Helper()
	parsed, err := escrowABI()
	require.NoError(t, err)
	return &Client{abi: parsed, logger: logging.NewNoopLogger()}
}

func TestEscrowABI_Parses(t *testing.T) {
	parsed, err := escrowABI()
	require.NoError(t, err)

	for _, name := range []string{EventJobPosted, EventJobAccepted, EventJobSettled, EventJobCancelled, EventAgentRegistered} {
		_, ok := parsed.Events[name]
		assert.True(t, ok, "missing event %s", name)
	}
	for _, name := range []string{"postJob", "acceptJob", "submitResult", "approveJob", "cancelJob", "claimTimeout", "registerAgent", "getJobStatus"} {
		_, ok := parsed.Methods[name]
		assert.True(t, ok, "missing method %s", name)
	}
}

func TestDecodeLog_JobAccepted(t *testing.T) {
	c := newDecodeClient(t)
	executor := common.HexToAddress("0x00000000000000000000000000000000000000e1")

	data, err := c.abi.Events[EventJobAccepted].Inputs.NonIndexed().Pack(big.NewInt(5))
	require.NoError(t, err)

	event, err := c.DecodeLog(&gethtypes.Log{
		Topics: []common.Hash{
			c.abi.Events[EventJobAccepted].ID,
			common.BigToHash(big.NewInt(7)),
			common.BytesToHash(executor.Bytes()),
		},
		Data:        data,
		BlockNumber: 42,
		TxHash:      common.HexToHash("0x01"),
	})
	require.NoError(t, err)

	assert.Equal(t, EventJobAccepted, event.Name)
	assert.Equal(t, uint64(7), event.LedgerJobID)
	assert.Equal(t, executor, event.Wallet)
	assert.Equal(t, int64(5), event.Amount.Int64())
	assert.Equal(t, uint64(42), event.BlockNumber)
}

func TestDecodeLog_JobSettled(t *testing.T) {
	c := newDecodeClient(t)
	executor := common.HexToAddress("0x00000000000000000000000000000000000000e1")

	data, err := c.abi.Events[EventJobSettled].Inputs.NonIndexed().Pack(true, big.NewInt(10))
	require.NoError(t, err)

	event, err := c.DecodeLog(&gethtypes.Log{
		Topics: []common.Hash{
			c.abi.Events[EventJobSettled].ID,
			common.BigToHash(big.NewInt(7)),
			common.BytesToHash(executor.Bytes()),
		},
		Data: data,
	})
	require.NoError(t, err)

	assert.Equal(t, EventJobSettled, event.Name)
	assert.True(t, event.Verified)
	assert.Equal(t, int64(10), event.Amount.Int64())
}

func TestDecodeLog_AgentRegistered(t *testing.T) {
	c := newDecodeClient(t)
	wallet := common.HexToAddress("0x00000000000000000000000000000000000000f2")

	data, err := c.abi.Events[EventAgentRegistered].Inputs.NonIndexed().Pack("agent-42")
	require.NoError(t, err)

	event, err := c.DecodeLog(&gethtypes.Log{
		Topics: []common.Hash{
			c.abi.Events[EventAgentRegistered].ID,
			common.BytesToHash(wallet.Bytes()),
		},
		Data: data,
	})
	require.NoError(t, err)

	assert.Equal(t, EventAgentRegistered, event.Name)
	assert.Equal(t, wallet, event.Wallet)
	assert.Equal(t, "agent-42", event.AgentID)
}

func TestDecodeLog_UnknownTopic(t *testing.T) {
	c := newDecodeClient(t)

	_, err := c.DecodeLog(&gethtypes.Log{Topics: []common.Hash{common.HexToHash("0xdead")}})
	assert.Error(t, err)

	_, err = c.DecodeLog(&gethtypes.Log{})
	assert.Error(t, err)
}

func TestLedgerStatus(t *testing.T) {
	assert.Equal(t, "open", LedgerStatusOpen.String())
	assert.Equal(t, "completed_mismatch", LedgerStatusCompletedMismatch.String())

	assert.False(t, LedgerStatusOpen.IsTerminal())
	assert.False(t, LedgerStatusAssigned.IsTerminal())
	assert.True(t, LedgerStatusCompletedVerified.IsTerminal())
	assert.True(t, LedgerStatusCompletedMismatch.IsTerminal())
	assert.True(t, LedgerStatusCancelled.IsTerminal())
	assert.True(t, LedgerStatusTimedOut.IsTerminal())
}

func TestLocalSigner(t *testing.T) {
	signer := NewLocalSigner(big.NewInt(17000))
	require.NoError(t, signer.AddKey("agent-1", testKeyHex))

	addr, sign, err := signer.SignerFor(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, addr)

	tx := gethtypes.NewTransaction(0, common.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil)
	signed, err := sign(tx)
	require.NoError(t, err)

	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(big.NewInt(17000)), signed)
	require.NoError(t, err)
	assert.Equal(t, addr, from)

	_, _, err = signer.SignerFor(context.Background(), "unknown")
	assert.Error(t, err)
}
