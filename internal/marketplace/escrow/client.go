package escrow

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/taskmesh/taskmesh-backend/pkg/logging"
)

const (
	defaultGasLimit    = 300000
	receiptPollBackoff = 2 * time.Second
)

// Client talks to the JobEscrow contract over JSON-RPC.
type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	signer   Signer
	logger   logging.Logger
}

var _ Ledger = (*Client)(nil)

func NewClient(rpcURL, contractAddress string, signer Signer, logger logging.Logger) (*Client, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid escrow contract address %q", contractAddress)
	}

	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger node: %w", err)
	}

	parsed, err := escrowABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %w", err)
	}

	return &Client{
		eth:      eth,
		abi:      parsed,
		contract: common.HexToAddress(contractAddress),
		signer:   signer,
		logger:   logger,
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// submit packs, signs and sends one contract call on behalf of an agent and
// returns the transaction hash without waiting for it to mine.
func (c *Client) submit(ctx context.Context, agentID string, value *big.Int, method string, args ...interface{}) (string, error) {
	calldata, err := c.abi.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s calldata: %w", method, err)
	}

	from, sign, err := c.signer.SignerFor(ctx, agentID)
	if err != nil {
		return "", err
	}

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.contract,
		Value: value,
		Data:  calldata,
	})
	if err != nil {
		c.logger.Debugf("Gas estimation for %s failed (%v), using default", method, err)
		gasLimit = defaultGasLimit
	}

	tx := gethtypes.NewTransaction(nonce, c.contract, value, gasLimit, gasPrice, calldata)
	signedTx, err := sign(tx)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s transaction: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send %s transaction: %w", method, err)
	}

	c.logger.Debugf("Submitted %s tx %s for agent %s", method, signedTx.Hash().Hex(), agentID)
	return signedTx.Hash().Hex(), nil
}

func (c *Client) PostJob(ctx context.Context, posterID string, payment, collateral *big.Int, deadline time.Time, expectedToken string, manualReview bool) (string, error) {
	var token common.Hash
	if expectedToken != "" {
		token = common.HexToHash(expectedToken)
	}
	return c.submit(ctx, posterID, payment, "postJob",
		collateral, uint64(deadline.Unix()), token, manualReview)
}

func (c *Client) AcceptJob(ctx context.Context, executorID string, ledgerJobID uint64, collateral *big.Int) (string, error) {
	return c.submit(ctx, executorID, collateral, "acceptJob", new(big.Int).SetUint64(ledgerJobID))
}

func (c *Client) SubmitResult(ctx context.Context, executorID string, ledgerJobID uint64, resultToken string) (string, error) {
	return c.submit(ctx, executorID, nil, "submitResult",
		new(big.Int).SetUint64(ledgerJobID), common.HexToHash(resultToken))
}

func (c *Client) ApproveJob(ctx context.Context, posterID string, ledgerJobID uint64, approved bool) (string, error) {
	return c.submit(ctx, posterID, nil, "approveJob", new(big.Int).SetUint64(ledgerJobID), approved)
}

func (c *Client) CancelJob(ctx context.Context, posterID string, ledgerJobID uint64) (string, error) {
	return c.submit(ctx, posterID, nil, "cancelJob", new(big.Int).SetUint64(ledgerJobID))
}

func (c *Client) ClaimTimeout(ctx context.Context, posterID string, ledgerJobID uint64) (string, error) {
	return c.submit(ctx, posterID, nil, "claimTimeout", new(big.Int).SetUint64(ledgerJobID))
}

func (c *Client) RegisterAgent(ctx context.Context, agentID, walletAddress string) (string, error) {
	return c.submit(ctx, agentID, nil, "registerAgent", agentID)
}

// WaitMined polls for the receipt of a submitted transaction and parses the
// ledger-assigned data out of its logs.
func (c *Client) WaitMined(ctx context.Context, txHash string) (*Receipt, error) {
	hash := common.HexToHash(txHash)

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return c.buildReceipt(receipt), nil
		}
		if err != ethereum.NotFound {
			return nil, fmt.Errorf("failed to fetch receipt for %s: %w", txHash, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receiptPollBackoff):
		}
	}
}

func (c *Client) buildReceipt(receipt *gethtypes.Receipt) *Receipt {
	out := &Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Success:     receipt.Status == gethtypes.ReceiptStatusSuccessful,
		GasFee:      new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice),
	}

	for _, log := range receipt.Logs {
		event, err := c.DecodeLog(log)
		if err != nil {
			continue
		}
		switch event.Name {
		case EventJobPosted:
			out.PostedJobID = event.LedgerJobID
		case EventJobSettled:
			verified := event.Verified
			out.SettleVerified = &verified
		}
	}
	return out
}

// JobStatus reads the contract's current status for a ledger job id.
func (c *Client) JobStatus(ctx context.Context, ledgerJobID uint64) (LedgerStatus, error) {
	calldata, err := c.abi.Pack("getJobStatus", new(big.Int).SetUint64(ledgerJobID))
	if err != nil {
		return 0, fmt.Errorf("failed to pack getJobStatus calldata: %w", err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: calldata}, nil)
	if err != nil {
		return 0, fmt.Errorf("getJobStatus call failed for ledger job %d: %w", ledgerJobID, err)
	}

	values, err := c.abi.Unpack("getJobStatus", raw)
	if err != nil || len(values) != 1 {
		return 0, fmt.Errorf("failed to unpack getJobStatus result: %w", err)
	}

	status, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected getJobStatus result type %T", values[0])
	}
	return LedgerStatus(status), nil
}
