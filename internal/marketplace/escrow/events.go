package escrow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Event is a decoded escrow contract event. Delivery is not assumed ordered
// or exactly-once; consumers fold events idempotently by transaction hash.
type Event struct {
	Name        string
	TxHash      string
	BlockNumber uint64
	LedgerJobID uint64
	Wallet      common.Address
	Amount      *big.Int
	Verified    bool
	AgentID     string
}

// EventSource is the subscription/backfill surface the indexer needs.
type EventSource interface {
	// SubscribeEvents starts a live tail of contract events. The returned
	// channel closes when the subscription drops; callers reconnect.
	SubscribeEvents(ctx context.Context) (<-chan Event, error)

	// FilterRange replays historical events over an inclusive block range.
	FilterRange(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error)

	// CurrentBlock returns the ledger head block number.
	CurrentBlock(ctx context.Context) (uint64, error)
}

var _ EventSource = (*Client)(nil)

// DecodeLog turns a raw contract log into a typed Event.
func (c *Client) DecodeLog(log *gethtypes.Log) (*Event, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log without topics")
	}

	event := &Event{
		TxHash:      log.TxHash.Hex(),
		BlockNumber: log.BlockNumber,
	}

	switch log.Topics[0] {
	case c.abi.Events[EventJobPosted].ID:
		event.Name = EventJobPosted
		event.LedgerJobID = new(big.Int).SetBytes(log.Topics[1].Bytes()).Uint64()
		event.Wallet = common.BytesToAddress(log.Topics[2].Bytes())
		values, err := c.abi.Unpack(EventJobPosted, log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack JobPosted data: %w", err)
		}
		event.Amount = values[0].(*big.Int)

	case c.abi.Events[EventJobAccepted].ID:
		event.Name = EventJobAccepted
		event.LedgerJobID = new(big.Int).SetBytes(log.Topics[1].Bytes()).Uint64()
		event.Wallet = common.BytesToAddress(log.Topics[2].Bytes())
		values, err := c.abi.Unpack(EventJobAccepted, log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack JobAccepted data: %w", err)
		}
		event.Amount = values[0].(*big.Int)

	case c.abi.Events[EventJobSettled].ID:
		event.Name = EventJobSettled
		event.LedgerJobID = new(big.Int).SetBytes(log.Topics[1].Bytes()).Uint64()
		event.Wallet = common.BytesToAddress(log.Topics[2].Bytes())
		values, err := c.abi.Unpack(EventJobSettled, log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack JobSettled data: %w", err)
		}
		event.Verified = values[0].(bool)
		event.Amount = values[1].(*big.Int)

	case c.abi.Events[EventJobCancelled].ID:
		event.Name = EventJobCancelled
		event.LedgerJobID = new(big.Int).SetBytes(log.Topics[1].Bytes()).Uint64()

	case c.abi.Events[EventAgentRegistered].ID:
		event.Name = EventAgentRegistered
		event.Wallet = common.BytesToAddress(log.Topics[1].Bytes())
		values, err := c.abi.Unpack(EventAgentRegistered, log.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack AgentRegistered data: %w", err)
		}
		event.AgentID = values[0].(string)

	default:
		return nil, fmt.Errorf("unknown event topic %s", log.Topics[0].Hex())
	}

	return event, nil
}

func (c *Client) SubscribeEvents(ctx context.Context) (<-chan Event, error) {
	logs := make(chan gethtypes.Log, 256)
	sub, err := c.eth.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{c.contract},
	}, logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to escrow logs: %w", err)
	}

	out := make(chan Event, 256)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				c.logger.Warnf("Escrow log subscription dropped: %v", err)
				return
			case log := <-logs:
				event, err := c.DecodeLog(&log)
				if err != nil {
					c.logger.Debugf("Skipping undecodable log in tx %s: %v", log.TxHash.Hex(), err)
					continue
				}
				select {
				case out <- *event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (c *Client) FilterRange(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contract},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter escrow logs %d-%d: %w", fromBlock, toBlock, err)
	}

	events := make([]Event, 0, len(logs))
	for i := range logs {
		event, err := c.DecodeLog(&logs[i])
		if err != nil {
			c.logger.Debugf("Skipping undecodable log in tx %s: %v", logs[i].TxHash.Hex(), err)
			continue
		}
		events = append(events, *event)
	}
	return events, nil
}

func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}
