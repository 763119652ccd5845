package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"chipbridge/models"
)

// Client wraps a connection to a blockchain node. Events are delivered
// at least once; duplicates are possible and ordering across distinct
// transactions is not guaranteed.
type Client interface {
	// BlockNumber returns the current chain height
	BlockNumber(ctx context.Context) (uint64, error)

	// CodeAt returns the deployed bytecode at an address, empty if none
	CodeAt(ctx context.Context, address string) ([]byte, error)

	// SubscribeEvents subscribes to the escrow contract's deposit and
	// faucet-claim events and pushes decoded ChainEvents onto the
	// returned channel. Transport errors arrive on the error channel.
	SubscribeEvents(ctx context.Context, contract string) (<-chan models.ChainEvent, <-chan error, error)

	// Unsubscribe tears down the active event subscription
	Unsubscribe()

	// PlayerNonce reads getPlayerNonce(player) from the withdrawal contract
	PlayerNonce(ctx context.Context, contract, player string) (uint64, error)

	// ContractBalance reads getContractBalance() from the withdrawal contract
	ContractBalance(ctx context.Context, contract string) (decimal.Decimal, error)

	// Close releases the underlying node connections
	Close()
}

// ethClient implements Client over go-ethereum. The websocket endpoint
// carries the log subscription; queries go over HTTP when a separate
// endpoint is configured.
type ethClient struct {
	ws   *ethclient.Client
	http *ethclient.Client

	mu  sync.Mutex
	sub ethereum.Subscription
}

// Dial connects to the configured node endpoints. Either URL may be empty
// as long as one is set; the remaining connection serves both roles.
func Dial(ctx context.Context, wsURL, httpURL string) (Client, error) {
	var ws, httpC *ethclient.Client
	var err error

	if wsURL != "" {
		ws, err = ethclient.DialContext(ctx, wsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to dial websocket endpoint: %w", err)
		}
	}
	if httpURL != "" {
		httpC, err = ethclient.DialContext(ctx, httpURL)
		if err != nil {
			if ws != nil {
				ws.Close()
			}
			return nil, fmt.Errorf("failed to dial http endpoint: %w", err)
		}
	}

	if ws == nil && httpC == nil {
		return nil, fmt.Errorf("no node endpoint configured")
	}
	if ws == nil {
		ws = httpC
	}
	if httpC == nil {
		httpC = ws
	}

	return &ethClient{ws: ws, http: httpC}, nil
}

func (c *ethClient) BlockNumber(ctx context.Context) (uint64, error) {
	height, err := c.http.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return height, nil
}

func (c *ethClient) CodeAt(ctx context.Context, address string) ([]byte, error) {
	code, err := c.http.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", address, err)
	}
	return code, nil
}

func (c *ethClient) SubscribeEvents(ctx context.Context, contract string) (<-chan models.ChainEvent, <-chan error, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(contract)},
		Topics: [][]common.Hash{{
			escrowABI.Events["Deposited"].ID,
			escrowABI.Events["FaucetClaimed"].ID,
		}},
	}

	logs := make(chan types.Log, 64)
	sub, err := c.ws.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe to escrow logs: %w", err)
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	eventsCh := make(chan models.ChainEvent, 64)
	errsCh := make(chan error, 1)

	go func() {
		defer close(eventsCh)
		for {
			select {
			case err := <-sub.Err():
				if err != nil {
					errsCh <- err
				}
				return
			case l, ok := <-logs:
				if !ok {
					return
				}
				event, err := decodeEscrowLog(l)
				if err != nil {
					log.WithFields(log.Fields{
						"txHash": l.TxHash.Hex(),
						"error":  err,
					}).Warn("Skipping undecodable escrow log")
					continue
				}
				eventsCh <- event
			}
		}
	}()

	return eventsCh, errsCh, nil
}

func (c *ethClient) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
}

func (c *ethClient) PlayerNonce(ctx context.Context, contract, player string) (uint64, error) {
	data, err := withdrawalABI.Pack("getPlayerNonce", common.HexToAddress(player))
	if err != nil {
		return 0, fmt.Errorf("failed to pack getPlayerNonce call: %w", err)
	}

	contractAddr := common.HexToAddress(contract)
	result, err := c.http.CallContract(ctx, ethereum.CallMsg{
		To:   &contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to call getPlayerNonce: %w", err)
	}

	values, err := withdrawalABI.Unpack("getPlayerNonce", result)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack getPlayerNonce result: %w", err)
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected getPlayerNonce result type %T", values[0])
	}

	return nonce.Uint64(), nil
}

func (c *ethClient) ContractBalance(ctx context.Context, contract string) (decimal.Decimal, error) {
	data, err := withdrawalABI.Pack("getContractBalance")
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to pack getContractBalance call: %w", err)
	}

	contractAddr := common.HexToAddress(contract)
	result, err := c.http.CallContract(ctx, ethereum.CallMsg{
		To:   &contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to call getContractBalance: %w", err)
	}

	values, err := withdrawalABI.Unpack("getContractBalance", result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to unpack getContractBalance result: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected getContractBalance result type %T", values[0])
	}

	return FromWei(balance), nil
}

func (c *ethClient) Close() {
	c.Unsubscribe()
	c.ws.Close()
	if c.http != c.ws {
		c.http.Close()
	}
}

// decodeEscrowLog turns one raw log into a ChainEvent, converting the
// amount from wei at this boundary.
func decodeEscrowLog(l types.Log) (models.ChainEvent, error) {
	if len(l.Topics) < 2 {
		return models.ChainEvent{}, fmt.Errorf("escrow log missing indexed player topic")
	}

	var kind models.ChainEventKind
	var eventName string
	switch l.Topics[0] {
	case escrowABI.Events["Deposited"].ID:
		kind = models.ChainEventKindDeposit
		eventName = "Deposited"
	case escrowABI.Events["FaucetClaimed"].ID:
		kind = models.ChainEventKindFaucet
		eventName = "FaucetClaimed"
	default:
		return models.ChainEvent{}, fmt.Errorf("unknown escrow event topic %s", l.Topics[0].Hex())
	}

	values, err := escrowABI.Unpack(eventName, l.Data)
	if err != nil {
		return models.ChainEvent{}, fmt.Errorf("failed to unpack %s data: %w", eventName, err)
	}
	if len(values) != 2 {
		return models.ChainEvent{}, fmt.Errorf("unexpected %s data arity %d", eventName, len(values))
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return models.ChainEvent{}, fmt.Errorf("unexpected amount type %T", values[0])
	}
	timestamp, ok := values[1].(*big.Int)
	if !ok {
		return models.ChainEvent{}, fmt.Errorf("unexpected timestamp type %T", values[1])
	}

	player := common.BytesToAddress(l.Topics[1].Bytes())

	return models.ChainEvent{
		Kind:        kind,
		Address:     models.NormalizeAddress(player.Hex()),
		Amount:      FromWei(amount),
		TxHash:      l.TxHash.Hex(),
		BlockNumber: l.BlockNumber,
		LogIndex:    l.Index,
		BlockTime:   time.Unix(timestamp.Int64(), 0).UTC(),
	}, nil
}
