package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"chipbridge/chain"
	"chipbridge/models"
	"chipbridge/service"
)

// ErrContractNotFound is returned when no bytecode is deployed at the
// configured escrow contract address
var ErrContractNotFound = errors.New("no contract deployed at configured address")

const (
	dedupeCapacity = 4096
	dedupeTTL      = 24 * time.Hour
)

// Config holds the listener's tunables
type Config struct {
	ContractAddress       string
	RequiredConfirmations uint64
	PollInterval          time.Duration
}

// Status is the listener's observability snapshot
type Status struct {
	Running           bool   `json:"running"`
	DedupeSize        int    `json:"dedupeSize"`
	ReconnectAttempts int64  `json:"reconnectAttempts"`
	StartHeight       uint64 `json:"startHeight"`
}

// Listener consumes the escrow contract's event stream and delivers each
// logically distinct event to the settlement service exactly once, after
// the configured confirmation depth. Each event is handled in its own
// goroutine, so one event's confirmation wait never blocks another's.
type Listener struct {
	client  chain.Client
	settler service.SettlementService
	cfg     Config

	dedupe      *dedupeCache
	running     atomic.Bool
	reconnects  atomic.Int64
	startHeight atomic.Uint64

	failed chan error
	wg     sync.WaitGroup
}

// New creates a new event listener
func New(client chain.Client, settler service.SettlementService, cfg Config) *Listener {
	return &Listener{
		client:  client,
		settler: settler,
		cfg:     cfg,
		dedupe:  newDedupeCache(dedupeCapacity, dedupeTTL),
		failed:  make(chan error, 1),
	}
}

// Start verifies the escrow contract, subscribes to its events and begins
// consuming. The returned error is ErrContractNotFound when the address
// holds no bytecode; subscription transport failures surface on Failed().
func (l *Listener) Start(ctx context.Context) error {
	code, err := l.client.CodeAt(ctx, l.cfg.ContractAddress)
	if err != nil {
		return fmt.Errorf("failed to verify escrow contract: %w", err)
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: %s", ErrContractNotFound, l.cfg.ContractAddress)
	}

	height, err := l.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain height: %w", err)
	}
	l.startHeight.Store(height)

	eventsCh, errsCh, err := l.client.SubscribeEvents(ctx, l.cfg.ContractAddress)
	if err != nil {
		return fmt.Errorf("failed to subscribe to escrow events: %w", err)
	}

	l.running.Store(true)

	log.WithFields(log.Fields{
		"contract":      l.cfg.ContractAddress,
		"height":        height,
		"confirmations": l.cfg.RequiredConfirmations,
	}).Info("Escrow event listener started")

	go l.consume(ctx, eventsCh, errsCh)

	return nil
}

// Stop unsubscribes from the event stream. In-flight confirmation waits
// and settlements run to completion; partial settlement is unacceptable,
// so there is no mid-flight abort of a balance mutation.
func (l *Listener) Stop() {
	l.client.Unsubscribe()
	l.running.Store(false)
}

// Wait blocks until all in-flight event handlers have finished
func (l *Listener) Wait() {
	l.wg.Wait()
}

// Failed delivers the subscription error that ended the consume loop
func (l *Listener) Failed() <-chan error {
	return l.failed
}

// Status returns the listener's observability snapshot
func (l *Listener) Status() Status {
	return Status{
		Running:           l.running.Load(),
		DedupeSize:        l.dedupe.Len(),
		ReconnectAttempts: l.reconnects.Load(),
		StartHeight:       l.startHeight.Load(),
	}
}

func (l *Listener) recordReconnectAttempt() {
	l.reconnects.Add(1)
}

func (l *Listener) consume(ctx context.Context, eventsCh <-chan models.ChainEvent, errsCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			l.running.Store(false)
			return
		case err := <-errsCh:
			l.running.Store(false)
			log.WithField("error", err).Error("Escrow event subscription failed")
			select {
			case l.failed <- err:
			default:
			}
			return
		case event, ok := <-eventsCh:
			if !ok {
				l.running.Store(false)
				return
			}
			l.wg.Add(1)
			go func(ev models.ChainEvent) {
				defer l.wg.Done()
				l.handle(ctx, ev)
			}(event)
		}
	}
}

func (l *Listener) handle(ctx context.Context, event models.ChainEvent) {
	// Fast-path duplicate suppression; the ledger's unique reference
	// constraint is the real guarantee
	if l.dedupe.Contains(event.TxHash) {
		log.WithField("txHash", event.TxHash).Debug("Discarding duplicate event delivery")
		return
	}

	if err := l.waitForConfirmations(ctx, event); err != nil {
		log.WithFields(log.Fields{
			"txHash": event.TxHash,
			"error":  err,
		}).Warn("Abandoned confirmation wait")
		return
	}

	if _, err := l.settler.Settle(ctx, event); err != nil {
		// Deliberately not added to the dedupe set: a redelivery of the
		// same event is the retry mechanism
		log.WithFields(log.Fields{
			"txHash": event.TxHash,
			"error":  err,
		}).Error("Failed to settle event")
		return
	}

	l.dedupe.Add(event.TxHash)
}

// waitForConfirmations polls the chain height until the event is buried
// under the required confirmation depth. There is no upper bound on the
// total wait: a deposit either confirms eventually or the chain has
// forked beyond what this service handles.
func (l *Listener) waitForConfirmations(ctx context.Context, event models.ChainEvent) error {
	for {
		height, err := l.client.BlockNumber(ctx)
		if err != nil {
			log.WithField("error", err).Warn("Failed to poll chain height, retrying")
		} else if height >= event.BlockNumber && height-event.BlockNumber >= l.cfg.RequiredConfirmations {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.PollInterval):
		}
	}
}
