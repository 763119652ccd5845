package events

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChanged      EventType = "balance:updated"
	EventTypeAccountCreated      EventType = "account:created"
	EventTypeDepositSettled      EventType = "deposit:settled"
	EventTypeFaucetClaimed       EventType = "faucet:claimed"
	EventTypeWithdrawalSettled   EventType = "withdrawal:settled"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangedEvent is emitted once per settled transaction that touched
// an account's playable balance
type BalanceChangedEvent struct {
	AccountID     int64
	Address       string
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	TxHash        string
	Timestamp     time.Time
}

func (e BalanceChangedEvent) Type() EventType {
	return EventTypeBalanceChanged
}

// AccountCreatedEvent is emitted when an account is lazily created
type AccountCreatedEvent struct {
	AccountID int64
	Address   string
}

func (e AccountCreatedEvent) Type() EventType {
	return EventTypeAccountCreated
}

// SettledEvent is the shared shape of the broadcast settlement events
type SettledEvent struct {
	AccountID     int64
	Address       string
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	TxHash        string
	Timestamp     time.Time
}

// DepositSettledEvent is broadcast after a deposit is credited
type DepositSettledEvent struct {
	SettledEvent
}

func (e DepositSettledEvent) Type() EventType {
	return EventTypeDepositSettled
}

// FaucetClaimedEvent is broadcast after a faucet claim is recorded
type FaucetClaimedEvent struct {
	SettledEvent
}

func (e FaucetClaimedEvent) Type() EventType {
	return EventTypeFaucetClaimed
}

// WithdrawalSettledEvent is broadcast after a confirmed withdrawal is settled
type WithdrawalSettledEvent struct {
	SettledEvent
}

func (e WithdrawalSettledEvent) Type() EventType {
	return EventTypeWithdrawalSettled
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Call handlers asynchronously to avoid blocking settlement
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus buffers events during a storage transaction so that
// nothing is published for work that later rolls back. A settled
// transaction therefore produces exactly one publish of each event.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all pending events; called after a successful commit
func (b *TransactionalBus) Flush(ctx context.Context) {
	// Events are processed independently of the transaction lifecycle,
	// so emit with a background context
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops all pending events; called after rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
