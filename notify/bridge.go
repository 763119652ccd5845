package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"chipbridge/events"
)

// settlementPayload is the client-facing shape shared by the balance
// update and all settled broadcasts
type settlementPayload struct {
	UserID        int64           `json:"userId"`
	Address       string          `json:"address"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	TxHash        string          `json:"txHash"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Bind subscribes the hub to the settlement events it relays. Because the
// transactional bus emits only after commit, every settled transaction
// produces exactly one publish of each event.
func Bind(bus *events.Bus, pub Publisher) {
	bus.Subscribe(events.EventTypeBalanceChanged, func(ctx context.Context, event events.Event) {
		e, ok := event.(events.BalanceChangedEvent)
		if !ok {
			return
		}
		pub.PublishTo(e.Address, string(events.EventTypeBalanceChanged), settlementPayload{
			UserID:        e.AccountID,
			Address:       e.Address,
			Amount:        e.Amount,
			BalanceBefore: e.BalanceBefore,
			BalanceAfter:  e.BalanceAfter,
			TxHash:        e.TxHash,
			Timestamp:     e.Timestamp,
		})
	})

	broadcast := func(topic string, e events.SettledEvent) {
		pub.Publish(topic, settlementPayload{
			UserID:        e.AccountID,
			Address:       e.Address,
			Amount:        e.Amount,
			BalanceBefore: e.BalanceBefore,
			BalanceAfter:  e.BalanceAfter,
			TxHash:        e.TxHash,
			Timestamp:     e.Timestamp,
		})
	}

	bus.Subscribe(events.EventTypeDepositSettled, func(ctx context.Context, event events.Event) {
		if e, ok := event.(events.DepositSettledEvent); ok {
			broadcast(string(events.EventTypeDepositSettled), e.SettledEvent)
		}
	})
	bus.Subscribe(events.EventTypeFaucetClaimed, func(ctx context.Context, event events.Event) {
		if e, ok := event.(events.FaucetClaimedEvent); ok {
			broadcast(string(events.EventTypeFaucetClaimed), e.SettledEvent)
		}
	})
	bus.Subscribe(events.EventTypeWithdrawalSettled, func(ctx context.Context, event events.Event) {
		if e, ok := event.(events.WithdrawalSettledEvent); ok {
			broadcast(string(events.EventTypeWithdrawalSettled), e.SettledEvent)
		}
	})
}
