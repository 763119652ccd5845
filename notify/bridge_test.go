package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"chipbridge/events"
)

type fakePublisher struct {
	mu        sync.Mutex
	broadcast []string
	targeted  map[string][]string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{targeted: map[string][]string{}}
}

func (f *fakePublisher) Publish(topic string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, topic)
}

func (f *fakePublisher) PublishTo(address, topic string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targeted[address] = append(f.targeted[address], topic)
}

func (f *fakePublisher) targetedTopics(address string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.targeted[address]...)
}

func (f *fakePublisher) broadcastTopics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.broadcast...)
}

func settled(address string) events.SettledEvent {
	return events.SettledEvent{
		AccountID:     1,
		Address:       address,
		Amount:        decimal.NewFromInt(10),
		BalanceBefore: decimal.Zero,
		BalanceAfter:  decimal.NewFromInt(10),
		TxHash:        "0xabc",
		Timestamp:     time.Now(),
	}
}

func TestBind_BalanceChangeTargetsOwner(t *testing.T) {
	bus := events.NewBus()
	pub := newFakePublisher()
	Bind(bus, pub)

	bus.Emit(context.Background(), events.BalanceChangedEvent(settled("0xowner")))

	assert.Eventually(t, func() bool {
		topics := pub.targetedTopics("0xowner")
		return len(topics) == 1 && topics[0] == "balance:updated"
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, pub.broadcastTopics())
}

func TestBind_SettledEventsBroadcast(t *testing.T) {
	bus := events.NewBus()
	pub := newFakePublisher()
	Bind(bus, pub)

	ctx := context.Background()
	bus.Emit(ctx, events.DepositSettledEvent{SettledEvent: settled("0xa")})
	bus.Emit(ctx, events.FaucetClaimedEvent{SettledEvent: settled("0xb")})
	bus.Emit(ctx, events.WithdrawalSettledEvent{SettledEvent: settled("0xc")})

	assert.Eventually(t, func() bool {
		return len(pub.broadcastTopics()) == 3
	}, time.Second, 5*time.Millisecond)

	assert.ElementsMatch(t,
		[]string{"deposit:settled", "faucet:claimed", "withdrawal:settled"},
		pub.broadcastTopics())
}

func TestHub_PublishToUnknownAddressIsNoop(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// No client registered for the address; nothing to deliver and no panic
	hub.PublishTo("0xnobody", "balance:updated", settlementPayload{})
	hub.Publish("deposit:settled", settlementPayload{})

	assert.Equal(t, 0, hub.ClientCount())
}
