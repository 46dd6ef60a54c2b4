package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, n int) (Subscriber, func() []Event) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []Event
		wg  sync.WaitGroup
	)
	wg.Add(n)
	sub := func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		wg.Done()
	}
	wait := func() []Event {
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for events")
		}
		mu.Lock()
		defer mu.Unlock()
		return got
	}
	return sub, wait
}

func TestEventBus_SubscribeByType(t *testing.T) {
	bus := NewEventBus()
	sub, wait := collect(t, 1)
	bus.Subscribe(EventBotCreated, sub)

	bus.Publish(BotStatusChanged("u1", "b1", "paused"))
	bus.Publish(BotCreated("u1", "b1", "Alpha Trader", "s1"))

	got := wait()
	require.Len(t, got, 1)
	assert.Equal(t, EventBotCreated, got[0].Type)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, "Alpha Trader", got[0].Data["name"])
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus()
	sub, wait := collect(t, 3)
	bus.SubscribeAll(sub)

	bus.Publish(ChatTurn("u1", "s1", "engine", false))
	bus.Publish(PaymentUpdated("u1", "o1", "finished", "topup"))
	bus.Publish(WithdrawalCreated("u2", "w1", "25.00", "processing"))

	got := wait()
	assert.Len(t, got, 3)
}

func TestEventBus_KeepsTimestamp(t *testing.T) {
	bus := NewEventBus()
	sub, wait := collect(t, 1)
	bus.SubscribeAll(sub)

	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	e := PaperTradesReady("u1", "b1", 20, "12.50")
	e.Timestamp = ts
	bus.Publish(e)

	got := wait()
	require.Len(t, got, 1)
	assert.Equal(t, ts, got[0].Timestamp)
	assert.Equal(t, 20, got[0].Data["count"])
}
