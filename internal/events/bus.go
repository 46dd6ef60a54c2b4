package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventBotCreated        EventType = "BOT_CREATED"
	EventBotStatusChanged  EventType = "BOT_STATUS_CHANGED"
	EventPaymentUpdated    EventType = "PAYMENT_UPDATED"
	EventWithdrawalCreated EventType = "WITHDRAWAL_CREATED"
	EventChatTurn          EventType = "CHAT_TURN"
	EventPaperTradesReady  EventType = "PAPER_TRADES_READY"
)

// Event represents a system event. UserID scopes delivery to one user's
// websocket connections.
type Event struct {
	Type      EventType              `json:"type"`
	UserID    string                 `json:"user_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Publisher is implemented by EventBus; services depend on this instead of
// the concrete bus.
type Publisher interface {
	Publish(event Event)
}

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// BotCreated builds a BOT_CREATED event
func BotCreated(userID, botID, name, sessionID string) Event {
	return Event{
		Type:   EventBotCreated,
		UserID: userID,
		Data: map[string]interface{}{
			"bot_id":     botID,
			"name":       name,
			"session_id": sessionID,
		},
	}
}

// BotStatusChanged builds a BOT_STATUS_CHANGED event
func BotStatusChanged(userID, botID, status string) Event {
	return Event{
		Type:   EventBotStatusChanged,
		UserID: userID,
		Data: map[string]interface{}{
			"bot_id": botID,
			"status": status,
		},
	}
}

// PaymentUpdated builds a PAYMENT_UPDATED event
func PaymentUpdated(userID, orderID, status, kind string) Event {
	return Event{
		Type:   EventPaymentUpdated,
		UserID: userID,
		Data: map[string]interface{}{
			"order_id": orderID,
			"status":   status,
			"kind":     kind,
		},
	}
}

// WithdrawalCreated builds a WITHDRAWAL_CREATED event
func WithdrawalCreated(userID, withdrawalID, amountUSD, status string) Event {
	return Event{
		Type:   EventWithdrawalCreated,
		UserID: userID,
		Data: map[string]interface{}{
			"withdrawal_id": withdrawalID,
			"amount_usd":    amountUSD,
			"status":        status,
		},
	}
}

// ChatTurn builds a CHAT_TURN event
func ChatTurn(userID, sessionID, source string, readyToCreate bool) Event {
	return Event{
		Type:   EventChatTurn,
		UserID: userID,
		Data: map[string]interface{}{
			"session_id":      sessionID,
			"source":          source,
			"ready_to_create": readyToCreate,
		},
	}
}

// PaperTradesReady builds a PAPER_TRADES_READY event
func PaperTradesReady(userID, botID string, count int, netPnL string) Event {
	return Event{
		Type:   EventPaperTradesReady,
		UserID: userID,
		Data: map[string]interface{}{
			"bot_id":  botID,
			"count":   count,
			"net_pnl": netPnL,
		},
	}
}
