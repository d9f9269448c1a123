package ws

import (
	"time"

	"github.com/kas-flash/stream-server-go/internal/model"
)

type EventType string

const (
	EventSessionCreated       EventType = "session_created"
	EventSessionUpdated       EventType = "session_updated"
	EventTransactionBroadcast EventType = "transaction_broadcast"
	EventTransactionMempool   EventType = "transaction_mempool"
	EventTransactionConfirmed EventType = "transaction_confirmed"
	EventBalanceUpdated       EventType = "balance_updated"
	EventError                EventType = "error"
)

// Event is one message pushed over the real-time channel.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(eventType EventType, payload any) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// transactionEventType maps a transaction's status to the event type
// clients expect for it.
func transactionEventType(status model.TransactionStatus) EventType {
	switch status {
	case model.TransactionStatusMempool:
		return EventTransactionMempool
	case model.TransactionStatusConfirmed:
		return EventTransactionConfirmed
	default:
		return EventTransactionBroadcast
	}
}
