// Package bus is the transport-neutral surface the outbox relay publishes to
// and the totals consumer receives from. Pub/Sub, Kafka and an in-memory
// implementation satisfy it.
package bus

import "context"

// Standard attribute keys carried by every relayed event.
const (
	AttrEventID       = "event_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrCreatedAt     = "created_at"
)

// Message is one event on the bus. Key groups messages that must stay ordered
// where the transport supports it.
type Message struct {
	ID         string
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Attr returns the named attribute or "".
func (m Message) Attr(key string) string {
	if m.Attributes == nil {
		return ""
	}
	return m.Attributes[key]
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Delivery is a received message awaiting acknowledgement. Nack asks the
// transport to redeliver.
type Delivery interface {
	Message() Message
	Ack()
	Nack()
}

type Handler func(ctx context.Context, d Delivery)

// Subscriber blocks in Receive until ctx is cancelled or the transport fails.
type Subscriber interface {
	Receive(ctx context.Context, handler Handler) error
}
