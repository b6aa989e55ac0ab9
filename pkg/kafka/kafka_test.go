package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/careforall-backend/pkg/bus"
	"github.com/angelmondragon/careforall-backend/pkg/config"
)

func TestToBusMessageCopiesHeaders(t *testing.T) {
	msg := toBusMessage(kafka.Message{
		Topic:     "pledge.captured",
		Partition: 2,
		Offset:    41,
		Key:       []byte("pledge-1"),
		Value:     []byte(`{"version":1}`),
		Headers: []kafka.Header{
			{Key: bus.AttrEventType, Value: []byte("pledge.captured")},
			{Key: bus.AttrAggregateID, Value: []byte("pledge-1")},
		},
	})
	if msg.ID != "pledge.captured/2/41" {
		t.Fatalf("unexpected id %q", msg.ID)
	}
	if msg.Key != "pledge-1" || msg.Attr(bus.AttrEventType) != "pledge.captured" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestDeliveryAckState(t *testing.T) {
	d := &delivery{}
	d.Nack()
	if d.acked {
		t.Fatal("nack must leave message unacked")
	}
	d.Ack()
	if !d.acked {
		t.Fatal("ack must mark delivery")
	}
}

func TestConstructorsValidateConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewProducer(ctx, config.KafkaConfig{}, nil); err == nil {
		t.Fatal("expected producer without brokers to fail")
	}
	if _, err := NewConsumer(ctx, config.KafkaConfig{Brokers: []string{"localhost:9092"}}, "", nil); err == nil {
		t.Fatal("expected consumer without topic to fail")
	}
}

func TestWaitForBrokersGivesUp(t *testing.T) {
	s := settings{connAttempts: 2, connTimeout: time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := waitForBrokers(ctx, []string{"127.0.0.1:1"}, s, nil, "producer"); err == nil {
		t.Fatal("expected unreachable broker to fail")
	}
}
