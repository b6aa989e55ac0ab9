package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"

	"github.com/angelmondragon/careforall-backend/pkg/bus"
	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
)

// Consumer reads one topic inside a consumer group. Offsets are committed only
// after the handler acks; a nack retries the same message in place.
type Consumer struct {
	brokers []string
	reader  *kafka.Reader
	backoff time.Duration
}

func NewConsumer(ctx context.Context, cfg config.KafkaConfig, topic string, logg *logger.Logger, opts ...Option) (*Consumer, error) {
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	if err := waitForBrokers(ctx, cfg.Brokers, s, logg, "consumer"); err != nil {
		return nil, err
	}

	return &Consumer{
		brokers: cfg.Brokers,
		backoff: s.retryBackoff,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
	}, nil
}

// Receive implements bus.Subscriber.
func (c *Consumer) Receive(ctx context.Context, handler bus.Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		for {
			d := &delivery{msg: toBusMessage(msg)}
			handler(ctx, d)
			if d.acked {
				break
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

func (c *Consumer) Ping(ctx context.Context) error {
	return ping(ctx, c.brokers)
}

func (c *Consumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

// Bus bundles a producer and any consumers opened from it so they close together.
type Bus struct {
	*Producer
	consumers []*Consumer
}

func NewBus(producer *Producer) *Bus {
	return &Bus{Producer: producer}
}

// Track registers a consumer for Close.
func (b *Bus) Track(c *Consumer) *Consumer {
	b.consumers = append(b.consumers, c)
	return c
}

func (b *Bus) Close() error {
	var err error
	for _, c := range b.consumers {
		err = multierr.Append(err, c.Close())
	}
	if b.Producer != nil {
		err = multierr.Append(err, b.Producer.Close())
	}
	return err
}

func toBusMessage(msg kafka.Message) bus.Message {
	attrs := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		attrs[h.Key] = string(h.Value)
	}
	return bus.Message{
		ID:         fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset),
		Topic:      msg.Topic,
		Key:        string(msg.Key),
		Data:       msg.Value,
		Attributes: attrs,
	}
}

type delivery struct {
	msg   bus.Message
	acked bool
}

func (d *delivery) Message() bus.Message { return d.msg }
func (d *delivery) Ack()                 { d.acked = true }
func (d *delivery) Nack()                { d.acked = false }
