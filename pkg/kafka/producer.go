package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/careforall-backend/pkg/bus"
	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
)

const (
	_defaultConnAttempts = 10
	_defaultConnTimeout  = time.Second
	_defaultRetryBackoff = 2 * time.Second
)

// Producer publishes bus messages to Kafka. Messages sharing a key land on
// the same partition, which keeps one pledge's events ordered.
type Producer struct {
	brokers []string
	writer  *kafka.Writer
}

func NewProducer(ctx context.Context, cfg config.KafkaConfig, logg *logger.Logger, opts ...Option) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	p := &Producer{
		brokers: cfg.Brokers,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}

	if err := waitForBrokers(ctx, cfg.Brokers, s, logg, "producer"); err != nil {
		_ = p.writer.Close()
		return nil, err
	}
	return p, nil
}

// Publish implements bus.Publisher.
func (p *Producer) Publish(ctx context.Context, msg bus.Message) error {
	if msg.Topic == "" {
		return errors.New("topic is required")
	}
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", msg.Topic, err)
	}
	return nil
}

// Ping dials the first broker and lists the cluster.
func (p *Producer) Ping(ctx context.Context) error {
	return ping(ctx, p.brokers)
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func waitForBrokers(ctx context.Context, brokers []string, s settings, logg *logger.Logger, role string) error {
	var err error
	for attempts := s.connAttempts; attempts > 0; attempts-- {
		if err = ping(ctx, brokers); err == nil {
			return nil
		}
		if logg != nil {
			logg.Warn(logg.WithFields(ctx, map[string]any{
				"role":          role,
				"attempts_left": attempts - 1,
				"error":         err.Error(),
			}), "kafka not reachable yet")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.connTimeout):
		}
	}
	return fmt.Errorf("kafka %s: brokers unreachable: %w", role, err)
}

func ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Brokers(); err != nil {
		return fmt.Errorf("kafka brokers: %w", err)
	}
	return nil
}
