// Package eventbus opens the configured bus transport for a process and
// exposes it through the transport-neutral bus interfaces.
package eventbus

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/careforall-backend/pkg/bus"
	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/kafka"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/angelmondragon/careforall-backend/pkg/pubsub"
)

// ErrNotSubscribed is returned by Subscriber when the transport was opened
// without a totals subscription.
var ErrNotSubscribed = errors.New("transport opened without totals subscription")

// Options selects what the process needs from the transport.
type Options struct {
	// Subscribe opens the pledge.captured consumer used by the totals worker.
	Subscribe bool
	// Memory is reused for the memory driver so publisher and subscriber
	// share queues inside one process. A fresh bus is created when nil.
	Memory *bus.Memory
}

type pinger interface {
	Ping(context.Context) error
}

// Transport is an open bus connection.
type Transport struct {
	driver     string
	publisher  bus.Publisher
	subscriber bus.Subscriber
	ping       pinger
	closers    []func() error
}

// Open connects to cfg.Bus.Driver.
func Open(ctx context.Context, cfg *config.Config, opts Options, logg *logger.Logger) (*Transport, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	driver := cfg.Bus.Normalized()
	ctx = logg.WithField(ctx, "bus_driver", driver)

	t := &Transport{driver: driver}
	switch driver {
	case config.BusDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, opts.Subscribe, logg)
		if err != nil {
			return nil, fmt.Errorf("open pubsub: %w", err)
		}
		t.publisher = client
		t.ping = client
		t.closers = append(t.closers, client.Close)
		if opts.Subscribe {
			t.subscriber = client.TotalsSubscriber()
		}

	case config.BusDriverKafka:
		producer, err := kafka.NewProducer(ctx, cfg.Kafka, logg)
		if err != nil {
			return nil, fmt.Errorf("open kafka producer: %w", err)
		}
		kbus := kafka.NewBus(producer)
		if opts.Subscribe {
			consumer, err := kafka.NewConsumer(ctx, cfg.Kafka, cfg.PubSub.PledgeCapturedTopic, logg)
			if err != nil {
				return nil, multierr.Append(fmt.Errorf("open kafka consumer: %w", err), kbus.Close())
			}
			t.subscriber = kbus.Track(consumer)
		}
		t.publisher = kbus
		t.ping = kbus
		t.closers = append(t.closers, kbus.Close)

	case config.BusDriverMemory:
		memory := opts.Memory
		if memory == nil {
			memory = bus.NewMemory(0)
		}
		t.publisher = memory
		if opts.Subscribe {
			t.subscriber = memory.Subscriber(cfg.PubSub.PledgeCapturedTopic)
		}

	default:
		return nil, fmt.Errorf("unsupported bus driver %q", cfg.Bus.Driver)
	}

	logg.Info(ctx, "event bus ready")
	return t, nil
}

func (t *Transport) Driver() string { return t.driver }

func (t *Transport) Publisher() bus.Publisher { return t.publisher }

// Subscriber returns the totals consumer opened with Options.Subscribe.
func (t *Transport) Subscriber() (bus.Subscriber, error) {
	if t.subscriber == nil {
		return nil, ErrNotSubscribed
	}
	return t.subscriber, nil
}

// Ping checks broker reachability. The memory driver is always reachable.
func (t *Transport) Ping(ctx context.Context) error {
	if t.ping == nil {
		return nil
	}
	return t.ping.Ping(ctx)
}

func (t *Transport) Close() error {
	var err error
	for i := len(t.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, t.closers[i]())
	}
	t.closers = nil
	return err
}
