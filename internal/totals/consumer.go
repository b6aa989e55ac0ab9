package totals

import (
	"context"
	"fmt"

	"github.com/angelmondragon/careforall-backend/pkg/bus"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/angelmondragon/careforall-backend/pkg/metrics"
	"github.com/angelmondragon/careforall-backend/pkg/outbox"
	"github.com/angelmondragon/careforall-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/careforall-backend/pkg/outbox/registry"
)

type eventMetrics interface {
	Inc(eventType, status string)
}

// Consumer folds pledge.captured events into the campaign totals.
type Consumer struct {
	svc          Service
	subscription bus.Subscriber
	decoders     *registry.DecoderRegistry
	metrics      eventMetrics
	logg         *logger.Logger
}

// NewConsumer builds the totals consumer. metrics may be nil.
func NewConsumer(svc Service, subscription bus.Subscriber, metrics eventMetrics, logg *logger.Logger) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("totals service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Consumer{
		svc:          svc,
		subscription: subscription,
		decoders:     registry.NewPledgeDecoders(),
		metrics:      metrics,
		logg:         logg,
	}, nil
}

type nopMetrics struct{}

func (nopMetrics) Inc(string, string) {}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, d bus.Delivery) {
		result := c.process(ctx, d.Message())
		if result.nack {
			d.Nack()
			return
		}
		d.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg bus.Message) processResult {
	eventType := msg.Attr(bus.AttrEventType)
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventPledgeCaptured) {
		c.logg.Debug(logCtx, "skipping non-capture event")
		c.metrics.Inc(eventType, metrics.StatusIgnored)
		return processResult{ack: true}
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		c.metrics.Inc(eventType, metrics.StatusError)
		return processResult{ack: true}
	}
	version := envelope.Version
	if version == 0 {
		version = outbox.EnvelopeVersion
	}
	decoded, err := c.decoders.Decode(enums.EventPledgeCaptured, version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		c.metrics.Inc(eventType, metrics.StatusError)
		return processResult{ack: true}
	}
	payload, ok := decoded.(*payloads.PledgeCapturedEvent)
	if !ok || payload.PledgeID == "" || payload.CampaignID == "" {
		c.logg.Warn(logCtx, "capture event missing pledge or campaign id")
		c.metrics.Inc(eventType, metrics.StatusError)
		return processResult{ack: true}
	}

	applied, err := c.svc.Apply(ctx, Contribution{
		EventType:  enums.EventPledgeCaptured,
		PledgeID:   payload.PledgeID,
		CampaignID: payload.CampaignID,
		Amount:     payload.Amount,
	})
	if err != nil {
		c.logg.Error(logCtx, "totals update failed", err)
		c.metrics.Inc(eventType, metrics.StatusError)
		return processResult{nack: true}
	}
	if !applied {
		c.metrics.Inc(eventType, metrics.StatusDuplicate)
		return processResult{ack: true}
	}
	c.metrics.Inc(eventType, metrics.StatusSuccess)
	return processResult{ack: true}
}
