package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/careforall-backend/pkg/bus"
	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/angelmondragon/careforall-backend/pkg/outbox"
	"github.com/angelmondragon/careforall-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 5 * time.Second
	defaultPublishTimeout = 15 * time.Second
	defaultMaxRetries     = 5
	maxBackoff            = time.Minute
	jitterWindow          = 250 * time.Millisecond
)

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

type dbClient interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchPendingForUpdate(tx *gorm.DB, limit, maxRetries int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, event models.OutboxEvent, cause error, maxRetries int) (bool, error)
	Quarantine(tx *gorm.DB, id uuid.UUID, cause error) error
	CountPending(ctx context.Context) (int64, error)
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type relayMetrics interface {
	SetPending(count int64)
	IncPublished(eventType string)
	IncFailed(eventType string)
	ObserveBatch(duration time.Duration)
}

type pinger interface {
	Ping(context.Context) error
}

type ServiceParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         dbClient
	Repository outboxRepository
	Registry   registryResolver
	Publisher  bus.Publisher
	Metrics    relayMetrics
}

// Service drains pending outbox rows onto the bus.
type Service struct {
	logg           *logger.Logger
	db             dbClient
	repo           outboxRepository
	registry       registryResolver
	publisher      bus.Publisher
	metrics        relayMetrics
	batchSize      int
	maxRetries     int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

// BatchResult summarises one relay cycle.
type BatchResult struct {
	Fetched     int
	Published   int
	Retried     int
	Abandoned   int
	Quarantined int
}

// Drained reports whether the cycle published everything it fetched.
func (r BatchResult) Drained() bool {
	return r.Published == r.Fetched
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("bus publisher is required")
	}

	batch := params.Config.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	maxRetries := params.Config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	interval := params.Config.PollInterval()
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := params.Config.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	var m relayMetrics = nopMetrics{}
	if params.Metrics != nil {
		m = params.Metrics
	}

	return &Service{
		logg:           params.Logger,
		db:             params.DB,
		repo:           params.Repository,
		registry:       params.Registry,
		publisher:      params.Publisher,
		metrics:        m,
		batchSize:      batch,
		maxRetries:     maxRetries,
		pollInterval:   interval,
		publishTimeout: timeout,
	}, nil
}

type nopMetrics struct{}

func (nopMetrics) SetPending(int64)           {}
func (nopMetrics) IncPublished(string)        {}
func (nopMetrics) IncFailed(string)           {}
func (nopMetrics) ObserveBatch(time.Duration) {}

// Run polls until ctx is canceled. A failed cycle is logged and retried after
// a growing, jittered pause; it never ends the loop.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if p, ok := s.publisher.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "bus ping failed, events stay pending until it recovers")
		}
	}

	backoff := s.pollInterval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox relay context canceled")
			return ctx.Err()
		default:
		}

		result, err := s.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logg.Error(ctx, "outbox relay batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = s.pollInterval

		if result.Fetched == s.batchSize && result.Drained() {
			continue
		}
		if err := sleep(ctx, withJitter(s.pollInterval)); err != nil {
			return err
		}
	}
}

// RunOnce processes a single batch inside one transaction and refreshes the
// pending gauge afterwards.
func (s *Service) RunOnce(ctx context.Context) (BatchResult, error) {
	started := time.Now()
	var result BatchResult

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		result = BatchResult{}
		events, err := s.repo.FetchPendingForUpdate(tx, s.batchSize, s.maxRetries)
		if err != nil {
			return fmt.Errorf("fetch pending: %w", err)
		}
		result.Fetched = len(events)
		for _, event := range events {
			if err := s.relayEvent(ctx, tx, event, &result); err != nil {
				return err
			}
		}
		return nil
	})

	s.metrics.ObserveBatch(time.Since(started))
	if pending, countErr := s.repo.CountPending(ctx); countErr == nil {
		s.metrics.SetPending(pending)
	} else {
		s.logg.Warn(s.logg.WithField(ctx, "error", countErr.Error()), "outbox pending count failed")
	}
	if err != nil {
		return BatchResult{}, err
	}
	if result.Fetched > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"fetched":     result.Fetched,
			"published":   result.Published,
			"retried":     result.Retried,
			"abandoned":   result.Abandoned,
			"quarantined": result.Quarantined,
		}), "outbox relay batch complete")
	}
	return result, nil
}

func (s *Service) relayEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, result *BatchResult) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.quarantine(ctx, tx, event, err, result)
	}

	fields := s.eventFields(event, resolved.Envelope, resolved.Descriptor.Topic)
	if err := s.publish(ctx, event, resolved); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			return s.quarantine(ctx, tx, event, err, result)
		}

		failed, markErr := s.repo.RecordFailure(tx, event, err, s.maxRetries)
		if markErr != nil {
			return fmt.Errorf("record failure %s: %w", event.ID, markErr)
		}
		fields["retry_count"] = event.RetryCount + 1
		logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error())
		if failed {
			result.Abandoned++
			s.metrics.IncFailed(string(event.EventType))
			s.logg.Warn(logCtx, "outbox event abandoned after max retries")
			return nil
		}
		result.Retried++
		s.logg.Warn(logCtx, "outbox publish failed")
		return nil
	}

	if err := s.repo.MarkPublished(tx, event.ID); err != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	result.Published++
	s.metrics.IncPublished(string(event.EventType))
	s.logg.Debug(s.logg.WithFields(ctx, fields), "outbox event published")
	return nil
}

func (s *Service) quarantine(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, cause error, result *BatchResult) error {
	fields := s.eventFields(event, outbox.PayloadEnvelope{}, "")
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event will not be retried")
	if err := s.repo.Quarantine(tx, event.ID, cause); err != nil {
		return fmt.Errorf("quarantine %s: %w", event.ID, err)
	}
	result.Quarantined++
	s.metrics.IncFailed(string(event.EventType))
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	if topic == "" {
		return registry.NewNonRetryableError(fmt.Errorf("no topic configured for %s", event.EventType))
	}
	msg := bus.Message{
		ID:    resolved.Envelope.EventID,
		Topic: topic,
		Key:   event.AggregateID.String(),
		Data:  event.Payload,
		Attributes: map[string]string{
			bus.AttrEventID:       resolved.Envelope.EventID,
			bus.AttrEventType:     string(event.EventType),
			bus.AttrAggregateType: string(event.AggregateType),
			bus.AttrAggregateID:   event.AggregateID.String(),
			bus.AttrCreatedAt:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	return s.publisher.Publish(publishCtx, msg)
}

func (s *Service) eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"retry_count":    event.RetryCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
	}
	if topic != "" {
		fields["topic"] = topic
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitterMu.Lock()
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	jitterMu.Unlock()
	return d + jitter
}
