package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/google/uuid"
)

// Provider is the payment gateway surface used by the service.
type Provider interface {
	CreateIntent(amount int64) string
	Authorize(txn models.PaymentTransaction)
	Capture(txn models.PaymentTransaction)
}

// MockProvider simulates a gateway: intents are accepted immediately and
// authorization/capture are confirmed by a webhook posted after a delay.
type MockProvider struct {
	webhookURL     string
	authorizeDelay time.Duration
	captureDelay   time.Duration
	httpClient     *http.Client
	logg           *logger.Logger

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ProviderOption configures optional mock provider behavior.
type ProviderOption func(*MockProvider)

// WithProviderHTTPClient overrides the client used to deliver webhooks.
func WithProviderHTTPClient(client *http.Client) ProviderOption {
	return func(p *MockProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// NewMockProvider builds a provider that posts webhooks to cfg.WebhookURL.
func NewMockProvider(cfg config.PaymentsConfig, logg *logger.Logger, opts ...ProviderOption) *MockProvider {
	if logg == nil {
		logg = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &MockProvider{
		webhookURL:     cfg.WebhookURL,
		authorizeDelay: cfg.AuthorizeDelay,
		captureDelay:   cfg.CaptureDelay,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		logg:           logg,
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *MockProvider) CreateIntent(amount int64) string {
	return uuid.NewString()
}

func (p *MockProvider) Authorize(txn models.PaymentTransaction) {
	p.schedule(enums.PaymentEventAuthorized, txn, p.authorizeDelay)
}

func (p *MockProvider) Capture(txn models.PaymentTransaction) {
	p.schedule(enums.PaymentEventCaptured, txn, p.captureDelay)
}

// Close cancels pending deliveries and waits for in-flight ones to return.
func (p *MockProvider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *MockProvider) schedule(eventType enums.PaymentEventType, txn models.PaymentTransaction, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	event := WebhookEvent{
		ID:   uuid.NewString(),
		Type: string(eventType),
		Data: &WebhookData{PaymentIntentID: txn.PaymentIntentID, PledgeID: txn.PledgeID},
	}
	ctx := p.logg.WithFields(p.ctx, map[string]any{
		"webhook_id":        event.ID,
		"event_type":        event.Type,
		"payment_intent_id": txn.PaymentIntentID,
	})
	p.logg.Info(ctx, "provider webhook scheduled")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := p.deliver(ctx, event); err != nil {
			p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "provider webhook delivery failed")
			return
		}
		p.logg.Info(ctx, "provider webhook delivered")
	}()
}

func (p *MockProvider) deliver(ctx context.Context, event WebhookEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
