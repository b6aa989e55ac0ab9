package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/careforall-backend/api/middleware"
	"github.com/angelmondragon/careforall-backend/internal/campaigns"
	"github.com/angelmondragon/careforall-backend/internal/payments"
	"github.com/angelmondragon/careforall-backend/internal/pledges"
	"github.com/angelmondragon/careforall-backend/internal/relay"
	"github.com/angelmondragon/careforall-backend/internal/totals"
	pkgauth "github.com/angelmondragon/careforall-backend/pkg/auth"
	"github.com/angelmondragon/careforall-backend/pkg/bus"
	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/db/dbtest"
	"github.com/angelmondragon/careforall-backend/pkg/db/models"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
	"github.com/angelmondragon/careforall-backend/pkg/logger"
	"github.com/angelmondragon/careforall-backend/pkg/metrics"
	"github.com/angelmondragon/careforall-backend/pkg/outbox"
	"github.com/angelmondragon/careforall-backend/pkg/outbox/registry"
)

const (
	testCampaignID    = "camp-1"
	testInternalToken = "internal-secret"
)

type stack struct {
	server   *httptest.Server
	cfg      *config.Config
	memory   *bus.Memory
	relay    *relay.Service
	provider *payments.MockProvider
}

// newStack wires every route group against one sqlite database, a fake
// campaign service and the in-memory bus. The payment forwarder and the mock
// provider both call back into the same test server.
func newStack(t *testing.T) *stack {
	t.Helper()

	logg := logger.Nop()
	client := dbtest.Open(t, models.All()...)

	campaignSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/"+testCampaignID) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"campaign":{"_id":%q,"title":"Clean water","goalAmount":100000,"status":"ACTIVE"}}`, testCampaignID)
	}))
	t.Cleanup(campaignSrv.Close)

	var handler http.Handler = http.NotFoundHandler()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		App:       config.AppConfig{Env: "test"},
		Service:   config.ServiceConfig{Kind: config.ServiceKindAll},
		JWT:       config.JWTConfig{Secret: "test-secret", Issuer: "careforall-identity", ExpirationMinutes: 60},
		Outbox:    config.OutboxConfig{BatchSize: 10, MaxRetries: 3, PublishTimeout: time.Second},
		Campaigns: config.CampaignsConfig{BaseURL: campaignSrv.URL, Timeout: time.Second},
		Pledges:   config.PledgesClientConfig{BaseURL: srv.URL, ForwardTimeout: 2 * time.Second},
		Payments: config.PaymentsConfig{
			WebhookURL:     srv.URL + "/payments/webhooks",
			AuthorizeDelay: 10 * time.Millisecond,
			CaptureDelay:   10 * time.Millisecond,
		},
		Internal: config.InternalConfig{Token: testInternalToken},
		PubSub: config.PubSubConfig{
			PledgeCreatedTopic:  "pledge.created",
			PledgeCapturedTopic: "pledge.captured",
		},
	}

	campaignClient, err := campaigns.NewClient(cfg.Campaigns)
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(client.DB())
	pledgeSvc, err := pledges.NewService(pledges.ServiceParams{
		Repo:      pledges.NewRepository(client.DB()),
		Tx:        client,
		Outbox:    outbox.NewService(outboxRepo, logg),
		Campaigns: campaignClient,
		Logger:    logg,
	})
	require.NoError(t, err)

	forwarder, err := payments.NewPledgeStatusClient(cfg.Pledges, cfg.Internal, srv.Client())
	require.NoError(t, err)
	provider := payments.NewMockProvider(cfg.Payments, logg, payments.WithProviderHTTPClient(srv.Client()))
	t.Cleanup(provider.Close)
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:      payments.NewRepository(client.DB()),
		Tx:        client,
		Provider:  provider,
		Forwarder: forwarder,
		Logger:    logg,
	})
	require.NoError(t, err)

	totalsSvc, err := totals.NewService(totals.NewRepository(client.DB()), client, nil, logg)
	require.NoError(t, err)

	memory := bus.NewMemory(64)
	reg, err := registry.NewEventRegistry(cfg.PubSub)
	require.NoError(t, err)
	relaySvc, err := relay.NewService(relay.ServiceParams{
		Config:     cfg.Outbox,
		Logger:     logg,
		DB:         client,
		Repository: outboxRepo,
		Registry:   reg,
		Publisher:  memory,
	})
	require.NoError(t, err)

	consumer, err := totals.NewConsumer(totalsSvc, memory.Subscriber(cfg.PubSub.PledgeCapturedTopic), nil, logg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	promReg := prometheus.NewRegistry()
	handler = NewRouter(Dependencies{
		Config:      cfg,
		Logger:      logg,
		Pledges:     pledgeSvc,
		Payments:    paymentSvc,
		Totals:      totalsSvc,
		Outbox:      outboxRepo,
		HTTPMetrics: metrics.NewHTTPMetrics(promReg),
		Gatherer:    promReg,
	})

	return &stack{server: srv, cfg: cfg, memory: memory, relay: relaySvc, provider: provider}
}

func (s *stack) token(t *testing.T, userID string, role enums.Role) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(s.cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

func (s *stack) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(bytes.TrimSpace(raw)) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %v", body)
	return d
}

func errorMessage(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	msg, _ := e["message"].(string)
	return msg
}

func (s *stack) createPledge(t *testing.T, key string, amount int64) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/pledges", map[string]any{
		"campaignId": testCampaignID,
		"amount":     amount,
		"sessionId":  "session-" + key,
	}, map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, status, "%v", body)
	return data(t, body)["id"].(string)
}

func (s *stack) createIntent(t *testing.T, pledgeID string, amount int64) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/payments/intent", map[string]any{
		"pledgeId": pledgeID,
		"amount":   amount,
	}, nil)
	require.Equal(t, http.StatusCreated, status, "%v", body)
	return data(t, body)["paymentIntentId"].(string)
}

func (s *stack) waitForStatus(t *testing.T, pledgeID string, want enums.PledgeStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		status, body := s.do(t, http.MethodGet, "/pledges/"+pledgeID, nil, nil)
		if status != http.StatusOK {
			return false
		}
		return data(t, body)["status"] == string(want)
	}, 5*time.Second, 20*time.Millisecond, "pledge never reached %s", want)
}

func TestDonationFlowUpdatesCampaignTotals(t *testing.T) {
	s := newStack(t)

	pledgeID := s.createPledge(t, "k1", 250)

	status, body := s.do(t, http.MethodPost, "/pledges", map[string]any{
		"campaignId": testCampaignID,
		"amount":     250,
		"sessionId":  "session-k1",
	}, map[string]string{"Idempotency-Key": "k1"})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, pledgeID, data(t, body)["id"])

	intentID := s.createIntent(t, pledgeID, 250)

	status, _ = s.do(t, http.MethodPost, "/payments/authorize", map[string]any{"paymentIntentId": intentID}, nil)
	require.Equal(t, http.StatusAccepted, status)
	s.waitForStatus(t, pledgeID, enums.PledgeStatusAuthorized)

	status, _ = s.do(t, http.MethodPost, "/payments/capture", map[string]any{"paymentIntentId": intentID}, nil)
	require.Equal(t, http.StatusAccepted, status)
	s.waitForStatus(t, pledgeID, enums.PledgeStatusCaptured)

	result, err := s.relay.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Published)
	require.Len(t, s.memory.Published("pledge.created"), 1)
	require.Len(t, s.memory.Published("pledge.captured"), 1)

	require.Eventually(t, func() bool {
		status, body := s.do(t, http.MethodGet, "/totals/"+testCampaignID, nil, nil)
		if status != http.StatusOK {
			return false
		}
		d := data(t, body)
		return d["totalAmount"] == float64(250) && d["totalPledges"] == float64(1)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWebhookReplayIsAbsorbed(t *testing.T) {
	s := newStack(t)
	pledgeID := s.createPledge(t, "k-webhook", 100)
	intentID := s.createIntent(t, pledgeID, 100)

	event := map[string]any{
		"id":   "wh-1",
		"type": string(enums.PaymentEventAuthorized),
		"data": map[string]any{"paymentIntentId": intentID, "pledgeId": pledgeID},
	}
	status, body := s.do(t, http.MethodPost, "/payments/webhooks", event, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, false, data(t, body)["duplicate"])

	status, body = s.do(t, http.MethodPost, "/payments/webhooks", event, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, data(t, body)["duplicate"])

	s.waitForStatus(t, pledgeID, enums.PledgeStatusAuthorized)
}

func TestInternalStatusRejectsInvalidTransition(t *testing.T) {
	s := newStack(t)
	pledgeID := s.createPledge(t, "k-transition", 50)
	path := "/internal/pledges/" + pledgeID + "/status"
	body := map[string]any{"newStatus": string(enums.PledgeStatusCaptured)}

	status, _ := s.do(t, http.MethodPatch, path, body, nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodPatch, path, body, map[string]string{middleware.InternalTokenHeader: "wrong"})
	require.Equal(t, http.StatusForbidden, status)

	status, resp := s.do(t, http.MethodPatch, path, body, map[string]string{middleware.InternalTokenHeader: testInternalToken})
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, errorMessage(resp), "Invalid")

	s.waitForStatus(t, pledgeID, enums.PledgeStatusPending)
}

func TestPledgeCreateAuthAndValidation(t *testing.T) {
	s := newStack(t)

	status, _ := s.do(t, http.MethodPost, "/pledges", map[string]any{
		"campaignId": testCampaignID,
		"amount":     10,
	}, map[string]string{"Idempotency-Key": "k-bad-token", "Authorization": "Bearer not-a-jwt"})
	require.Equal(t, http.StatusUnauthorized, status)

	donorToken := s.token(t, "donor-1", enums.RoleDonor)
	status, _ = s.do(t, http.MethodPost, "/pledges", map[string]any{
		"campaignId": testCampaignID,
		"amount":     10,
		"donorId":    "donor-2",
	}, map[string]string{"Idempotency-Key": "k-mismatch", "Authorization": "Bearer " + donorToken})
	require.Equal(t, http.StatusForbidden, status)

	status, body := s.do(t, http.MethodPost, "/pledges", map[string]any{
		"campaignId": testCampaignID,
		"amount":     10,
	}, map[string]string{"Idempotency-Key": "k-donor", "Authorization": "Bearer " + donorToken})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "donor-1", data(t, body)["donorId"])

	status, _ = s.do(t, http.MethodPost, "/pledges", map[string]any{
		"campaignId": "missing-campaign",
		"amount":     10,
		"sessionId":  "s-1",
	}, map[string]string{"Idempotency-Key": "k-missing"})
	require.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, http.MethodPost, "/pledges", map[string]any{
		"campaignId": testCampaignID,
		"amount":     10,
		"sessionId":  "s-1",
	}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	details, _ := body["error"].(map[string]any)["details"].(map[string]any)
	require.Contains(t, details, "Idempotency-Key")

	status, body = s.do(t, http.MethodPost, "/pledges", map[string]any{
		"campaignId": testCampaignID,
		"amount":     0,
		"sessionId":  "s-1",
	}, map[string]string{"Idempotency-Key": "k-zero"})
	require.Equal(t, http.StatusBadRequest, status)
	details, _ = body["error"].(map[string]any)["details"].(map[string]any)
	require.Equal(t, "must be greater than 0", details["amount"])
}

func TestPledgeCreateRejectsOversizedIdempotencyKey(t *testing.T) {
	s := newStack(t)
	prefix := strings.Repeat("a", 255)

	status, body := s.do(t, http.MethodPost, "/pledges", map[string]any{
		"campaignId": testCampaignID,
		"amount":     100,
		"donorId":    "alice",
	}, map[string]string{"Idempotency-Key": prefix + "-alice"})
	require.Equal(t, http.StatusBadRequest, status)
	details, _ := body["error"].(map[string]any)["details"].(map[string]any)
	require.Equal(t, "must be at most 255 bytes", details["Idempotency-Key"])

	status, _ = s.do(t, http.MethodPost, "/pledges", map[string]any{
		"campaignId": testCampaignID,
		"amount":     999,
		"donorId":    "bob",
	}, map[string]string{"Idempotency-Key": prefix + "-bob"})
	require.Equal(t, http.StatusBadRequest, status)

	// Keys at the limit stay distinct.
	ids := make([]string, 0, 2)
	for _, donor := range []string{"alice", "bob"} {
		status, body := s.do(t, http.MethodPost, "/pledges", map[string]any{
			"campaignId": testCampaignID,
			"amount":     100,
			"donorId":    donor,
		}, map[string]string{"Idempotency-Key": strings.Repeat("b", 251) + "-" + donor[:3]})
		require.Equal(t, http.StatusCreated, status, "%v", body)
		require.Equal(t, donor, data(t, body)["donorId"])
		ids = append(ids, data(t, body)["id"].(string))
	}
	require.NotEqual(t, ids[0], ids[1])
}

func TestOutboxOperatorRoutes(t *testing.T) {
	s := newStack(t)
	s.createPledge(t, "k-outbox", 75)

	s.memory.SetFailure(fmt.Errorf("bus down"))
	for i := 0; i < s.cfg.Outbox.MaxRetries; i++ {
		_, err := s.relay.RunOnce(context.Background())
		require.NoError(t, err)
	}
	s.memory.SetFailure(nil)

	headers := map[string]string{middleware.InternalTokenHeader: testInternalToken}
	status, body := s.do(t, http.MethodGet, "/internal/outbox/failed", nil, headers)
	require.Equal(t, http.StatusOK, status)
	events, ok := body["data"].([]any)
	require.True(t, ok, "%v", body)
	require.Len(t, events, 1)
	eventID := events[0].(map[string]any)["id"].(string)

	status, _ = s.do(t, http.MethodPost, "/internal/outbox/"+eventID+"/requeue", nil, headers)
	require.Equal(t, http.StatusOK, status)

	result, err := s.relay.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Published)
	require.Len(t, s.memory.Published("pledge.created"), 1)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	s := newStack(t)

	status, _ := s.do(t, http.MethodGet, "/health/live", nil, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, status)

	resp, err := s.server.Client().Get(s.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), "/health/live")
}

func TestRouterOnlyMountsOwnedGroups(t *testing.T) {
	cfg := &config.Config{
		App:     config.AppConfig{Env: "test"},
		Service: config.ServiceConfig{Kind: config.ServiceKindTotals},
		JWT:     config.JWTConfig{Secret: "test-secret", Issuer: "careforall-identity", ExpirationMinutes: 60},
	}
	router := NewRouter(Dependencies{Config: cfg, Logger: logger.Nop()})

	for _, path := range []string{"/pledges", "/payments/webhooks"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader("{}")))
		require.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/totals/"+testCampaignID, nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
