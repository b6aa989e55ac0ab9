package campaigns

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(config.CampaignsConfig{BaseURL: srv.URL + "/", Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGetCampaign(t *testing.T) {
	var capturedPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"campaign":{"_id":"c-1","title":"Clean water","goalAmount":10000,"status":"active"}}`))
	})

	campaign, err := client.Get(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if capturedPath != "/campaigns/c-1" {
		t.Fatalf("unexpected path %q", capturedPath)
	}
	if campaign.Title != "Clean water" || campaign.GoalAmount != 10000 {
		t.Fatalf("unexpected campaign %+v", campaign)
	}
}

func TestGetCampaignMapsStatuses(t *testing.T) {
	cases := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"nope"}`, tc.status)
		})
		err := client.EnsureExists(context.Background(), "c-1")
		if !pkgerrors.IsCode(err, tc.code) {
			t.Fatalf("status %d: expected %s, got %v", tc.status, tc.code, err)
		}
	}
}

func TestGetCampaignUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client, err := NewClient(config.CampaignsConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.EnsureExists(context.Background(), "c-1"); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(config.CampaignsConfig{}); err == nil {
		t.Fatal("expected missing url to fail")
	}
}
