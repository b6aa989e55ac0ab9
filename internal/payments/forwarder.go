package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/config"
	"github.com/angelmondragon/careforall-backend/pkg/enums"
)

// InternalTokenHeader authenticates calls between services.
const InternalTokenHeader = "X-Internal-Token"

// StatusForwarder pushes a pledge status derived from a webhook.
type StatusForwarder interface {
	Forward(ctx context.Context, pledgeID string, status enums.PledgeStatus) error
}

// PledgeStatusClient calls the pledge service's internal status endpoint.
type PledgeStatusClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	timeout    time.Duration
}

// NewPledgeStatusClient builds the forwarder. Each call is bounded by
// cfg.ForwardTimeout.
func NewPledgeStatusClient(cfg config.PledgesClientConfig, internal config.InternalConfig, client *http.Client) (*PledgeStatusClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("pledge service url is required")
	}
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.ForwardTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PledgeStatusClient{
		httpClient: client,
		baseURL:    baseURL,
		token:      internal.Token,
		timeout:    timeout,
	}, nil
}

func (c *PledgeStatusClient) Forward(ctx context.Context, pledgeID string, status enums.PledgeStatus) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"newStatus": string(status)})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/internal/pledges/%s/status", c.baseURL, url.PathEscape(pledgeID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(InternalTokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("pledge status update returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
