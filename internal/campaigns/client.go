package campaigns

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/careforall-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/careforall-backend/pkg/errors"
)

const (
	defaultTimeout              = 5 * time.Second
	responseBodyReadLimit int64 = 1024
)

// Campaign is the subset of the campaign service's document the pledge flow reads.
type Campaign struct {
	ID         string    `json:"_id"`
	Title      string    `json:"title"`
	GoalAmount int64     `json:"goalAmount"`
	Status     string    `json:"status"`
	EndDate    time.Time `json:"endDate"`
}

// Client looks campaigns up in the campaign service.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a lookup client against cfg.BaseURL.
func NewClient(cfg config.CampaignsConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("campaign service url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Get fetches a campaign. A 404 from the campaign service is NOT_FOUND; any
// other failure is a dependency error.
func (c *Client) Get(ctx context.Context, campaignID string) (*Campaign, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "campaign client not configured")
	}
	trimmed := strings.TrimSpace(campaignID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "campaign id is required")
	}

	endpoint := fmt.Sprintf("%s/campaigns/%s", c.baseURL, url.PathEscape(trimmed))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build campaign lookup request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "campaign service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "campaign not found").WithDetails(map[string]string{"campaignId": trimmed})
	case http.StatusBadRequest:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid campaign id").WithDetails(map[string]string{"campaignId": trimmed})
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "campaign lookup failed")
	}

	var body struct {
		Campaign Campaign `json:"campaign"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode campaign response")
	}
	if body.Campaign.ID == "" {
		body.Campaign.ID = trimmed
	}
	return &body.Campaign, nil
}

// EnsureExists satisfies the pledge service's campaign lookup.
func (c *Client) EnsureExists(ctx context.Context, campaignID string) error {
	_, err := c.Get(ctx, campaignID)
	return err
}
