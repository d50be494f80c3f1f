// Package history fetches the persisted message history of a zone from the
// REST API.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AhmadR6/Location-Based-SocialMediaApp-Frontend/internal/protocol"
)

// Fetcher returns the message history of a zone.
type Fetcher interface {
	Fetch(ctx context.Context, zoneID protocol.ID) ([]protocol.Message, error)
}

// Config holds the REST endpoint settings.
type Config struct {
	BaseURL string        // API root, e.g. http://localhost:5000/api
	Token   string        // optional bearer token
	Timeout time.Duration // per-request timeout
}

// Client calls GET <BaseURL>/zone-messages?zoneId=<id>.
type Client struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a Client. A nil httpClient uses a client with
// config.Timeout.
func NewClient(config Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config: config,
		client: httpClient,
		logger: logger.Named("history"),
	}
}

// Fetch loads the history of zoneID. A response without a messages field
// yields an empty history.
func (c *Client) Fetch(ctx context.Context, zoneID protocol.ID) ([]protocol.Message, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/zone-messages?zoneId=" + url.QueryEscape(zoneID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("history: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history: request zone %s: %w", zoneID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history: zone %s returned %s", zoneID, resp.Status)
	}

	var body protocol.HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("history: decode zone %s: %w", zoneID, err)
	}

	c.logger.Debug("history fetched",
		zap.String("zone", zoneID.String()),
		zap.Int("messages", len(body.Messages)),
		zap.Duration("took", time.Since(start)))
	return body.Messages, nil
}
