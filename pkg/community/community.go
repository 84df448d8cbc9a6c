// Package community publishes emergency alerts to the shared community
// backend so nearby users can see and respond to them.
package community

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/lumasafe/guardian/internal/httpc"
)

// Alert is one community broadcast. Immutable after creation; the
// backend collection is append-only.
type Alert struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Contact      string    `json:"contact"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	LocationText string    `json:"location_text"`
	Resolved     bool      `json:"resolved"`
}

// Config holds the backend endpoints and credentials.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Client talks to the community backend. Requests authenticate with
// oauth2 client credentials when a token URL is configured.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a backend client. With an empty TokenURL requests
// go out unauthenticated, which the local development backend allows.
func NewClient(cfg Config) *Client {
	hc := httpc.Client
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpc.Client)
		hc = cc.Client(ctx)
	}
	return &Client{baseURL: cfg.BaseURL, http: hc}
}

// Publish appends one alert to the backend collection.
func (c *Client) Publish(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/alerts", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("community backend status %d", resp.StatusCode)
	}
	return nil
}

// Recent returns the n most recent alerts, newest first.
func (c *Client) Recent(ctx context.Context, n int) ([]Alert, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/alerts?limit="+strconv.Itoa(n), nil)
	if err != nil {
		return nil, fmt.Errorf("build alerts request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch alerts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("community backend status %d", resp.StatusCode)
	}

	var alerts []Alert
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}
	return alerts, nil
}
