package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TokenClient mints ephemeral session credentials from the backend. The
// backend holds the long-lived API key; the client only ever sees the
// short-lived secret.
type TokenClient struct {
	baseURL string
	client  *http.Client
}

func NewTokenClient(baseURL string, timeout time.Duration) *TokenClient {
	return &TokenClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchToken requests one ephemeral credential.
func (c *TokenClient) FetchToken(ctx context.Context) (string, error) {
	if c.baseURL == "" {
		return "", ErrMissingBaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned status %d", resp.StatusCode)
	}

	var payload struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	if payload.ClientSecret.Value == "" {
		return "", ErrEmptyToken
	}

	return payload.ClientSecret.Value, nil
}
