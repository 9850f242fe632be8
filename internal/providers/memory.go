package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"xiaoqiu/pkg/types"
)

// MemoryClient reads and writes long-term learner memory on the backend.
// A learner with no stored memory yet is not an error: Fetch returns the
// empty string for 404 responses.
type MemoryClient struct {
	baseURL string
	client  *http.Client
}

func NewMemoryClient(baseURL string, timeout time.Duration) *MemoryClient {
	return &MemoryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch returns the stored memory summary for one learner.
func (c *MemoryClient) Fetch(ctx context.Context, userID string) (string, error) {
	url := fmt.Sprintf("%s/memory/user_state/%s", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build memory request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("memory request failed: %w", err)
	}
	defer resp.Body.Close()

	// New learners have no memory yet.
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("memory request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read memory response: %w", err)
	}

	summary := strings.TrimSpace(string(body))
	if summary == "{}" || summary == "null" {
		return "", nil
	}

	return summary, nil
}

// Store posts the finished conversation so the backend can fold it into
// the learner's memory.
func (c *MemoryClient) Store(ctx context.Context, userID string, transcript []types.TranscriptEntry) error {
	if len(transcript) == 0 {
		return nil
	}

	var lines []string
	for _, entry := range transcript {
		lines = append(lines, fmt.Sprintf("%s: %s", entry.Role, entry.Content))
	}

	payload, err := json.Marshal(map[string]string{
		"user_id": userID,
		"message": strings.Join(lines, "\n"),
	})
	if err != nil {
		return fmt.Errorf("failed to encode memory payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/memory/store", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build memory store request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("memory store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("memory store returned status %d", resp.StatusCode)
	}

	return nil
}
