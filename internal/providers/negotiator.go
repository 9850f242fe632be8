package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SDPNegotiator exchanges the local offer for a remote answer at the
// realtime endpoint, authenticated with the ephemeral credential.
type SDPNegotiator struct {
	realtimeURL string
	model       string
	client      *http.Client
}

func NewSDPNegotiator(realtimeURL, model string, timeout time.Duration) *SDPNegotiator {
	return &SDPNegotiator{
		realtimeURL: realtimeURL,
		model:       model,
		client:      &http.Client{Timeout: timeout},
	}
}

// Exchange posts the offer SDP and returns the answer SDP.
func (n *SDPNegotiator) Exchange(ctx context.Context, offerSDP, token string) (string, error) {
	if n.realtimeURL == "" {
		return "", ErrMissingRealtime
	}

	endpoint := n.realtimeURL
	if n.model != "" {
		endpoint += "?model=" + url.QueryEscape(n.model)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("failed to build negotiation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("negotiation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("negotiation returned status %d", resp.StatusCode)
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read negotiation response: %w", err)
	}

	if len(answer) == 0 {
		return "", ErrEmptyAnswer
	}

	return string(answer), nil
}
