package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsdigest/internal/domain"
	"newsdigest/internal/ports"
)

// Client publishes posts to the external API using signed requests.
type Client struct {
	apiURL     string
	signer     *Signer
	httpClient *http.Client
}

var _ ports.Publisher = (*Client)(nil)

// NewClient builds a publishing client; a nil http.Client gets a 15s timeout.
func NewClient(apiURL string, signer *Signer, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{apiURL: apiURL, signer: signer, httpClient: httpClient}
}

// Publish sends the post body and returns the created tweet identifier.
// Rate-limit rejections are classified here, at the transport boundary, and
// wrapped with domain.ErrRateLimited so callers can branch on errors.Is.
func (c *Client) Publish(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("marshal tweet payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", c.signer.AuthorizationHeader(http.MethodPost, c.apiURL))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send tweet: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<10))
	if err != nil {
		return "", fmt.Errorf("read tweet response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if rateLimited(resp.StatusCode, payload) {
			return "", fmt.Errorf("twitter %s: %w", resp.Status, domain.ErrRateLimited)
		}
		return "", fmt.Errorf("twitter %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode tweet response: %w", err)
	}

	return parsed.Data.ID, nil
}

func rateLimited(status int, body []byte) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(strings.ToLower(string(body)), "rate limit")
}
