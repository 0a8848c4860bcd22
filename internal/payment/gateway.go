package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Gateway resolves a payment attempt to a confirmed/declined outcome. The
// booking core never calls it directly; the API edge resolves the outcome
// first and passes the boolean in.
type Gateway interface {
	Authorize(ctx context.Context, amountCents int64, method string) (bool, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type authorizeRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
}

type authorizeResponse struct {
	Confirmed bool `json:"confirmed"`
}

func (c *Client) Authorize(ctx context.Context, amountCents int64, method string) (bool, error) {
	body, err := json.Marshal(authorizeRequest{AmountCents: amountCents, Method: method})
	if err != nil {
		return false, fmt.Errorf("marshal authorize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/authorize", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build authorize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("authorize payment: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out authorizeResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return false, fmt.Errorf("decode authorize response: %w", err)
		}
		return out.Confirmed, nil
	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		// Declined, not an infrastructure failure.
		return false, nil
	default:
		raw, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("payment gateway returned %d: %s", resp.StatusCode, string(raw))
	}
}

// AlwaysApprove confirms every attempt. Dev-mode stand-in when no gateway is
// configured.
type AlwaysApprove struct{}

func (AlwaysApprove) Authorize(context.Context, int64, string) (bool, error) {
	return true, nil
}
