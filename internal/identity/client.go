package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Client asks the user service whether a holder manages an elder. It
// implements booking.IdentityProvider.
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

func (c *Client) OwnsElder(ctx context.Context, holderID, elderID uuid.UUID) (bool, error) {
	url := fmt.Sprintf("%s/internal/users/%s/elders/%s", c.baseURL, holderID, elderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build ownership request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("check elder ownership: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound, http.StatusForbidden:
		return false, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("identity service returned %d: %s", resp.StatusCode, string(body))
	}
}

// Static is a fixed holder-to-elders mapping, for tests and local runs
// without a user service.
type Static map[uuid.UUID][]uuid.UUID

func (s Static) OwnsElder(_ context.Context, holderID, elderID uuid.UUID) (bool, error) {
	for _, id := range s[holderID] {
		if id == elderID {
			return true, nil
		}
	}
	return false, nil
}

// AllowAll approves every holder/elder pair. Dev-mode stand-in when no
// identity service is configured.
type AllowAll struct{}

func (AllowAll) OwnsElder(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}
