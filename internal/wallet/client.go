package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrRejected marks a credit the wallet refused; retrying will not help.
	ErrRejected = errors.New("wallet: credit rejected")
	// ErrUnavailable wraps transport failures and 5xx answers.
	ErrUnavailable = errors.New("wallet: upstream unavailable")
)

// Doer executes outbound requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client posts credits to the upstream wallet API.
type Client struct {
	HTTP    Doer
	BaseURL string
}

// Credit posts {base}/wallet/credits. The order reference doubles as the
// idempotency key, and a 409 means the wallet already holds this credit.
func (c Client) Credit(ctx context.Context, p CreditPayload) error {
	if c.HTTP == nil || c.BaseURL == "" {
		return fmt.Errorf("%w: client not configured", ErrUnavailable)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/wallet/credits", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "cashback-"+p.OrderRef)
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch {
	case resp.StatusCode < 300, resp.StatusCode == http.StatusConflict:
		return nil
	case resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(msg))
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}
