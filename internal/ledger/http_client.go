package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPLedger is the production Ledger backed by the platform's points
// service HTTP API.
type HTTPLedger struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPLedger(baseURL string, timeout time.Duration) *HTTPLedger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPLedger{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPLedger) GetBalance(ctx context.Context, userID string) (Balance, error) {
	url := fmt.Sprintf("%s/api/points/%s/balance", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return Balance{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Balance{}, fmt.Errorf("ledger balance request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Balance{}, fmt.Errorf("ledger balance request returned status %d", resp.StatusCode)
	}

	var bal Balance
	if err := json.NewDecoder(resp.Body).Decode(&bal); err != nil {
		return Balance{}, fmt.Errorf("decoding ledger balance: %w", err)
	}
	return bal, nil
}

type movementRequest struct {
	Amount    int    `json:"amount"`
	Reference string `json:"reference"`
}

type movementError struct {
	Error     string `json:"error"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

func (c *HTTPLedger) Debit(ctx context.Context, userID string, amount int, reference string) error {
	return c.move(ctx, userID, "debit", amount, reference)
}

func (c *HTTPLedger) Credit(ctx context.Context, userID string, amount int, reference string) error {
	return c.move(ctx, userID, "credit", amount, reference)
}

func (c *HTTPLedger) move(ctx context.Context, userID, op string, amount int, reference string) error {
	if amount < 0 {
		return fmt.Errorf("ledger %s: negative amount %d", op, amount)
	}
	url := fmt.Sprintf("%s/api/points/%s/%s", c.baseURL, userID, op)

	body, err := json.Marshal(movementRequest{Amount: amount, Reference: reference})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger %s request: %w", op, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusPaymentRequired:
		var me movementError
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err := json.Unmarshal(raw, &me); err == nil {
			return &InsufficientFundsError{Required: me.Required, Available: me.Available}
		}
		return &InsufficientFundsError{Required: amount}
	default:
		return fmt.Errorf("ledger %s request returned status %d", op, resp.StatusCode)
	}
}
