/**
 * @description
 * Client for the funds-transfer rail (the ledger service). The billing
 * engine only decides whether, how much, and when next; this client carries
 * out the actual transfers and balance reads.
 */
package ledgerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Client is a client for the ledger service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new ledger service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Transfer moves amount from one account to another. A 402 from the rail
// maps to ErrInsufficientFunds.
func (c *Client) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if from == "" || to == "" {
		return fmt.Errorf("transfer accounts are required")
	}
	if c.apiKey == "" {
		return fmt.Errorf("ledger service internal api key is not configured")
	}

	payload := map[string]interface{}{
		"from":   from,
		"to":     to,
		"amount": amount,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ledger/transfers", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		return ErrInsufficientFunds
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("ledger service returned status %d", resp.StatusCode)
	}
	return nil
}

// BalanceOf reads the available balance of an account.
func (c *Client) BalanceOf(ctx context.Context, account string) (uint64, error) {
	if account == "" {
		return 0, fmt.Errorf("account is required")
	}

	endpoint := fmt.Sprintf("%s/ledger/accounts/%s/balance", c.baseURL, url.PathEscape(account))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Internal-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("ledger service returned status %d", resp.StatusCode)
	}

	var response struct {
		Balance uint64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to parse balance response: %w", err)
	}
	return response.Balance, nil
}
