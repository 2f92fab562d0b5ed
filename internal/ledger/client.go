package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrTokenNotConfigured is returned before any network I/O when the
// client has no access token. Nothing can succeed without one.
var ErrTokenNotConfigured = errors.New("LEDGER_ACCESS_TOKEN is not configured")

// APIError is a non-2xx response from the ledger. Message embeds the
// ledger's own message plus the status and endpoint for diagnosis.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string { return e.Message }

// Client is the authenticated JSON binding to the Pteron points API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// call performs one authenticated request and decodes the response into
// out. A 204 leaves out untouched. Any non-2xx status becomes *APIError.
func (c *Client) call(ctx context.Context, method, endpoint string, body, out any) error {
	if c.token == "" {
		return ErrTokenNotConfigured
	}

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorBody
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = "Unknown error"
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s (Status: %d, Endpoint: %s)", apiErr.Message, resp.StatusCode, endpoint),
		}
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	return nil
}

// GetProjectInfo fetches the project account bound to the access token.
func (c *Client) GetProjectInfo(ctx context.Context) (*Project, error) {
	var project Project
	if err := c.call(ctx, http.MethodGet, "/me", nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// GetProjectInfoByID fetches project info for the given project id.
// The ledger currently resolves the project from the bearer token, so
// this hits the same /me endpoint as GetProjectInfo.
// TODO: target /projects/{id} once the ledger exposes it.
func (c *Client) GetProjectInfoByID(ctx context.Context, projectID string) (*Project, error) {
	_ = projectID
	var project Project
	if err := c.call(ctx, http.MethodGet, "/me", nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// CreateTransaction transfers amount points from the project to toUser.
// requestID is the idempotency key; the ledger refuses to apply the
// same id twice, so a network-level retry cannot double-spend.
func (c *Client) CreateTransaction(ctx context.Context, toUser string, amount int64, description, requestID string) (*Transaction, error) {
	body := CreateTransactionRequest{
		ToUser:      toUser,
		Amount:      amount,
		Description: description,
		RequestID:   requestID,
	}
	var txn Transaction
	if err := c.call(ctx, http.MethodPost, "/transactions", body, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// CreateBill asks targetUser to pay amount points to the project. The
// payer settles it on the hosted payment page in the response.
func (c *Client) CreateBill(ctx context.Context, targetUser string, amount int64, successURL, cancelURL, description string) (*CreateBillResponse, error) {
	body := CreateBillRequest{
		TargetUser:  targetUser,
		Amount:      amount,
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
		Description: description,
	}
	var bill CreateBillResponse
	if err := c.call(ctx, http.MethodPost, "/bills", body, &bill); err != nil {
		return nil, err
	}
	return &bill, nil
}
