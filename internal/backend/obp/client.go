// Package obp is an HTTP client for the Open Bank Project sandbox, the
// banking collaborator. It covers the four operations the gateway
// consumes: direct login, user creation, account creation, and transfers.
package obp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tjfontaine/voicebank-gateway/internal/domain"
)

// TransferStatusCompleted is the status the sandbox returns when a
// transfer settles synchronously.
const TransferStatusCompleted = "COMPLETED"

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client is an HTTP client for the sandbox API. Authenticated calls carry
// a directlogin token obtained once per session via DirectLogin.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new sandbox client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Profile is the login detail set for a new sandbox user. Username mirrors
// Email; the sandbox treats them as the same value.
type Profile struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// TransferRequest describes one transfer between sandbox accounts. Bank
// identifiers are wire-form (see domain.WireBankID).
type TransferRequest struct {
	FromBank    string
	FromAccount string
	ToBank      string
	ToAccount   string
	Amount      float64
}

// DirectLogin exchanges sandbox credentials for a session token. This is
// done once per session; every subsequent call threads the token through
// the directlogin header.
func (c *Client) DirectLogin(ctx context.Context, username, password, consumerKey string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/my/logins/direct", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("directlogin",
		fmt.Sprintf("username=%s,password=%s,consumer_key=%s", username, password, consumerKey))

	var result struct {
		Token string `json:"token"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	return result.Token, nil
}

// CreateUser registers a new sandbox user and returns its user id.
func (c *Client) CreateUser(ctx context.Context, token string, profile Profile) (string, error) {
	if profile.Username == "" {
		profile.Username = profile.Email
	}
	req, err := c.newAuthedRequest(ctx, token, "/obp/v4.0.0/users", profile)
	if err != nil {
		return "", err
	}

	var result struct {
		UserID string `json:"user_id"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	return result.UserID, nil
}

// CreateAccount opens an account for the user at the given bank (wire-form
// id) and returns the account id. The sandbox requires a zero opening
// balance; funds arrive only by transfer.
func (c *Client) CreateAccount(ctx context.Context, token, userID, bank string) (string, error) {
	body := map[string]any{
		"user_id":      userID,
		"label":        "My Account",
		"product_code": "1234BW",
		"balance": map[string]any{
			"currency": "SGD",
			"amount":   0,
		},
		"branch_id": "DERBY6",
		"account_routings": []map[string]string{
			{"scheme": "OBP", "address": uuid.New().String()},
		},
	}
	req, err := c.newAuthedRequest(ctx, token, fmt.Sprintf("/obp/v5.1.0/banks/%s/accounts", bank), body)
	if err != nil {
		return "", err
	}

	var result struct {
		AccountID string `json:"account_id"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	return result.AccountID, nil
}

// CreateTransfer submits a SANDBOX_TAN transaction request and returns the
// resulting status. The caller validates banks, destination, and amount
// before this is reached; the sandbox settles valid requests
// synchronously with TransferStatusCompleted.
func (c *Client) CreateTransfer(ctx context.Context, token string, tr TransferRequest) (string, error) {
	body := map[string]any{
		"to": map[string]string{
			"bank_id":    tr.ToBank,
			"account_id": tr.ToAccount,
		},
		"value": map[string]string{
			"currency": "SGD",
			"amount":   strconv.FormatFloat(tr.Amount, 'f', -1, 64),
		},
		"description": "transfer",
	}
	path := fmt.Sprintf(
		"/obp/v5.1.0/banks/%s/accounts/%s/owner/transaction-request-types/SANDBOX_TAN/transaction-requests",
		tr.FromBank, tr.FromAccount)
	req, err := c.newAuthedRequest(ctx, token, path, body)
	if err != nil {
		return "", err
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	return result.Status, nil
}

func (c *Client) newAuthedRequest(ctx context.Context, token, path string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("directlogin", "token="+token)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ErrTransport(fmt.Sprintf("sandbox request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrTransport(fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := extractMessage(respBody)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.ErrAuthentication(msg).WithStatusCode(resp.StatusCode)
		case http.StatusBadRequest:
			return domain.ErrValidation(msg).WithStatusCode(resp.StatusCode)
		default:
			return domain.ErrTransport(msg).WithStatusCode(resp.StatusCode)
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func extractMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Message != "" {
		return envelope.Message
	}
	return string(body)
}
