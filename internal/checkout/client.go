// Package checkout is the client for the CheckOut account API: the upstream
// that owns the account population, hands out candidate codes, and receives
// token rotations, log lines, and merged attendance snapshots.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// APIError is returned for transport failures, non-2xx responses, and
// envelope-level success=false replies.
type APIError struct {
	Message    string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("checkout api: %s (status %d)", e.Message, e.StatusCode)
	}
	return "checkout api: " + e.Message
}

// envelope is the fixed response contract for every endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// Client calls the CheckOut API with a static key header.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	apiKey string
}

// New creates a client. The base URL and key have no fallback; a missing
// value here is the fatal configuration error, raised once at construction.
func New(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	if baseURL == "" || apiKey == "" {
		return nil, errors.New("checkout api url and key are required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) request(ctx context.Context, method, path string, payload any) (*envelope, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	url := c.BaseURL + "/api/autocheckin/" + strings.TrimPrefix(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-checkout-key", c.apiKey)
	req.Header.Set("User-Agent", "AutoCheckin/1.0")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("read response: %v", err), StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Message: "unexpected status " + resp.Status, StatusCode: resp.StatusCode, Body: raw}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("decode response: %v", err), StatusCode: resp.StatusCode, Body: raw}
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "api returned success=false"
		}
		return nil, &APIError{Message: msg, StatusCode: resp.StatusCode, Body: raw}
	}
	return &env, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	env, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &APIError{Message: fmt.Sprintf("decode data: %v", err)}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	_, err := c.request(ctx, http.MethodPost, path, payload)
	return err
}

// TestConnection probes the API; used by the connection monitor.
func (c *Client) TestConnection(ctx context.Context) bool {
	return c.get(ctx, "test", nil) == nil
}

// User is one registered account as the upstream reports it.
type User struct {
	Email        string `json:"email"`
	CheckinToken string `json:"checkinToken"`
}

// Users fetches the registered account list.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var data struct {
		AutoCheckinUsers []User `json:"autoCheckinUsers"`
	}
	if err := c.get(ctx, "users", &data); err != nil {
		return nil, err
	}
	return data.AutoCheckinUsers, nil
}

// Code is a candidate check-in code; Reputation counts historical successful
// uses and ranks the code ahead of less-proven ones.
type Code struct {
	Value      string
	Reputation int
}

// Codes fetches candidate codes for a department path and returns them sorted
// by descending reputation. Ties keep the order the API listed them in.
func (c *Client) Codes(ctx context.Context, deptPath string) ([]Code, error) {
	var data struct {
		SessionCount int `json:"sessionCount"`
		Sessions     []struct {
			Codes []struct {
				CheckinCode string `json:"checkinCode"`
				Count       int    `json:"count"`
			} `json:"codes"`
		} `json:"sessions"`
	}
	if err := c.get(ctx, deptPath, &data); err != nil {
		return nil, err
	}
	if data.SessionCount == 0 {
		return nil, nil
	}

	var codes []Code
	for _, session := range data.Sessions {
		for _, code := range session.Codes {
			if code.CheckinCode == "" {
				continue
			}
			codes = append(codes, Code{Value: code.CheckinCode, Reputation: code.Count})
		}
	}
	sort.SliceStable(codes, func(i, j int) bool { return codes[i].Reputation > codes[j].Reputation })
	return codes, nil
}

// RotateToken notifies upstream of an old/new session token pair.
func (c *Client) RotateToken(ctx context.Context, email, oldToken, newToken string) error {
	return c.post(ctx, "update", map[string]string{
		"email":    email,
		"oldToken": oldToken,
		"newToken": newToken,
	})
}

// Log appends an operational log line upstream.
func (c *Client) Log(ctx context.Context, email, logType, message string) error {
	return c.post(ctx, "log", map[string]string{
		"email":   email,
		"type":    logType,
		"message": message,
	})
}

// UpdateSync uploads a merged attendance snapshot for one account.
func (c *Client) UpdateSync(ctx context.Context, email string, syncData any) error {
	return c.post(ctx, "update-sync", map[string]any{
		"email": email,
		"sync":  syncData,
	})
}
