package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SessionCookie is the opaque session credential the portal rotates on every
// authenticated page load.
const SessionCookie = "prestostudent_session"

// Browser-looking headers; the portal serves a different page to obvious bots.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0"

// Client talks to the scraped check-in portal. It carries no session of its
// own: every call takes the account's current token explicitly.
type Client struct {
	BaseURL string
	// Page fetches and code submissions have separate timeouts so a stalled
	// portal cannot block a whole cycle.
	PageHTTP   *http.Client
	SubmitHTTP *http.Client
}

// NewClient creates a portal client with bounded timeouts.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		PageHTTP:   &http.Client{Timeout: 15 * time.Second},
		SubmitHTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchSelfRegistration loads /selfregistration with the given session token
// and returns the page body plus the rotated session token from the response
// cookies. An empty rotated token means the portal did not renew the session.
func (c *Client) FetchSelfRegistration(ctx context.Context, token string) (body []byte, rotated string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/selfregistration", nil)
	if err != nil {
		return nil, "", err
	}
	c.pageHeaders(req, token)

	resp, err := c.PageHTTP.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("portal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("portal returned %s", resp.Status)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read portal response: %w", err)
	}

	for _, ck := range resp.Cookies() {
		if ck.Name == SessionCookie {
			rotated = ck.Value
		}
	}
	return body, rotated, nil
}

// FetchAttendance loads the weekly attendance page for year/week.
func (c *Client) FetchAttendance(ctx context.Context, token string, year, week int) ([]byte, error) {
	u := fmt.Sprintf("%s/attendance/%d/%d", c.BaseURL, year, week)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.pageHeaders(req, token)

	resp, err := c.PageHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("portal returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read portal response: %w", err)
	}
	return body, nil
}

// SubmitCode posts a check-in code for an event and returns the HTTP status.
// 200 means accepted, 422 means the code is invalid for this event; anything
// else is the caller's problem to classify.
func (c *Client) SubmitCode(ctx context.Context, eventID, code, sessionToken, csrfToken string) (int, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("_token", csrfToken)

	u := fmt.Sprintf("%s/api/selfregistration/%s/present", c.BaseURL, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Referer", c.BaseURL+"/selfregistration")
	req.Header.Set("X-CSRF-TOKEN", csrfToken)
	req.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: csrfToken})
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sessionToken})

	resp, err := c.SubmitHTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("portal submission failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) pageHeaders(req *http.Request, token string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
}
