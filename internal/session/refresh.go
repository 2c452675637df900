// Package session renews portal session tokens. The engine is a pure protocol
// state machine over one page fetch: it never writes to the state store, so it
// can be exercised against canned HTML fixtures.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"autocheckin/internal/portal"
)

var (
	// ErrNoNewToken: the portal answered but did not rotate the session cookie.
	ErrNoNewToken = errors.New("no new session token received")
	// ErrAuthExpired: the portal served the login page; the token is dead.
	ErrAuthExpired = errors.New("session expired")
	// ErrUnexpectedPage: an authenticated page we do not recognize.
	ErrUnexpectedPage = errors.New("unexpected page")
	// ErrIdentityMismatch: the page belongs to a different account. Persisting
	// the rotated token would leak one account's session onto another record.
	ErrIdentityMismatch = errors.New("account identity mismatch")
	// ErrCSRFMissing: CSRF extraction was requested but the page had no token.
	ErrCSRFMissing = errors.New("csrf token missing")
)

// Result is a successful refresh. CSRFToken and Events are populated only
// when requested.
type Result struct {
	Token     string
	CSRFToken string
	Events    []portal.Event
}

// TokenNotifier receives old/new token pairs after a successful rotation.
// The notification is best effort and never affects the refresh outcome.
type TokenNotifier interface {
	RotateToken(ctx context.Context, email, oldToken, newToken string) error
}

// Engine refreshes one account's session per call.
type Engine struct {
	portal   *portal.Client
	notifier TokenNotifier
	now      func() time.Time
	log      zerolog.Logger
}

// NewEngine creates a refresh engine. notifier may be nil.
func NewEngine(p *portal.Client, notifier TokenNotifier, log zerolog.Logger) *Engine {
	return &Engine{portal: p, notifier: notifier, now: time.Now, log: log}
}

// Refresh loads the self-registration page with currentToken, validates that
// the portal rotated the session and that the page belongs to email, and
// optionally extracts the CSRF token and open events. The caller persists the
// new token; the engine does not.
func (e *Engine) Refresh(ctx context.Context, email, currentToken string, wantEventsAndCSRF bool) (Result, error) {
	body, rotated, err := e.portal.FetchSelfRegistration(ctx, currentToken)
	if err != nil {
		return Result{}, err
	}
	if rotated == "" {
		return Result{}, ErrNoNewToken
	}

	page, err := portal.ParseSelfRegistration(body, e.now())
	if err != nil {
		return Result{}, err
	}
	if page.IsLogin() {
		return Result{}, ErrAuthExpired
	}
	if page.Title != portal.CheckInPageTitle {
		return Result{}, fmt.Errorf("%w: title %q", ErrUnexpectedPage, page.Title)
	}
	if page.AccountName != email {
		return Result{}, fmt.Errorf("%w: expected %s", ErrIdentityMismatch, email)
	}

	res := Result{Token: rotated}
	if wantEventsAndCSRF {
		if page.CSRFToken == "" {
			return Result{}, ErrCSRFMissing
		}
		res.CSRFToken = page.CSRFToken
		res.Events = page.Events
	}

	if e.notifier != nil {
		if err := e.notifier.RotateToken(ctx, email, currentToken, rotated); err != nil {
			// The new token is already live on the portal side, so the
			// refresh stays successful even if upstream never hears of it.
			e.log.Warn().Err(err).Str("email", email).Msg("token rotation notify failed")
		}
	}
	return res, nil
}
