package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocheckin/internal/portal"
)

type portalFixture struct {
	rotateTo    string
	title       string
	accountName string
	csrfToken   string
}

func (f portalFixture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if f.rotateTo != "" {
			http.SetCookie(w, &http.Cookie{Name: portal.SessionCookie, Value: f.rotateTo})
		}
		fmt.Fprintf(w, `<html><head><title>%s</title>`, f.title)
		if f.csrfToken != "" {
			fmt.Fprintf(w, `<meta name="csrf-token" content="%s">`, f.csrfToken)
		}
		fmt.Fprintf(w, `</head><body><span class="side-menu-title side-menu-name">%s</span>`, f.accountName)
		fmt.Fprint(w, `<section class="box-typical box-typical-padding" data-activities-id="7">
<div class="col-md-4">09:00 - 10:00</div>
<div class="col-md-4">Lecture</div>
<div class="col-md-4">Dr Jones</div>
<div class="col-md-4">CSE/082</div>
<div class="selfregistration_status"><button class="btn btn-default">Register</button></div>
</section></body></html>`)
	}
}

func newEngineFor(t *testing.T, f portalFixture) *Engine {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewEngine(portal.NewClient(srv.URL), nil, zerolog.Nop())
}

func TestRefreshSuccess(t *testing.T) {
	e := newEngineFor(t, portalFixture{
		rotateTo:    "token-2",
		title:       portal.CheckInPageTitle,
		accountName: "student@york.ac.uk",
		csrfToken:   "csrf-1",
	})

	res, err := e.Refresh(context.Background(), "student@york.ac.uk", "token-1", true)
	require.NoError(t, err)
	assert.Equal(t, "token-2", res.Token)
	assert.Equal(t, "csrf-1", res.CSRFToken)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "7", res.Events[0].ID)
}

func TestRefreshWithoutEvents(t *testing.T) {
	e := newEngineFor(t, portalFixture{
		rotateTo:    "token-2",
		title:       portal.CheckInPageTitle,
		accountName: "student@york.ac.uk",
	})

	// CSRF is only required when events were asked for.
	res, err := e.Refresh(context.Background(), "student@york.ac.uk", "token-1", false)
	require.NoError(t, err)
	assert.Equal(t, "token-2", res.Token)
	assert.Empty(t, res.CSRFToken)
	assert.Empty(t, res.Events)
}

func TestRefreshNoNewToken(t *testing.T) {
	e := newEngineFor(t, portalFixture{
		title:       portal.CheckInPageTitle,
		accountName: "student@york.ac.uk",
		csrfToken:   "csrf-1",
	})

	_, err := e.Refresh(context.Background(), "student@york.ac.uk", "token-1", true)
	assert.ErrorIs(t, err, ErrNoNewToken)
}

func TestRefreshAuthExpired(t *testing.T) {
	e := newEngineFor(t, portalFixture{
		rotateTo: "token-2",
		title:    portal.LoginPageTitle,
	})

	_, err := e.Refresh(context.Background(), "student@york.ac.uk", "token-1", true)
	assert.ErrorIs(t, err, ErrAuthExpired)
}

func TestRefreshUnexpectedPage(t *testing.T) {
	e := newEngineFor(t, portalFixture{
		rotateTo:    "token-2",
		title:       "Maintenance",
		accountName: "student@york.ac.uk",
	})

	_, err := e.Refresh(context.Background(), "student@york.ac.uk", "token-1", true)
	assert.ErrorIs(t, err, ErrUnexpectedPage)
}

func TestRefreshIdentityMismatch(t *testing.T) {
	e := newEngineFor(t, portalFixture{
		rotateTo:    "token-2",
		title:       portal.CheckInPageTitle,
		accountName: "someone-else@york.ac.uk",
		csrfToken:   "csrf-1",
	})

	_, err := e.Refresh(context.Background(), "student@york.ac.uk", "token-1", true)
	assert.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestRefreshCSRFMissing(t *testing.T) {
	e := newEngineFor(t, portalFixture{
		rotateTo:    "token-2",
		title:       portal.CheckInPageTitle,
		accountName: "student@york.ac.uk",
	})

	_, err := e.Refresh(context.Background(), "student@york.ac.uk", "token-1", true)
	assert.ErrorIs(t, err, ErrCSRFMissing)
}

type recordingNotifier struct {
	email, oldToken, newToken string
	err                       error
}

func (n *recordingNotifier) RotateToken(_ context.Context, email, oldToken, newToken string) error {
	n.email, n.oldToken, n.newToken = email, oldToken, newToken
	return n.err
}

func TestRefreshNotifierFailureIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(portalFixture{
		rotateTo:    "token-2",
		title:       portal.CheckInPageTitle,
		accountName: "student@york.ac.uk",
		csrfToken:   "csrf-1",
	}.handler())
	defer srv.Close()

	notifier := &recordingNotifier{err: errors.New("upstream down")}
	e := NewEngine(portal.NewClient(srv.URL), notifier, zerolog.Nop())

	res, err := e.Refresh(context.Background(), "student@york.ac.uk", "token-1", false)
	require.NoError(t, err)
	assert.Equal(t, "token-2", res.Token)
	assert.Equal(t, "student@york.ac.uk", notifier.email)
	assert.Equal(t, "token-1", notifier.oldToken)
	assert.Equal(t, "token-2", notifier.newToken)
}
