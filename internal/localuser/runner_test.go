package localuser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocheckin/internal/portal"
	"autocheckin/internal/session"
	"autocheckin/internal/submit"
)

func localPortalServer(t *testing.T, email, acceptCode string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			if r.PostFormValue("code") == acceptCode {
				w.WriteHeader(http.StatusOK)
			} else {
				w.WriteHeader(http.StatusUnprocessableEntity)
			}
			return
		}
		http.SetCookie(w, &http.Cookie{Name: portal.SessionCookie, Value: "rotated-token"})
		fmt.Fprintf(w, `<html><head><title>%s</title><meta name="csrf-token" content="csrf-1"></head>
<body><span class="side-menu-title side-menu-name">%s</span>
<section class="box-typical box-typical-padding" data-activities-id="1">
<div class="col-md-4">09:00 - 10:00</div>
<div class="col-md-4">Lecture</div>
<div class="col-md-4">Dr Jones</div>
<div class="col-md-4">CSE/082</div>
<div class="selfregistration_status"><button class="btn btn-default">Register</button></div>
</section></body></html>`, portal.CheckInPageTitle, email)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(t *testing.T, st *Store, portalURL string) *Runner {
	t.Helper()
	p := portal.NewClient(portalURL)
	return NewRunner(st, session.NewEngine(p, nil, zerolog.Nop()), submit.NewEngine(p, zerolog.Nop()), zerolog.Nop())
}

func TestRefreshSessionPersistsToken(t *testing.T) {
	const email = "student@york.ac.uk"
	st := newTestStore(t, 10)
	require.NoError(t, st.Update(func(r *Record) {
		r.Email = email
		r.Token = "t0"
	}))

	srv := localPortalServer(t, email, "")
	r := newTestRunner(t, st, srv.URL)

	require.NoError(t, r.RefreshSession(context.Background()))

	rec := st.Record()
	assert.Equal(t, "rotated-token", rec.Token)
	require.NotNil(t, rec.LastSessionRefresh)
}

func TestRefreshSessionRequiresCredentials(t *testing.T) {
	st := newTestStore(t, 10)
	r := newTestRunner(t, st, "http://unused.invalid")
	assert.Error(t, r.RefreshSession(context.Background()))
}

// Every code that was untried at the start of a run is retired into tried,
// even ones never attempted. See TryCodes for why.
func TestTryCodesRetiresAllUntried(t *testing.T) {
	const email = "student@york.ac.uk"
	st := newTestStore(t, 10)
	require.NoError(t, st.Update(func(r *Record) {
		r.Email = email
		r.Token = "t0"
		r.AvailableUntriedCodes = []string{"111111", "222222", "333333"}
		r.TriedCodes = []string{"000000"}
	}))

	srv := localPortalServer(t, email, "111111")
	r := newTestRunner(t, st, srv.URL)

	summary, err := r.TryCodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successes)

	rec := st.Record()
	assert.Empty(t, rec.AvailableUntriedCodes)
	assert.ElementsMatch(t, []string{"000000", "111111", "222222", "333333"}, rec.TriedCodes)
	require.NotNil(t, rec.LastCodeAttempt)
	assert.Equal(t, "rotated-token", rec.Token)
}

func TestTryCodesNoopWithoutCodes(t *testing.T) {
	const email = "student@york.ac.uk"
	st := newTestStore(t, 10)
	require.NoError(t, st.Update(func(r *Record) {
		r.Email = email
		r.Token = "t0"
	}))

	// No portal call should happen, so a dead URL must not matter.
	r := newTestRunner(t, st, "http://unused.invalid")
	summary, err := r.TryCodes(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.EventsProcessed)
	assert.Nil(t, st.Record().LastCodeAttempt)
}
