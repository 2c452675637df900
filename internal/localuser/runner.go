package localuser

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"autocheckin/internal/session"
	"autocheckin/internal/submit"
)

// Runner drives the single account through the same refresh and submission
// engines the multi-account scheduler uses, persisting results into the
// local record instead of the shared state store.
type Runner struct {
	store   *Store
	session *session.Engine
	submit  *submit.Engine
	now     func() time.Time
	log     zerolog.Logger
}

// NewRunner creates a runner over the given engines.
func NewRunner(st *Store, se *session.Engine, su *submit.Engine, log zerolog.Logger) *Runner {
	return &Runner{store: st, session: se, submit: su, now: time.Now, log: log}
}

// RefreshSession rotates the session token and persists it.
func (r *Runner) RefreshSession(ctx context.Context) error {
	rec := r.store.Record()
	if rec.Email == "" || rec.Token == "" {
		return fmt.Errorf("local record has no email or token")
	}

	res, err := r.session.Refresh(ctx, rec.Email, rec.Token, false)
	if err != nil {
		r.store.AppendLog("Session refresh failed: "+err.Error(), LogError)
		return err
	}

	if err := r.store.Update(func(rec *Record) {
		rec.Token = res.Token
		t := r.now().UTC()
		rec.LastSessionRefresh = &t
	}); err != nil {
		return err
	}
	r.store.AppendLog("Session refreshed successfully", LogSuccess)
	return nil
}

// TryCodes refreshes the session, submits every untried code against the open
// events, and retires the whole untried set into tried. Retirement happens
// even for codes never reached because an earlier code already succeeded:
// without it a stale code would be retried every cycle forever.
func (r *Runner) TryCodes(ctx context.Context) (submit.Summary, error) {
	rec := r.store.Record()
	if rec.Email == "" || rec.Token == "" {
		return submit.Summary{}, fmt.Errorf("local record has no email or token")
	}
	if len(rec.AvailableUntriedCodes) == 0 {
		r.log.Debug().Msg("no untried codes, skipping submission run")
		return submit.Summary{}, nil
	}

	res, err := r.session.Refresh(ctx, rec.Email, rec.Token, true)
	if err != nil {
		r.store.AppendLog("Code submission aborted, session refresh failed: "+err.Error(), LogError)
		return submit.Summary{}, err
	}
	if err := r.store.Update(func(rec *Record) {
		rec.Token = res.Token
		t := r.now().UTC()
		rec.LastSessionRefresh = &t
	}); err != nil {
		return submit.Summary{}, err
	}

	codes := make([]submit.Code, 0, len(rec.AvailableUntriedCodes))
	for _, c := range rec.AvailableUntriedCodes {
		codes = append(codes, submit.Code{Value: c})
	}
	summary := r.submit.Submit(ctx, res.Token, res.CSRFToken, res.Events, submit.Rank(codes))

	retired := rec.AvailableUntriedCodes
	if err := r.store.Update(func(rec *Record) {
		for _, c := range retired {
			if !containsCode(rec.TriedCodes, c) {
				rec.TriedCodes = append(rec.TriedCodes, c)
			}
		}
		rec.AvailableUntriedCodes = []string{}
		t := r.now().UTC()
		rec.LastCodeAttempt = &t
	}); err != nil {
		return summary, err
	}

	for _, ci := range summary.CheckIns {
		r.store.AppendLog(fmt.Sprintf("Checked in to %s with code %s", ci.EventName, ci.Code), LogSuccess)
	}
	for _, name := range summary.FailedEvents {
		r.store.AppendLog("No code accepted for "+name, LogWarning)
	}
	r.store.AppendLog(fmt.Sprintf("Submission run finished: %d events, %d successes, %d attempts",
		summary.EventsProcessed, summary.Successes, summary.CodesAttempted), LogInfo)
	return summary, nil
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
