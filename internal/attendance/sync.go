// Package attendance harvests weekly attendance history into each account's
// sync data and forwards merged snapshots upstream.
package attendance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"autocheckin/internal/portal"
	"autocheckin/internal/store"
)

// SyncUploader receives merged attendance snapshots. Best effort; a failed
// upload never rolls back the local merge.
type SyncUploader interface {
	UpdateSync(ctx context.Context, email string, syncData any) error
}

// Sync fetches and merges attendance history for all accounts.
type Sync struct {
	store    store.Store
	portal   *portal.Client
	uploader SyncUploader
	log      zerolog.Logger

	now func() time.Time
}

// NewSync creates the sync task. uploader may be nil.
func NewSync(st store.Store, p *portal.Client, uploader SyncUploader, log zerolog.Logger) *Sync {
	return &Sync{store: st, portal: p, uploader: uploader, log: log, now: time.Now}
}

// ShouldRun gates the batch to at most once per 24 hours.
func (s *Sync) ShouldRun() bool {
	meta, err := s.store.Meta()
	if err != nil || meta.LastAttendanceFetchRun == nil {
		return true
	}
	return s.now().Sub(*meta.LastAttendanceFetchRun) > 24*time.Hour
}

// RunAll fetches the current week's attendance for every account. force skips
// the 24 hour gate. A fetch or parse failure for one account is logged and
// that account's record is left unmodified; the batch continues.
func (s *Sync) RunAll(ctx context.Context, force bool) error {
	if !force && !s.ShouldRun() {
		s.log.Debug().Msg("attendance fetch skipped, last run under 24h ago")
		return nil
	}

	accounts, err := s.store.Accounts()
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	now := s.now()
	year, week := now.ISOWeek()
	s.log.Info().Int("accounts", len(accounts)).Int("year", year).Int("week", week).Msg("attendance fetch starting")

	for _, acct := range accounts {
		if acct.Email == "" || acct.SessionToken == "" {
			continue
		}
		if err := s.RunAccount(ctx, acct.Email, year, week); err != nil {
			s.log.Warn().Err(err).Str("email", acct.Email).Msg("attendance fetch failed for account")
		}
	}

	return s.store.UpdateMeta(func(m *store.Meta) {
		t := s.now().UTC()
		m.LastAttendanceFetchRun = &t
	})
}

// RunAccount fetches one account's attendance for a specific year/week,
// merges it into the account record, and uploads the merged snapshot.
func (s *Sync) RunAccount(ctx context.Context, email string, year, week int) error {
	acct, ok, err := s.store.Account(email)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrAccountNotFound
	}

	body, err := s.portal.FetchAttendance(ctx, acct.SessionToken, year, week)
	if err != nil {
		return err
	}
	page, err := portal.ParseAttendance(body, year)
	if err != nil {
		return err
	}
	if page.IsLogin() {
		return fmt.Errorf("session expired for %s", email)
	}
	if page.AccountName != email {
		return fmt.Errorf("account mismatch on attendance page for %s", email)
	}

	var merged store.SyncData
	err = s.store.UpdateAccount(email, func(a *store.Account) error {
		if a.SyncData == nil {
			a.SyncData = store.SyncData{}
		}
		yearKey, weekKey := strconv.Itoa(year), strconv.Itoa(week)
		if a.SyncData[yearKey] == nil {
			a.SyncData[yearKey] = map[string][]portal.Activity{}
		}
		a.SyncData[yearKey][weekKey] = page.Activities
		merged = a.SyncData
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Debug().Str("email", email).Int("activities", len(page.Activities)).Msg("attendance merged")

	if s.uploader != nil {
		if err := s.uploader.UpdateSync(ctx, email, merged); err != nil {
			s.log.Warn().Err(err).Str("email", email).Msg("attendance upload failed")
		}
	}
	return nil
}
