package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"autocheckin/internal/checkout"
	"autocheckin/internal/store"
)

// ConnectionProbe checks upstream reachability.
type ConnectionProbe interface {
	TestConnection(ctx context.Context) bool
}

// Monitor keeps the connected flag honest and the account population fresh:
// hourly re-fetch while connected, minutely retry while not.
type Monitor struct {
	store      store.Store
	probe      ConnectionProbe
	fetchUsers func(ctx context.Context) error
	retry      time.Duration
	update     time.Duration
	log        zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewMonitor creates the connection monitor.
func NewMonitor(st store.Store, probe ConnectionProbe, fetchUsers func(ctx context.Context) error, retry, update time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		store:      st,
		probe:      probe,
		fetchUsers: fetchUsers,
		retry:      retry,
		update:     update,
		log:        log,
		sleep:      sleepCtx,
	}
}

// Run loops until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	for ctx.Err() == nil {
		ok := m.probe.TestConnection(ctx)
		if err := m.store.SetConnected(ok); err != nil {
			m.log.Error().Err(err).Msg("persist connection status failed")
		}

		wait := m.retry
		if ok {
			if err := m.fetchUsers(ctx); err != nil {
				m.log.Warn().Err(err).Msg("user fetch failed")
				_ = m.store.SetConnected(false)
			} else {
				wait = m.update
			}
		} else {
			m.log.Warn().Msg("checkout api unreachable")
		}

		if err := m.sleep(ctx, wait); err != nil {
			return
		}
	}
}

// FetchUsers pulls the account list from the CheckOut API and reconciles the
// store against it.
func FetchUsers(ctx context.Context, client *checkout.Client, st store.Store) error {
	users, err := client.Users(ctx)
	if err != nil {
		return err
	}
	accounts := make([]store.Account, 0, len(users))
	for _, u := range users {
		accounts = append(accounts, store.Account{Email: u.Email, SessionToken: u.CheckinToken})
	}
	if err := st.SyncAccounts(accounts); err != nil {
		return err
	}
	return st.UpdateMeta(func(m *store.Meta) {
		t := time.Now().UTC()
		m.LastUsersFetch = &t
	})
}
