// Package scheduler drives the background tasks: the jittered check-in cycle,
// the hourly attendance tick, the connection monitor, and the command
// dispatcher that lets the API force runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"autocheckin/internal/metrics"
	"autocheckin/internal/session"
	"autocheckin/internal/store"
	"autocheckin/internal/submit"
)

// CodeSource supplies ranked candidate codes for a submission pass.
type CodeSource interface {
	Codes(ctx context.Context) ([]submit.Code, error)
}

// EventLogger forwards operational log lines upstream. Best effort.
type EventLogger interface {
	Log(ctx context.Context, email, logType, message string) error
}

// CheckinConfig is the timing policy for the check-in cycle. All delays are
// drawn uniformly from their [min, max] interval: the randomness is the
// stealth layer that keeps the traffic from looking machine-generated.
type CheckinConfig struct {
	InitialDelay    time.Duration
	RunInitialCycle bool
	MinCycle        time.Duration
	MaxCycle        time.Duration
	MinAccountDelay time.Duration
	MaxAccountDelay time.Duration
}

// Checkin processes every account once per cycle: refresh the session, then
// try candidate codes against the account's open events. It supervises
// itself: an escaped failure restarts the loop, never the process.
type Checkin struct {
	cfg     CheckinConfig
	store   store.Store
	session *session.Engine
	submit  *submit.Engine
	codes   CodeSource
	events  EventLogger
	metrics *metrics.Metrics
	log     zerolog.Logger

	forceCh chan struct{}

	// Injectable for tests; never nil after NewCheckin.
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newTimer func(d time.Duration) <-chan time.Time
	rng      *rand.Rand
}

// NewCheckin wires the cycle. events may be nil.
func NewCheckin(cfg CheckinConfig, st store.Store, se *session.Engine, su *submit.Engine, codes CodeSource, events EventLogger, m *metrics.Metrics, log zerolog.Logger) *Checkin {
	return &Checkin{
		cfg:      cfg,
		store:    st,
		session:  se,
		submit:   su,
		codes:    codes,
		events:   events,
		metrics:  m,
		log:      log,
		forceCh:  make(chan struct{}, 1),
		now:      time.Now,
		sleep:    sleepCtx,
		newTimer: func(d time.Duration) <-chan time.Time { return time.After(d) },
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ForceRun asks the scheduler to start the next cycle immediately. Non-blocking.
func (s *Checkin) ForceRun() {
	select {
	case s.forceCh <- struct{}{}:
	default:
	}
}

// Run executes cycles until ctx is canceled. It never returns under normal
// operation: any failure that escapes a cycle is logged and the loop restarts.
func (s *Checkin) Run(ctx context.Context) {
	if err := s.sleep(ctx, s.cfg.InitialDelay); err != nil {
		return
	}
	immediate := s.cfg.RunInitialCycle
	for {
		err := s.runLoop(ctx, immediate)
		if ctx.Err() != nil {
			return
		}
		immediate = false
		s.metrics.CycleRestarts.Inc()
		s.log.Error().Err(err).Msg("check-in loop failed, restarting")
	}
}

// runLoop is one life of the loop; it returns only when something escapes a
// cycle or ctx is canceled. Panics are converted to errors so the supervisor
// in Run can restart with a bounded stack.
func (s *Checkin) runLoop(ctx context.Context, immediate bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in check-in loop: %v", r)
		}
	}()

	if !immediate {
		if err := s.waitForNextCycle(ctx); err != nil {
			return err
		}
	}
	for {
		if err := s.cycle(ctx); err != nil {
			return err
		}
		if err := s.waitForNextCycle(ctx); err != nil {
			return err
		}
	}
}

// waitForNextCycle draws the next cycle delay, persists the scheduled time
// before sleeping so observers can see when the next run is due, then waits
// for the timer, a forced run, or cancellation.
func (s *Checkin) waitForNextCycle(ctx context.Context) error {
	delay := s.randomBetween(s.cfg.MinCycle, s.cfg.MaxCycle)
	next := s.now().Add(delay)
	if err := s.store.UpdateMeta(func(m *store.Meta) { m.NextCycleRunTime = &next }); err != nil {
		return fmt.Errorf("persist next cycle time: %w", err)
	}
	s.metrics.NextCycleUnixTime.Set(float64(next.Unix()))
	s.log.Info().Time("next_run", next).Dur("delay", delay).Msg("next check-in cycle scheduled")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.forceCh:
		s.log.Info().Msg("check-in cycle forced")
		return nil
	case <-s.newTimer(delay):
		return nil
	}
}

// cycle runs one full pass over the account population. Accounts are
// shuffled each pass and spaced by a random delay. Per-account failures are
// recorded on the account and never abort the pass.
func (s *Checkin) cycle(ctx context.Context) error {
	runID := uuid.NewString()
	log := s.log.With().Str("run_id", runID).Logger()

	accounts, err := s.store.Accounts()
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	s.metrics.AccountsTracked.Set(float64(len(accounts)))
	s.rng.Shuffle(len(accounts), func(i, j int) { accounts[i], accounts[j] = accounts[j], accounts[i] })

	if err := s.store.UpdateMeta(func(m *store.Meta) {
		t := s.now().UTC()
		m.LastAllSessionRefresh = &t
	}); err != nil {
		return fmt.Errorf("persist refresh timestamp: %w", err)
	}
	log.Info().Int("accounts", len(accounts)).Msg("check-in cycle starting")

	for _, acct := range accounts {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.sleep(ctx, s.randomBetween(s.cfg.MinAccountDelay, s.cfg.MaxAccountDelay)); err != nil {
			return nil
		}
		s.processAccount(ctx, log, acct)
	}

	s.metrics.CyclesTotal.Inc()
	log.Info().Msg("check-in cycle complete")
	return nil
}

// processAccount refreshes one account and, on success, runs a submission
// pass over its open events. All failures stop here as a Fail status on the
// account record.
func (s *Checkin) processAccount(ctx context.Context, log zerolog.Logger, acct store.Account) {
	log = log.With().Str("email", acct.Email).Logger()
	if acct.Email == "" || acct.SessionToken == "" {
		log.Debug().Msg("skipping account with missing email or token")
		return
	}

	res, err := s.session.Refresh(ctx, acct.Email, acct.SessionToken, true)
	now := s.now().UTC()
	if err != nil {
		s.metrics.RefreshTotal.WithLabelValues(refreshLabel(err)).Inc()
		log.Warn().Err(err).Msg("session refresh failed")
		s.recordFailure(log, acct.Email, now)
		return
	}
	s.metrics.RefreshTotal.WithLabelValues("ok").Inc()

	if err := s.store.UpdateAccount(acct.Email, func(a *store.Account) error {
		a.SessionToken = res.Token
		a.ReportStatus = store.ReportNormal
		a.ReportTimestamp = &now
		return nil
	}); err != nil {
		log.Error().Err(err).Msg("persist refreshed token failed")
		return
	}

	if len(res.Events) == 0 {
		log.Debug().Msg("no open events")
		return
	}

	codes, err := s.codes.Codes(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("code fetch failed, skipping submission")
		return
	}
	if len(codes) == 0 {
		log.Debug().Msg("no candidate codes available")
		return
	}

	summary := s.submit.Submit(ctx, res.Token, res.CSRFToken, res.Events, submit.Rank(codes))
	s.metrics.SubmitAttempts.Add(float64(summary.CodesAttempted))
	s.metrics.SubmitSuccesses.Add(float64(summary.Successes))
	log.Info().
		Int("events", summary.EventsProcessed).
		Int("successes", summary.Successes).
		Int("attempts", summary.CodesAttempted).
		Msg("submission pass complete")

	if s.events != nil {
		for _, ci := range summary.CheckIns {
			msg := fmt.Sprintf("Checked into %s with code %s", ci.EventName, ci.Code)
			if err := s.events.Log(ctx, acct.Email, "Checkin", msg); err != nil {
				log.Warn().Err(err).Msg("upstream log failed")
			}
		}
	}
}

func (s *Checkin) recordFailure(log zerolog.Logger, email string, at time.Time) {
	err := s.store.UpdateAccount(email, func(a *store.Account) error {
		a.ReportStatus = store.ReportFail
		a.ReportTimestamp = &at
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
		log.Error().Err(err).Msg("persist failure status failed")
	}
}

func (s *Checkin) randomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)))
}

func refreshLabel(err error) string {
	switch {
	case errors.Is(err, session.ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, session.ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, session.ErrNoNewToken):
		return "no_new_token"
	case errors.Is(err, session.ErrUnexpectedPage):
		return "unexpected_page"
	case errors.Is(err, session.ErrCSRFMissing):
		return "csrf_missing"
	default:
		return "transport"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
