package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocheckin/internal/queue"
)

func TestDispatcherRoutesCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(8)
	checkin := newTestCheckin(t, newTestFileStore(t), "http://unused.invalid", nil)

	attendanceRan := make(chan struct{}, 1)
	usersRan := make(chan struct{}, 1)
	d := NewDispatcher(q, checkin,
		func(context.Context) error { attendanceRan <- struct{}{}; return nil },
		func(context.Context) error { usersRan <- struct{}{}; return nil },
		zerolog.Nop())
	go d.Run(ctx)

	require.NoError(t, q.Publish(ctx, queue.Message{Type: queue.CmdTryCodes}))
	require.NoError(t, q.Publish(ctx, queue.Message{Type: queue.CmdAttendanceSync}))
	require.NoError(t, q.Publish(ctx, queue.Message{Type: queue.CmdFetchUsers}))

	select {
	case <-attendanceRan:
	case <-time.After(2 * time.Second):
		t.Fatal("attendance command not dispatched")
	}
	select {
	case <-usersRan:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch-users command not dispatched")
	}
	assert.Len(t, checkin.forceCh, 1, "try-codes should force the check-in cycle")
}

func TestMonitorRetriesWhileDisconnected(t *testing.T) {
	st := newTestFileStore(t)

	waits := make(chan time.Duration, 4)
	m := NewMonitor(st, probeFunc(false), func(context.Context) error { return nil },
		time.Minute, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	m.sleep = func(ctx context.Context, d time.Duration) error {
		waits <- d
		cancel()
		return ctx.Err()
	}
	m.Run(ctx)

	assert.False(t, st.Connected())
	assert.Equal(t, time.Minute, <-waits, "disconnected monitor uses the retry interval")
}

func TestMonitorFetchesUsersWhileConnected(t *testing.T) {
	st := newTestFileStore(t)

	fetched := false
	m := NewMonitor(st, probeFunc(true), func(context.Context) error { fetched = true; return nil },
		time.Minute, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var wait time.Duration
	m.sleep = func(ctx context.Context, d time.Duration) error {
		wait = d
		cancel()
		return ctx.Err()
	}
	m.Run(ctx)

	assert.True(t, st.Connected())
	assert.True(t, fetched)
	assert.Equal(t, time.Hour, wait, "connected monitor uses the update interval")
}

type probeFunc bool

func (p probeFunc) TestConnection(context.Context) bool { return bool(p) }
