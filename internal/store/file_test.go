package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	return s, path
}

func TestMissingFileStartsDisconnected(t *testing.T) {
	s, path := newTestStore(t)

	assert.False(t, s.Connected())
	meta, err := s.Meta()
	require.NoError(t, err)
	assert.Nil(t, meta.NextCycleRunTime)

	// A default document was written out.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	accounts, err := s.Accounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	s, path := newTestStore(t)

	require.NoError(t, s.SyncAccounts([]Account{{Email: "a@york.ac.uk", SessionToken: "t1"}}))
	require.NoError(t, s.SetConnected(true))

	reopened, err := NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, reopened.Connected())
	acct, ok, err := reopened.Account("a@york.ac.uk")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", acct.SessionToken)
}

func TestSyncAccountsPreservesLocalState(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.SyncAccounts([]Account{{Email: "a@york.ac.uk", SessionToken: "upstream-1"}}))
	now := time.Now().UTC()
	require.NoError(t, s.UpdateAccount("a@york.ac.uk", func(a *Account) error {
		a.SessionToken = "rotated"
		a.ReportStatus = ReportFail
		a.ReportTimestamp = &now
		return nil
	}))

	// Upstream re-reports the stale token and adds a new account.
	require.NoError(t, s.SyncAccounts([]Account{
		{Email: "a@york.ac.uk", SessionToken: "upstream-1"},
		{Email: "b@york.ac.uk", SessionToken: "fresh"},
	}))

	a, ok, err := s.Account("a@york.ac.uk")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "rotated", a.SessionToken, "locally rotated token is authoritative")
	assert.Equal(t, ReportFail, a.ReportStatus)

	b, ok, err := s.Account("b@york.ac.uk")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", b.SessionToken)
}

func TestSyncAccountsDropsRemovedAccounts(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.SyncAccounts([]Account{
		{Email: "a@york.ac.uk", SessionToken: "t1"},
		{Email: "b@york.ac.uk", SessionToken: "t2"},
	}))
	require.NoError(t, s.SyncAccounts([]Account{{Email: "b@york.ac.uk", SessionToken: "t2"}}))

	_, ok, err := s.Account("a@york.ac.uk")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateAccountUnknown(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.UpdateAccount("nobody@york.ac.uk", func(a *Account) error { return nil })
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

// Concurrent updates to disjoint accounts must both survive; a
// whole-document read-modify-write would lose one of them.
func TestConcurrentDisjointUpdatesBothSurvive(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.SyncAccounts([]Account{
		{Email: "a@york.ac.uk", SessionToken: "t0"},
		{Email: "b@york.ac.uk", SessionToken: "t0"},
	}))

	const rounds = 50
	var wg sync.WaitGroup
	for _, email := range []string{"a@york.ac.uk", "b@york.ac.uk"} {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				err := s.UpdateAccount(email, func(a *Account) error {
					a.SessionToken = email + "-final"
					return nil
				})
				assert.NoError(t, err)
			}
		}(email)
	}
	wg.Wait()

	a, _, err := s.Account("a@york.ac.uk")
	require.NoError(t, err)
	b, _, err := s.Account("b@york.ac.uk")
	require.NoError(t, err)
	assert.Equal(t, "a@york.ac.uk-final", a.SessionToken)
	assert.Equal(t, "b@york.ac.uk-final", b.SessionToken)
}

func TestSnapshotIsACopy(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.SyncAccounts([]Account{{Email: "a@york.ac.uk", SessionToken: "t1"}}))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	snapAcct := snap.Accounts["a@york.ac.uk"]
	snapAcct.SessionToken = "mutated"
	snap.Accounts["a@york.ac.uk"] = snapAcct

	acct, _, err := s.Account("a@york.ac.uk")
	require.NoError(t, err)
	assert.Equal(t, "t1", acct.SessionToken)
}
