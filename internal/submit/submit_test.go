package submit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocheckin/internal/portal"
)

// submitServer accepts one specific code and rejects everything else with 422.
func submitServer(t *testing.T, acceptCode string, calls *atomic.Int64) *portal.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		if r.PostFormValue("code") == acceptCode {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)
	return portal.NewClient(srv.URL)
}

func TestSubmitTriesCodesInRankOrder(t *testing.T) {
	var calls atomic.Int64
	e := NewEngine(submitServer(t, "222222", &calls), zerolog.Nop())

	events := []portal.Event{{ID: "1", ActivityName: "Lecture", Status: portal.StatusNotPresent}}
	codes := Rank([]Code{{Value: "111111", Reputation: 5}, {Value: "222222", Reputation: 2}})

	summary := e.Submit(context.Background(), "tok", "csrf", events, codes)

	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, 1, summary.EventsProcessed)
	assert.Equal(t, 1, summary.Successes)
	assert.Equal(t, 2, summary.CodesAttempted)
	assert.Equal(t, 2, summary.UniqueCodesAttempted)
	require.Len(t, summary.CheckIns, 1)
	assert.Equal(t, "1", summary.CheckIns[0].EventID)
	assert.Equal(t, "222222", summary.CheckIns[0].Code)
	assert.Empty(t, summary.FailedEvents)
}

func TestSubmitSkipsCheckedInEvents(t *testing.T) {
	var calls atomic.Int64
	e := NewEngine(submitServer(t, "222222", &calls), zerolog.Nop())

	events := []portal.Event{
		{ID: "1", ActivityName: "Lecture", Status: portal.StatusPresent},
		{ID: "2", ActivityName: "Practical", Status: portal.StatusPresentLate},
	}
	summary := e.Submit(context.Background(), "tok", "csrf", events, []Code{{Value: "111111"}})

	assert.Equal(t, int64(0), calls.Load())
	assert.Equal(t, 2, summary.EventsProcessed)
	assert.Equal(t, 0, summary.CodesAttempted)
	assert.Empty(t, summary.FailedEvents)
}

func TestSubmitRecordsFailedEvents(t *testing.T) {
	var calls atomic.Int64
	e := NewEngine(submitServer(t, "never-matches", &calls), zerolog.Nop())

	events := []portal.Event{{ID: "1", ActivityName: "Lecture", Status: portal.StatusNotPresent}}
	summary := e.Submit(context.Background(), "tok", "csrf", events, []Code{{Value: "111111"}, {Value: "222222"}})

	assert.Equal(t, 0, summary.Successes)
	assert.Equal(t, []string{"Lecture"}, summary.FailedEvents)
}

func TestSubmitDoesNotReuseSuccessfulCode(t *testing.T) {
	var calls atomic.Int64
	e := NewEngine(submitServer(t, "111111", &calls), zerolog.Nop())

	events := []portal.Event{
		{ID: "1", ActivityName: "Lecture", Status: portal.StatusNotPresent},
		{ID: "2", ActivityName: "Practical", Status: portal.StatusNotPresent},
	}
	summary := e.Submit(context.Background(), "tok", "csrf", events, []Code{{Value: "111111"}})

	// The code that checked in event 1 is spent; event 2 has nothing left to try.
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, 1, summary.Successes)
	assert.Equal(t, []string{"Practical"}, summary.FailedEvents)
}

func TestRankIsStableDescending(t *testing.T) {
	codes := []Code{
		{Value: "aaa", Reputation: 1},
		{Value: "bbb", Reputation: 3},
		{Value: "ccc", Reputation: 3},
		{Value: "ddd", Reputation: 0},
	}
	ranked := Rank(codes)

	assert.Equal(t, []Code{
		{Value: "bbb", Reputation: 3},
		{Value: "ccc", Reputation: 3},
		{Value: "aaa", Reputation: 1},
		{Value: "ddd", Reputation: 0},
	}, ranked)
	// The input order is untouched.
	assert.Equal(t, "aaa", codes[0].Value)
}
