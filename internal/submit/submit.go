// Package submit tries ranked candidate codes against open events.
package submit

import (
	"context"
	"net/http"
	"sort"

	"github.com/rs/zerolog"

	"autocheckin/internal/portal"
)

// Code is a candidate code with its reputation (historical successful uses).
type Code struct {
	Value      string
	Reputation int
}

// Rank sorts codes by descending reputation. The sort is stable: codes with
// equal reputation keep their original relative order, so a caller-supplied
// ordering acts as the tiebreak.
func Rank(codes []Code) []Code {
	ranked := make([]Code, len(codes))
	copy(ranked, codes)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Reputation > ranked[j].Reputation })
	return ranked
}

// CheckIn records one successful submission.
type CheckIn struct {
	EventID   string `json:"eventId"`
	EventName string `json:"eventName"`
	Code      string `json:"code"`
}

// Summary reports one submission run.
type Summary struct {
	EventsProcessed      int       `json:"eventsProcessed"`
	Successes            int       `json:"successes"`
	CodesAttempted       int       `json:"codesAttempted"`
	UniqueCodesAttempted int       `json:"uniqueCodesAttempted"`
	FailedEvents         []string  `json:"failedEventNames,omitempty"`
	CheckIns             []CheckIn `json:"checkIns,omitempty"`
}

// Engine submits codes through the portal.
type Engine struct {
	portal *portal.Client
	log    zerolog.Logger
}

// NewEngine creates a submission engine.
func NewEngine(p *portal.Client, log zerolog.Logger) *Engine {
	return &Engine{portal: p, log: log}
}

// Submit tries the ranked codes against each event still pending check-in.
// Events already Present or Present Late are skipped without any portal call.
// Per event, codes are tried in rank order until one is accepted (HTTP 200);
// a 422 moves on to the next code, and any other outcome is logged as an
// attempt error but handled the same way. Running out of codes records the
// event as failed and the run continues.
func (e *Engine) Submit(ctx context.Context, sessionToken, csrfToken string, events []portal.Event, rankedCodes []Code) Summary {
	var summary Summary
	attempted := map[string]bool{}
	usedThisRun := map[string]bool{}

	for _, evt := range events {
		if evt.ID == "" {
			continue
		}
		summary.EventsProcessed++

		if evt.Status.CheckedIn() {
			e.log.Debug().Str("event", evt.ActivityName).Msg("already checked in, skipping")
			continue
		}

		checkedIn := false
		for _, code := range rankedCodes {
			if usedThisRun[code.Value] {
				continue
			}
			summary.CodesAttempted++
			attempted[code.Value] = true

			status, err := e.portal.SubmitCode(ctx, evt.ID, code.Value, sessionToken, csrfToken)
			switch {
			case err != nil:
				e.log.Warn().Err(err).Str("event", evt.ActivityName).Msg("submission attempt failed")
			case status == http.StatusOK:
				e.log.Info().Str("event", evt.ActivityName).Str("code", code.Value).Msg("checked in")
				summary.Successes++
				summary.CheckIns = append(summary.CheckIns, CheckIn{EventID: evt.ID, EventName: evt.ActivityName, Code: code.Value})
				usedThisRun[code.Value] = true
				checkedIn = true
			case status == http.StatusUnprocessableEntity:
				e.log.Debug().Str("event", evt.ActivityName).Str("code", code.Value).Msg("code rejected")
			case status == http.StatusUnauthorized || status == http.StatusForbidden:
				e.log.Warn().Int("status", status).Str("event", evt.ActivityName).Msg("authorization error during submission")
			default:
				e.log.Warn().Int("status", status).Str("event", evt.ActivityName).Msg("unexpected submission status")
			}
			if checkedIn {
				break
			}
		}

		if !checkedIn {
			summary.FailedEvents = append(summary.FailedEvents, evt.ActivityName)
		}
	}

	summary.UniqueCodesAttempted = len(attempted)
	return summary
}
