// Package localuser implements the single-account variant: one file-backed
// record with its own code bookkeeping and a bounded activity log, driven by
// a small refresh+submit runner and a background code fetcher.
package localuser

import "time"

// Log entry statuses.
const (
	LogInfo    = "info"
	LogSuccess = "success"
	LogWarning = "warning"
	LogError   = "error"
)

// LogEntry is one line in the record's activity log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
}

// Record is the persisted state for the single account. Untried and tried
// codes are disjoint sets: a code is fetched into untried, and every untried
// code is retired into tried after a submission run regardless of outcome.
type Record struct {
	Email                 string     `json:"email"`
	Token                 string     `json:"token"`
	CodesURL              string     `json:"codesUrl"`
	CodesURLSuffix        string     `json:"codesUrlSuffix"`
	LastSessionRefresh    *time.Time `json:"lastSessionRefresh"`
	LastCodeAttempt       *time.Time `json:"lastCodeAttempt"`
	AvailableUntriedCodes []string   `json:"availableUntriedCodes"`
	TriedCodes            []string   `json:"triedCodes"`
	Logs                  []LogEntry `json:"logs"`
}

func (r *Record) normalize() {
	if r.AvailableUntriedCodes == nil {
		r.AvailableUntriedCodes = []string{}
	}
	if r.TriedCodes == nil {
		r.TriedCodes = []string{}
	}
	if r.Logs == nil {
		r.Logs = []LogEntry{}
	}
}

// KnownCodes returns the union of untried and tried codes as a set.
func (r *Record) KnownCodes() map[string]bool {
	known := make(map[string]bool, len(r.AvailableUntriedCodes)+len(r.TriedCodes))
	for _, c := range r.AvailableUntriedCodes {
		known[c] = true
	}
	for _, c := range r.TriedCodes {
		known[c] = true
	}
	return known
}
