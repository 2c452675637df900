package store

import (
	"time"

	"autocheckin/internal/portal"
)

// ReportStatus records the outcome of the last session refresh for an account.
type ReportStatus string

const (
	ReportNormal ReportStatus = "Normal"
	ReportFail   ReportStatus = "Fail"
)

// SyncData maps year -> ISO week -> attendance activities for that week.
type SyncData map[string]map[string][]portal.Activity

// Account is one registered account. Email is the unique key; SessionToken is
// the opaque portal credential and rotates on every successful refresh.
type Account struct {
	Email           string       `json:"email"`
	SessionToken    string       `json:"sessionToken"`
	ReportStatus    ReportStatus `json:"reportStatus,omitempty"`
	ReportTimestamp *time.Time   `json:"reportTimestamp,omitempty"`
	SyncData        SyncData     `json:"syncData,omitempty"`
}

// Meta is the run metadata owned by the schedulers and the connection monitor.
type Meta struct {
	Connected                    bool       `json:"connected"`
	LastUsersFetch               *time.Time `json:"lastUsersFetch,omitempty"`
	LastAllSessionRefresh        *time.Time `json:"lastAllSessionRefresh,omitempty"`
	LastIndividualSessionRefresh *time.Time `json:"lastIndividualSessionRefresh,omitempty"`
	NextCycleRunTime             *time.Time `json:"nextCycleRunTime,omitempty"`
	LastAttendanceFetchRun       *time.Time `json:"lastAttendanceFetchRun,omitempty"`
}

// Document is the full persisted state, used by the file backend and by the
// read-only state endpoint.
type Document struct {
	Meta     Meta               `json:"meta"`
	Accounts map[string]Account `json:"accounts"`
}

// DefaultDocument is the state created on first access.
func DefaultDocument() Document {
	return Document{Accounts: map[string]Account{}}
}

// normalize fills in anything a hand-edited or older state file may omit, so
// the rest of the code never sees nil maps or accounts missing their key.
func (d *Document) normalize() {
	if d.Accounts == nil {
		d.Accounts = map[string]Account{}
	}
	for email, acct := range d.Accounts {
		if acct.Email == "" {
			acct.Email = email
		}
		if acct.SyncData == nil {
			acct.SyncData = SyncData{}
		}
		d.Accounts[email] = acct
	}
}
