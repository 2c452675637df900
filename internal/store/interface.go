package store

import "errors"

// ErrAccountNotFound is returned when an email has no account record.
var ErrAccountNotFound = errors.New("account not found")

// Store persists accounts and run metadata. Mutations are keyed per account:
// concurrent updates to different accounts must both survive, which rules out
// whole-document read-modify-write implementations.
type Store interface {
	// Accounts returns all account records in unspecified order.
	Accounts() ([]Account, error)

	// Account returns one record by email.
	Account(email string) (Account, bool, error)

	// SyncAccounts reconciles the stored population against the upstream
	// list: upstream membership wins, locally rotated tokens and sync data
	// are preserved for accounts that already exist.
	SyncAccounts(upstream []Account) error

	// UpdateAccount applies fn to exactly one account record and persists
	// the result. Returns ErrAccountNotFound for unknown emails.
	UpdateAccount(email string, fn func(*Account) error) error

	// Meta returns the current run metadata.
	Meta() (Meta, error)

	// UpdateMeta applies fn to the run metadata and persists the result.
	UpdateMeta(fn func(*Meta)) error

	// Connected reports the liveness flag; false when state is missing.
	Connected() bool

	// SetConnected persists the liveness flag.
	SetConnected(connected bool) error

	// Snapshot returns a copy of the full document for read endpoints.
	Snapshot() (Document, error)

	Close() error
}
