package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileStore keeps the document in memory and mirrors every mutation to a JSON
// file via a temp-file rename, so readers never observe a partial write. One
// mutex guards the in-memory document, but mutations are applied per account,
// so concurrent updaters of different accounts cannot overwrite each other.
type FileStore struct {
	mu   sync.Mutex
	doc  Document
	path string
	log  zerolog.Logger
}

// NewFileStore loads the document at path, creating a default one when the
// file is absent or unreadable.
func NewFileStore(path string, log zerolog.Logger) (*FileStore, error) {
	s := &FileStore{path: path, log: log}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.doc = DefaultDocument()
		if err := s.saveLocked(); err != nil {
			return nil, fmt.Errorf("create state file: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("read state file: %w", err)
	default:
		if jsonErr := json.Unmarshal(raw, &s.doc); jsonErr != nil {
			// A corrupt state file should not kill startup; start fresh
			// and keep the broken file out of the way.
			log.Error().Err(jsonErr).Str("path", path).Msg("state file corrupt, starting with default document")
			s.doc = DefaultDocument()
		}
	}
	s.doc.normalize()
	return s, nil
}

func (s *FileStore) Accounts() ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, 0, len(s.doc.Accounts))
	for _, acct := range s.doc.Accounts {
		out = append(out, acct)
	}
	return out, nil
}

func (s *FileStore) Account(email string) (Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.doc.Accounts[email]
	return acct, ok, nil
}

func (s *FileStore) SyncAccounts(upstream []Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]Account, len(upstream))
	for _, up := range upstream {
		if up.Email == "" {
			continue
		}
		if existing, ok := s.doc.Accounts[up.Email]; ok {
			// The locally rotated token is the authoritative one; upstream
			// only learns about rotations after the fact.
			if existing.SessionToken != "" {
				up.SessionToken = existing.SessionToken
			}
			up.ReportStatus = existing.ReportStatus
			up.ReportTimestamp = existing.ReportTimestamp
			up.SyncData = existing.SyncData
		}
		if up.SyncData == nil {
			up.SyncData = SyncData{}
		}
		next[up.Email] = up
	}
	s.doc.Accounts = next
	return s.saveLocked()
}

func (s *FileStore) UpdateAccount(email string, fn func(*Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.doc.Accounts[email]
	if !ok {
		return ErrAccountNotFound
	}
	if err := fn(&acct); err != nil {
		return err
	}
	acct.Email = email
	s.doc.Accounts[email] = acct
	return s.saveLocked()
}

func (s *FileStore) Meta() (Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Meta, nil
}

func (s *FileStore) UpdateMeta(fn func(*Meta)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.doc.Meta)
	return s.saveLocked()
}

func (s *FileStore) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Meta.Connected
}

func (s *FileStore) SetConnected(connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Meta.Connected == connected {
		return nil
	}
	s.doc.Meta.Connected = connected
	s.log.Debug().Bool("connected", connected).Msg("connection status changed")
	return s.saveLocked()
}

func (s *FileStore) Snapshot() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := Document{Meta: s.doc.Meta, Accounts: make(map[string]Account, len(s.doc.Accounts))}
	for email, acct := range s.doc.Accounts {
		copied.Accounts[email] = acct
	}
	return copied, nil
}

func (s *FileStore) Close() error { return nil }

// saveLocked writes the document atomically. Callers must hold mu.
func (s *FileStore) saveLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	raw, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
