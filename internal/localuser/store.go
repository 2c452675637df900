package localuser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store persists the single Record the same way the multi-account state store
// does: in-memory copy guarded by a mutex, mirrored to disk via a temp-file
// rename on every mutation.
type Store struct {
	mu      sync.Mutex
	rec     Record
	path    string
	maxLogs int
	now     func() time.Time
	log     zerolog.Logger
}

// Open loads the record at path. A missing file yields an empty record that
// still needs email and token filled in before the runner can do anything.
func Open(path string, maxLogs int, log zerolog.Logger) (*Store, error) {
	if maxLogs <= 0 {
		maxLogs = 50
	}
	s := &Store{path: path, maxLogs: maxLogs, now: time.Now, log: log}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("path", path).Msg("local user file absent, starting with empty record")
		if err := s.saveLocked(); err != nil {
			return nil, fmt.Errorf("create local user file: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("read local user file: %w", err)
	default:
		if jsonErr := json.Unmarshal(raw, &s.rec); jsonErr != nil {
			return nil, fmt.Errorf("parse local user file: %w", jsonErr)
		}
	}
	s.rec.normalize()
	return s, nil
}

// Record returns a copy of the current record.
func (s *Store) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.rec
	rec.AvailableUntriedCodes = append([]string(nil), s.rec.AvailableUntriedCodes...)
	rec.TriedCodes = append([]string(nil), s.rec.TriedCodes...)
	rec.Logs = append([]LogEntry(nil), s.rec.Logs...)
	rec.normalize()
	return rec
}

// Update applies fn to the record and persists the result.
func (s *Store) Update(fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.rec)
	s.rec.normalize()
	return s.saveLocked()
}

// AppendLog adds one log entry, dropping the oldest entries beyond the
// configured capacity. Persistence failures are logged, not returned: the log
// ring is informational and must never fail the operation being logged.
func (s *Store) AppendLog(message, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec.Logs = append(s.rec.Logs, LogEntry{Timestamp: s.now().UTC(), Message: message, Status: status})
	if excess := len(s.rec.Logs) - s.maxLogs; excess > 0 {
		s.rec.Logs = s.rec.Logs[excess:]
	}
	if err := s.saveLocked(); err != nil {
		s.log.Warn().Err(err).Msg("log entry not persisted")
	}
}

// saveLocked writes the record atomically. Callers must hold mu.
func (s *Store) saveLocked() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	raw, err := json.MarshalIndent(s.rec, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
