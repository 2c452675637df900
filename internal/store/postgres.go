package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// PostgresStore persists the same document shape as FileStore but keyed per
// account row, for deployments where several processes share state. Account
// mutations run in a transaction with a row lock.
type PostgresStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPostgresStore connects with sane pool defaults and ensures the schema.
func NewPostgresStore(connString string, log zerolog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres not reachable: %w", err)
	}

	s := &PostgresStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			email            TEXT PRIMARY KEY,
			session_token    TEXT NOT NULL DEFAULT '',
			report_status    TEXT NOT NULL DEFAULT '',
			report_timestamp TIMESTAMPTZ,
			sync_data        JSONB NOT NULL DEFAULT '{}'::jsonb
		);
		CREATE TABLE IF NOT EXISTS run_meta (
			id   INT PRIMARY KEY CHECK (id = 1),
			data JSONB NOT NULL DEFAULT '{}'::jsonb
		);
		INSERT INTO run_meta (id, data) VALUES (1, '{}'::jsonb)
		ON CONFLICT (id) DO NOTHING;
	`)
	return err
}

func (s *PostgresStore) Accounts() ([]Account, error) {
	rows, err := s.db.Query(`SELECT email, session_token, report_status, report_timestamp, sync_data FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		acct, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Account(email string) (Account, bool, error) {
	row := s.db.QueryRow(`SELECT email, session_token, report_status, report_timestamp, sync_data FROM accounts WHERE email = $1`, email)
	acct, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, err
	}
	return acct, true, nil
}

func (s *PostgresStore) SyncAccounts(upstream []Account) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	keep := make([]string, 0, len(upstream))
	for _, up := range upstream {
		if up.Email == "" {
			continue
		}
		keep = append(keep, up.Email)
		// Insert new accounts with the upstream token; existing rows keep
		// their locally rotated token and sync data.
		if _, err := tx.Exec(`
			INSERT INTO accounts (email, session_token)
			VALUES ($1, $2)
			ON CONFLICT (email) DO UPDATE SET
				session_token = CASE WHEN accounts.session_token = '' THEN EXCLUDED.session_token ELSE accounts.session_token END
		`, up.Email, up.SessionToken); err != nil {
			return err
		}
	}
	keepJSON, _ := json.Marshal(keep)
	if _, err := tx.Exec(`DELETE FROM accounts WHERE NOT (email = ANY(SELECT jsonb_array_elements_text($1::jsonb)))`, string(keepJSON)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateAccount(email string, fn func(*Account) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT email, session_token, report_status, report_timestamp, sync_data FROM accounts WHERE email = $1 FOR UPDATE`, email)
	acct, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	if err := fn(&acct); err != nil {
		return err
	}

	syncRaw, err := json.Marshal(acct.SyncData)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`
		UPDATE accounts SET session_token = $2, report_status = $3, report_timestamp = $4, sync_data = $5
		WHERE email = $1
	`, email, acct.SessionToken, string(acct.ReportStatus), acct.ReportTimestamp, string(syncRaw)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Meta() (Meta, error) {
	var raw []byte
	if err := s.db.QueryRow(`SELECT data FROM run_meta WHERE id = 1`).Scan(&raw); err != nil {
		return Meta{}, err
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

func (s *PostgresStore) UpdateMeta(fn func(*Meta)) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw []byte
	if err := tx.QueryRow(`SELECT data FROM run_meta WHERE id = 1 FOR UPDATE`).Scan(&raw); err != nil {
		return err
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return err
	}
	fn(&meta)
	next, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE run_meta SET data = $1 WHERE id = 1`, string(next)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStore) Connected() bool {
	meta, err := s.Meta()
	if err != nil {
		return false
	}
	return meta.Connected
}

func (s *PostgresStore) SetConnected(connected bool) error {
	return s.UpdateMeta(func(m *Meta) { m.Connected = connected })
}

func (s *PostgresStore) Snapshot() (Document, error) {
	meta, err := s.Meta()
	if err != nil {
		return Document{}, err
	}
	accounts, err := s.Accounts()
	if err != nil {
		return Document{}, err
	}
	doc := Document{Meta: meta, Accounts: make(map[string]Account, len(accounts))}
	for _, acct := range accounts {
		doc.Accounts[acct.Email] = acct
	}
	return doc, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func scanAccount(scan func(dest ...any) error) (Account, error) {
	var (
		acct    Account
		status  string
		ts      sql.NullTime
		syncRaw []byte
	)
	if err := scan(&acct.Email, &acct.SessionToken, &status, &ts, &syncRaw); err != nil {
		return Account{}, err
	}
	acct.ReportStatus = ReportStatus(status)
	if ts.Valid {
		t := ts.Time
		acct.ReportTimestamp = &t
	}
	if len(syncRaw) > 0 {
		if err := json.Unmarshal(syncRaw, &acct.SyncData); err != nil {
			return Account{}, err
		}
	}
	if acct.SyncData == nil {
		acct.SyncData = SyncData{}
	}
	return acct, nil
}
