package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dotsetgreg/repcue/pkg/catalog"
	"github.com/dotsetgreg/repcue/pkg/logger"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists conversation states and the exercise catalog in one
// SQLite database. It also serves as a catalog.Source.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates/opens the database at path. ":memory:" is accepted.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One shared connection: pair workers write concurrently and SQLite
	// allows a single writer. It also keeps ":memory:" to one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS conversation_states (
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			state_json TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL,
			PRIMARY KEY(session_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS catalog_entries (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			entry_json TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS catalog_entries_position_idx ON catalog_entries(position);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema (%s): %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) > 60 {
		return sql[:60] + "..."
	}
	return sql
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func (s *SQLiteStore) Load(ctx context.Context, key Key) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT phase, state_json, updated_at_ms
FROM conversation_states
WHERE session_id = ? AND user_id = ?`, key.SessionID, key.UserID)
	var (
		phase, raw string
		updatedMS  int64
	)
	if err := row.Scan(&phase, &raw, &updatedMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, unavailable("load state", err)
	}
	return Snapshot{
		Key:       key,
		Phase:     phase,
		State:     []byte(raw),
		UpdatedAt: time.UnixMilli(updatedMS),
	}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	if !snap.Key.Valid() {
		return fmt.Errorf("save state: invalid key %q", snap.Key.String())
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversation_states(session_id, user_id, phase, state_json, updated_at_ms)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(session_id, user_id) DO UPDATE SET
	phase = excluded.phase,
	state_json = excluded.state_json,
	updated_at_ms = excluded.updated_at_ms`,
		snap.SessionID,
		snap.UserID,
		snap.Phase,
		string(snap.State),
		snap.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return unavailable("save state", err)
	}
	return nil
}

func (s *SQLiteStore) ListSession(ctx context.Context, sessionID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT user_id, phase, state_json, updated_at_ms
FROM conversation_states
WHERE session_id = ?
ORDER BY user_id`, sessionID)
	if err != nil {
		return nil, unavailable("list session", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			userID, phase, raw string
			updatedMS          int64
		)
		if err := rows.Scan(&userID, &phase, &raw, &updatedMS); err != nil {
			return nil, unavailable("scan session row", err)
		}
		out = append(out, Snapshot{
			Key:       Key{SessionID: sessionID, UserID: userID},
			Phase:     phase,
			State:     []byte(raw),
			UpdatedAt: time.UnixMilli(updatedMS),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list session", err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, unavailable("delete session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("delete session", err)
	}
	return int(n), nil
}

// ListCatalog implements catalog.Source in insertion order.
func (s *SQLiteStore) ListCatalog(ctx context.Context) ([]catalog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entry_json FROM catalog_entries ORDER BY position, id`)
	if err != nil {
		return nil, unavailable("list catalog", err)
	}
	defer rows.Close()

	var out []catalog.Entry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, unavailable("scan catalog row", err)
		}
		var e catalog.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			logger.WarnCF("store", "Skipping undecodable catalog row", map[string]interface{}{"error": err.Error()})
			continue
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list catalog", err)
	}
	return out, nil
}

// ReplaceCatalog swaps the whole catalog table for entries in one
// transaction, keeping their order.
func (s *SQLiteStore) ReplaceCatalog(ctx context.Context, entries []catalog.Entry) error {
	if err := catalog.ValidateEntries(entries); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("replace catalog begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_entries`); err != nil {
		return unavailable("replace catalog clear", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO catalog_entries(id, position, entry_json, updated_at_ms)
VALUES(?, ?, ?, ?)`)
	if err != nil {
		return unavailable("replace catalog prepare", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for i, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode catalog entry %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, i, string(raw), now); err != nil {
			return unavailable("replace catalog insert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("replace catalog commit", err)
	}
	logger.InfoCF("store", "Catalog replaced", map[string]interface{}{"entries": len(entries)})
	return nil
}

// CatalogSize returns the number of stored catalog entries.
func (s *SQLiteStore) CatalogSize(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_entries`).Scan(&n); err != nil {
		return 0, unavailable("count catalog", err)
	}
	return n, nil
}

// Ping reports whether the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
