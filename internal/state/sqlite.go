package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mithrel/pushline/pkg/api"
)

type sqliteStore struct{ db *sql.DB }

// openSQLite connects with the modernc.org/sqlite driver and ensures the schema exists.
func openSQLite(ctx context.Context, dsn string) (*sqliteStore, error) {
	path := strings.TrimPrefix(dsn, "sqlite://")
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	dbh, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// set WAL mode
	if _, err := dbh.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = dbh.Close()
		return nil, err
	}
	if _, err := dbh.ExecContext(ctx, `PRAGMA busy_timeout=5000;`); err != nil {
		_ = dbh.Close()
		return nil, err
	}
	if err := migrate(ctx, dbh); err != nil {
		_ = dbh.Close()
		return nil, err
	}
	return &sqliteStore{db: dbh}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS connection_state (
  connection_id TEXT PRIMARY KEY,
  message_id INTEGER,
  groups TEXT NOT NULL,
  fingerprint TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`)
	return err
}

func (s *sqliteStore) Load(ctx context.Context, id string) (api.State, error) {
	row := s.db.QueryRowContext(ctx, `SELECT connection_id, message_id, groups, updated_at FROM connection_state WHERE connection_id = ?`, id)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return api.State{}, api.ErrStateNotFound
	}
	return st, err
}

func (s *sqliteStore) Save(ctx context.Context, st api.State) error {
	groups := st.Groups
	if groups == nil {
		groups = []string{}
	}
	gb, err := json.Marshal(groups)
	if err != nil {
		return err
	}
	var messageID sql.NullInt64
	if id, ok := st.Cursor(); ok {
		messageID = sql.NullInt64{Int64: id, Valid: true}
	}
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO connection_state (connection_id, message_id, groups, fingerprint, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(connection_id) DO UPDATE SET
  message_id = excluded.message_id,
  groups = excluded.groups,
  fingerprint = excluded.fingerprint,
  updated_at = excluded.updated_at`,
		st.ConnectionID, messageID, string(gb), st.Fingerprint(), updated.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM connection_state WHERE connection_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return api.ErrStateNotFound
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context) ([]api.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT connection_id, message_id, groups, updated_at FROM connection_state ORDER BY connection_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []api.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanState(sc scanner) (api.State, error) {
	var (
		st        api.State
		messageID sql.NullInt64
		groups    string
		updated   string
	)
	if err := sc.Scan(&st.ConnectionID, &messageID, &groups, &updated); err != nil {
		return api.State{}, err
	}
	if messageID.Valid {
		id := messageID.Int64
		st.MessageID = &id
	}
	if err := json.Unmarshal([]byte(groups), &st.Groups); err != nil {
		return api.State{}, err
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		st.UpdatedAt = t
	}
	return st, nil
}
