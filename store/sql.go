package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL stores rows in a caller-supplied table with configurable column
// names. The schema contract: a string key column (primary key or unique),
// a text/blob value column, and an integer column holding the absolute
// expiration as unix seconds (0 = never).
//
// Statements use '?' placeholders and double-quoted identifiers, which
// covers SQLite out of the box. Add is a single conditional upsert: the
// conflict action only fires when the existing row has already expired, so
// a live row survives untouched and the statement is atomic. This requires
// ON CONFLICT support (SQLite, PostgreSQL).
type SQL struct {
	db  *sql.DB
	now func() time.Time

	getQ, setQ, addQ, deleteQ, clearQ, entriesQ string
}

var (
	_ Store      = (*SQL)(nil)
	_ Enumerable = (*SQL)(nil)
)

// NewSQL validates the descriptor and verifies the handle is usable.
// The caller owns db; Close does not close it.
func NewSQL(cfg Config) (*SQL, error) {
	if cfg.DB == nil {
		return nil, &ConfigError{Field: "db", Reason: "sql backend requires an open database handle"}
	}

	table := defaultIdent(cfg.Table, "cache")
	keyCol := defaultIdent(cfg.KeyColumn, "key")
	valueCol := defaultIdent(cfg.ValueColumn, "value")
	ttlCol := defaultIdent(cfg.TTLColumn, "ttl")
	for field, ident := range map[string]string{
		"table": table, "key_column": keyCol, "value_column": valueCol, "ttl_column": ttlCol,
	} {
		if !identPattern.MatchString(ident) {
			return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("invalid identifier %q", ident)}
		}
	}

	s := &SQL{db: cfg.DB, now: time.Now}
	s.getQ = fmt.Sprintf(`SELECT %q, %q FROM %q WHERE %q = ?`, valueCol, ttlCol, table, keyCol)
	s.setQ = fmt.Sprintf(`INSERT INTO %q (%q, %q, %q) VALUES (?, ?, ?)
		ON CONFLICT(%q) DO UPDATE SET %q = excluded.%q, %q = excluded.%q`,
		table, keyCol, valueCol, ttlCol, keyCol, valueCol, valueCol, ttlCol, ttlCol)
	s.addQ = s.setQ + fmt.Sprintf(` WHERE %q.%q <> 0 AND %q.%q <= ?`, table, ttlCol, table, ttlCol)
	s.deleteQ = fmt.Sprintf(`DELETE FROM %q WHERE %q = ?`, table, keyCol)
	s.clearQ = fmt.Sprintf(`DELETE FROM %q`, table)
	s.entriesQ = fmt.Sprintf(`SELECT %q, %q FROM %q`, keyCol, ttlCol, table)

	if err := cfg.DB.Ping(); err != nil {
		return nil, &EnvError{Target: table, Reason: "database unreachable", Err: err}
	}
	// The table is caller-supplied; fail now if it does not match the
	// schema contract rather than on the first operation.
	rows, err := cfg.DB.Query(s.entriesQ + ` LIMIT 1`)
	if err != nil {
		return nil, &EnvError{Target: table, Reason: "table missing or schema mismatch", Err: err}
	}
	rows.Close()
	return s, nil
}

func defaultIdent(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func expireUnix(e Entry) int64 {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	return e.ExpiresAt.Unix()
}

func (s *SQL) Get(ctx context.Context, key string) (Entry, bool, error) {
	var value []byte
	var exp int64
	err := s.db.QueryRowContext(ctx, s.getQ, key).Scan(&value, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e := Entry{Value: value}
	if exp != 0 {
		e.ExpiresAt = time.Unix(exp, 0)
	}
	return e, true, nil
}

func (s *SQL) Set(ctx context.Context, key string, e Entry) error {
	_, err := s.db.ExecContext(ctx, s.setQ, key, e.Value, expireUnix(e))
	return err
}

// Add inserts, or replaces an expired row, in one statement. A live row
// makes the conditional conflict action a no-op, reported via RowsAffected.
func (s *SQL) Add(ctx context.Context, key string, e Entry) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.addQ, key, e.Value, expireUnix(e), s.now().Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQL) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.deleteQ, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQL) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.clearQ)
	return err
}

func (s *SQL) Entries(ctx context.Context) ([]KeyState, error) {
	rows, err := s.db.QueryContext(ctx, s.entriesQ)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KeyState
	for rows.Next() {
		var key string
		var exp int64
		if err := rows.Scan(&key, &exp); err != nil {
			return nil, err
		}
		ks := KeyState{Key: key}
		if exp != 0 {
			ks.ExpiresAt = time.Unix(exp, 0)
		}
		out = append(out, ks)
	}
	return out, rows.Err()
}

func (s *SQL) Close(_ context.Context) error { return nil }
