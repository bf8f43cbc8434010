package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T, schema string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// :memory: lives per-connection; a second pooled connection would see an
	// empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if schema != "" {
		if _, err := db.Exec(schema); err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

const defaultSchema = `CREATE TABLE "cache" (
	"key"   TEXT PRIMARY KEY,
	"value" BLOB NOT NULL,
	"ttl"   INTEGER NOT NULL
)`

func newTestSQL(t *testing.T) *SQL {
	t.Helper()
	s, err := NewSQL(Config{DB: openTestDB(t, defaultSchema)})
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	return s
}

func TestSQLRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQL(t)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := s.Set(ctx, "k", Entry{Value: []byte("payload"), ExpiresAt: exp}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(got.Value) != "payload" || !got.ExpiresAt.Equal(exp) {
		t.Fatalf("Get: value=%q exp=%v", got.Value, got.ExpiresAt)
	}

	// Set over an existing key replaces in place.
	if err := s.Set(ctx, "k", Entry{Value: []byte("updated")}); err != nil {
		t.Fatalf("second Set: %v", err)
	}
	got, _, _ = s.Get(ctx, "k")
	if string(got.Value) != "updated" || !got.ExpiresAt.IsZero() {
		t.Fatalf("upsert: value=%q exp=%v", got.Value, got.ExpiresAt)
	}
}

// Add is one conditional upsert: a live row blocks it, an expired or absent
// row lets it through.
func TestSQLAddSemantics(t *testing.T) {
	ctx := context.Background()
	s := newTestSQL(t)

	base := time.Now()
	s.now = func() time.Time { return base }

	ok, err := s.Add(ctx, "k", Entry{Value: []byte("first"), ExpiresAt: base.Add(time.Second)})
	if err != nil || !ok {
		t.Fatalf("Add to absent: ok=%v err=%v", ok, err)
	}
	ok, err = s.Add(ctx, "k", Entry{Value: []byte("second")})
	if err != nil || ok {
		t.Fatalf("Add over live row: ok=%v err=%v", ok, err)
	}
	got, _, _ := s.Get(ctx, "k")
	if string(got.Value) != "first" {
		t.Fatalf("losing add overwrote value: %q", got.Value)
	}

	// A never-expiring row (ttl = 0) blocks forever.
	if err := s.Set(ctx, "forever", Entry{Value: []byte("v")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.now = func() time.Time { return base.Add(24 * time.Hour) }
	ok, err = s.Add(ctx, "forever", Entry{Value: []byte("x")})
	if err != nil || ok {
		t.Fatalf("Add over eternal row: ok=%v err=%v", ok, err)
	}

	// The expired row yields.
	ok, err = s.Add(ctx, "k", Entry{Value: []byte("second")})
	if err != nil || !ok {
		t.Fatalf("Add over expired row: ok=%v err=%v", ok, err)
	}
	got, _, _ = s.Get(ctx, "k")
	if string(got.Value) != "second" {
		t.Fatalf("add over expired kept old value: %q", got.Value)
	}
}

func TestSQLDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestSQL(t)

	found, err := s.Delete(ctx, "absent")
	if err != nil || found {
		t.Fatalf("Delete absent: found=%v err=%v", found, err)
	}
	for _, k := range []string{"a", "b"} {
		if err := s.Set(ctx, k, Entry{Value: []byte(k)}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	found, err = s.Delete(ctx, "a")
	if err != nil || !found {
		t.Fatalf("Delete present: found=%v err=%v", found, err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	states, err := s.Entries(ctx)
	if err != nil || len(states) != 0 {
		t.Fatalf("Entries after Clear: %v err=%v", states, err)
	}
}

func TestSQLEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestSQL(t)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := s.Set(ctx, "eternal", Entry{Value: []byte("a")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "bounded", Entry{Value: []byte("b"), ExpiresAt: exp}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	states, err := s.Entries(ctx)
	if err != nil || len(states) != 2 {
		t.Fatalf("Entries: %v err=%v", states, err)
	}
	byKey := make(map[string]KeyState, len(states))
	for _, ks := range states {
		byKey[ks.Key] = ks
	}
	if !byKey["eternal"].ExpiresAt.IsZero() {
		t.Fatalf("eternal row has a deadline: %v", byKey["eternal"].ExpiresAt)
	}
	if !byKey["bounded"].ExpiresAt.Equal(exp) {
		t.Fatalf("bounded row deadline: %v want %v", byKey["bounded"].ExpiresAt, exp)
	}
}

func TestSQLCustomDescriptor(t *testing.T) {
	ctx := context.Background()
	schema := `CREATE TABLE "sessions" (
		"sid"     TEXT PRIMARY KEY,
		"blob"    BLOB NOT NULL,
		"expires" INTEGER NOT NULL
	)`
	s, err := NewSQL(Config{
		DB:          openTestDB(t, schema),
		Table:       "sessions",
		KeyColumn:   "sid",
		ValueColumn: "blob",
		TTLColumn:   "expires",
	})
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	if err := s.Set(ctx, "k", Entry{Value: []byte("v")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := s.Get(ctx, "k"); err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
}

func TestSQLConstructionErrors(t *testing.T) {
	var ce *ConfigError
	if _, err := NewSQL(Config{}); !errors.As(err, &ce) {
		t.Fatalf("nil db: %v, want ConfigError", err)
	}

	bad := []string{`cache"; DROP TABLE users; --`, "has space", "1starts_with_digit", "semi;colon"}
	for _, ident := range bad {
		if _, err := NewSQL(Config{DB: openTestDB(t, defaultSchema), Table: ident}); !errors.As(err, &ce) {
			t.Fatalf("identifier %q: %v, want ConfigError", ident, err)
		}
	}

	var ee *EnvError
	if _, err := NewSQL(Config{DB: openTestDB(t, "")}); !errors.As(err, &ee) {
		t.Fatalf("missing table: %v, want EnvError", err)
	}
}

func TestSQLParameterizedValues(t *testing.T) {
	ctx := context.Background()
	s := newTestSQL(t)

	// Hostile key and value content travels as parameters, never as SQL.
	key := `k'); DROP TABLE "cache"; --`
	if err := s.Set(ctx, key, Entry{Value: []byte(`'); DELETE FROM "cache"; --`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := s.Get(ctx, key); err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, fmt.Sprintf("other-%d", 1), Entry{Value: []byte("v")}); err != nil {
		t.Fatalf("table gone after hostile key: %v", err)
	}
}
