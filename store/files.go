package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// entryExt marks files owned by this store so Clear never touches foreign
// files living in the same directory.
const entryExt = ".entry"

// Files maps each key to one file in a directory. The file starts with the
// absolute expiration as decimal unix seconds ("0" = never) on its own line;
// the rest is the payload verbatim.
//
// Writes go through a temp file and a rename, so a reader sees either the
// old or the new entry, never a torn one. There is no cross-process lock
// around Add's check-then-act; two processes adding the same absent key can
// both report success, with the later rename winning.
type Files struct {
	dir string
	now func() time.Time
}

var (
	_ Store      = (*Files)(nil)
	_ Enumerable = (*Files)(nil)
)

// NewFiles validates that dir exists, is a directory, and is writable.
func NewFiles(dir string) (*Files, error) {
	if dir == "" {
		return nil, &ConfigError{Field: "path", Reason: "files backend requires a directory path"}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &EnvError{Target: dir, Reason: "cannot stat directory", Err: err}
	}
	if !info.IsDir() {
		return nil, &EnvError{Target: dir, Reason: "path is not a directory"}
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, &EnvError{Target: dir, Reason: "directory is not writable", Err: err}
	}
	probe.Close()
	os.Remove(probe.Name())

	return &Files{dir: dir, now: time.Now}, nil
}

func (f *Files) filename(key string) string {
	// QueryEscape keeps the name reversible and free of path separators.
	// Keys near the 250-byte limit can exceed a filesystem's name limit
	// after escaping; the resulting open error surfaces to the caller.
	return filepath.Join(f.dir, url.QueryEscape(key)+entryExt)
}

func decodeFilename(name string) (string, bool) {
	if !strings.HasSuffix(name, entryExt) {
		return "", false
	}
	key, err := url.QueryUnescape(strings.TrimSuffix(name, entryExt))
	if err != nil {
		return "", false
	}
	return key, true
}

func encodeEntry(e Entry) []byte {
	var exp int64
	if !e.ExpiresAt.IsZero() {
		exp = e.ExpiresAt.Unix()
	}
	header := strconv.FormatInt(exp, 10)
	buf := make([]byte, 0, len(header)+1+len(e.Value))
	buf = append(buf, header...)
	buf = append(buf, '\n')
	return append(buf, e.Value...)
}

func decodeEntry(raw []byte) (Entry, error) {
	i := bytes.IndexByte(raw, '\n')
	if i < 0 {
		return Entry{}, errors.New("missing expiration header")
	}
	exp, err := strconv.ParseInt(string(raw[:i]), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("malformed expiration header: %w", err)
	}
	e := Entry{Value: raw[i+1:]}
	if exp != 0 {
		e.ExpiresAt = time.Unix(exp, 0)
	}
	return e, nil
}

func (f *Files) Get(_ context.Context, key string) (Entry, bool, error) {
	raw, err := os.ReadFile(f.filename(key))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return Entry{}, false, fmt.Errorf("entry for %q: %w", key, err)
	}
	return e, true, nil
}

func (f *Files) Set(_ context.Context, key string, e Entry) error {
	return f.write(key, e)
}

func (f *Files) Add(ctx context.Context, key string, e Entry) (bool, error) {
	cur, ok, err := f.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if ok && !cur.Expired(f.now()) {
		return false, nil
	}
	return true, f.write(key, e)
}

func (f *Files) write(key string, e Entry) error {
	target := f.filename(key)
	tmp, err := os.CreateTemp(f.dir, ".write-*")
	if err != nil {
		return fmt.Errorf("stage entry for %q: %w", key, err)
	}
	if _, err := tmp.Write(encodeEntry(e)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("stage entry for %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("stage entry for %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit entry for %q: %w", key, err)
	}
	return nil
}

func (f *Files) Delete(_ context.Context, key string) (bool, error) {
	err := os.Remove(f.filename(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (f *Files) Clear(_ context.Context) error {
	dirents, err := os.ReadDir(f.dir)
	if err != nil {
		return err
	}
	var firstErr error
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if _, ok := decodeFilename(d.Name()); !ok {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, d.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Files) Entries(_ context.Context) ([]KeyState, error) {
	dirents, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	out := make([]KeyState, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		key, ok := decodeFilename(d.Name())
		if !ok {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(f.dir, d.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue // removed since ReadDir
		}
		if err != nil {
			return nil, err
		}
		e, err := decodeEntry(raw)
		if err != nil {
			// Unreadable header; report as never-expiring so Clean skips it
			// instead of silently discarding data.
			out = append(out, KeyState{Key: key})
			continue
		}
		out = append(out, KeyState{Key: key, ExpiresAt: e.ExpiresAt})
	}
	return out, nil
}

func (f *Files) Close(_ context.Context) error { return nil }
