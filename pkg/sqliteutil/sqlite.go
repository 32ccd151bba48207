// Package sqliteutil opens the score-history mirror pkg/tracking.History
// writes to, via modernc.org/sqlite's pure-Go (CGO-free) driver so the
// validator binary stays a single static executable.
package sqliteutil

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// OpenDB opens path, creating its parent directory and the database file
// if needed. The connection pool is pinned to a single connection: this
// validator has exactly one writer (the evaluation loop) and one
// occasional reader (`validator tracking inspect`), never both across
// process boundaries, so there is no concurrent-writer case to tune for
// beyond WAL mode and a generous busy timeout.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %q: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		if isCantOpenError(err) {
			return nil, diagnoseOpenError(path, err)
		}
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		if isCantOpenError(err) {
			return nil, diagnoseOpenError(path, err)
		}
		return nil, err
	}

	return db, nil
}

// isCantOpenError reports whether err is a SQLite CANTOPEN (code 14)
// error, the case diagnoseOpenError can say something more useful about
// than modernc.org/sqlite's own message.
func isCantOpenError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CANTOPEN
	}
	return false
}

func diagnoseOpenError(path string, originalErr error) error {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("cannot create tracking history database at %q: directory %q does not exist", path, dir)
		}
		return fmt.Errorf("cannot create tracking history database at %q: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot create tracking history database at %q: %q is not a directory", path, dir)
	}

	return fmt.Errorf("cannot create tracking history database at %q: permission denied or file cannot be created in %q (original error: %v)", path, dir, originalErr)
}
