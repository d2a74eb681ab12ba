package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/conorfennell/ankipack/internal/common"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around one on-disk SQLite database file.
type DB struct {
	conn   *sql.DB
	path   string
	closed bool
}

// Statement is a SQL statement together with its bound parameters.
type Statement struct {
	Query string
	Args  []any
}

// Create makes a new database file at path, applies the schema and runs the
// seed statement. It fails if the file already exists.
func Create(path, schema string, seed Statement) (*DB, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: database file %s already exists", common.ErrStorage, path)
	}

	db, err := Open(path)
	if err != nil {
		return nil, err
	}

	if _, err := db.conn.Exec(schema); err != nil {
		db.conn.Close()
		return nil, fmt.Errorf("%w: failed to apply schema: %w", common.ErrStorage, err)
	}

	if seed.Query != "" {
		if _, err := db.conn.Exec(seed.Query, seed.Args...); err != nil {
			db.conn.Close()
			return nil, fmt.Errorf("%w: failed to seed database: %w", common.ErrStorage, err)
		}
	}

	return db, nil
}

// Open connects to the database file at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", common.ErrStorage, err)
	}
	// A single connection keeps every statement on the same file handle, so
	// writes are visible to the next read and Close releases the file.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to connect to database: %w", common.ErrStorage, err)
	}

	return &DB{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Exec runs a statement and returns the number of rows it affected.
func (db *DB) Exec(query string, args ...any) (int64, error) {
	if db.closed {
		return 0, fmt.Errorf("%w: database %s is closed", common.ErrStorage, db.path)
	}
	res, err := db.conn.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get rows affected: %w", common.ErrStorage, err)
	}
	return n, nil
}

// QueryRow scans the first row of the result into dest.
// It reports false with a nil error when there is no row.
func (db *DB) QueryRow(query string, args []any, dest ...any) (bool, error) {
	if db.closed {
		return false, fmt.Errorf("%w: database %s is closed", common.ErrStorage, db.path)
	}
	err := db.conn.QueryRow(query, args...).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	return true, nil
}

// Query runs a query returning rows. The caller closes the rows.
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	if db.closed {
		return nil, fmt.Errorf("%w: database %s is closed", common.ErrStorage, db.path)
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	return rows, nil
}

// Count returns the number of rows in table.
func (db *DB) Count(table string) (int64, error) {
	var n int64
	if _, err := db.QueryRow(fmt.Sprintf("SELECT count(*) FROM %s", table), nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database connection. Closing twice is an error.
func (db *DB) Close() error {
	if db.closed {
		return fmt.Errorf("%w: database %s already closed", common.ErrState, db.path)
	}
	db.closed = true
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("%w: failed to close database: %w", common.ErrStorage, err)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (db *DB) IsClosed() bool {
	return db.closed
}
