// Package databasetest provides a database/sql driver whose statements
// succeed but whose results cannot report affected rows.
package databasetest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"
)

// ErrRowsAffected is returned by every result's RowsAffected.
var ErrRowsAffected = errors.New("databasetest: rows affected unavailable")

var errUnsupported = errors.New("databasetest: only Exec is supported")

// BrokenResultDB opens a Postgres-flavoured *sqlx.DB on that driver.
// Exec calls are recorded in the returned Log.
func BrokenResultDB() (*sqlx.DB, *Log) {
	log := &Log{}
	db := sql.OpenDB(connector{log: log})
	return sqlx.NewDb(db, "postgres"), log
}

// Log records executed statements.
type Log struct {
	mu      sync.Mutex
	queries []string
}

// Queries returns the statements executed so far.
func (l *Log) Queries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.queries...)
}

func (l *Log) add(query string) {
	l.mu.Lock()
	l.queries = append(l.queries, query)
	l.mu.Unlock()
}

type connector struct{ log *Log }

func (c connector) Connect(context.Context) (driver.Conn, error) { return &conn{log: c.log}, nil }

func (c connector) Driver() driver.Driver { return drv{log: c.log} }

type drv struct{ log *Log }

func (d drv) Open(string) (driver.Conn, error) { return &conn{log: d.log}, nil }

type conn struct{ log *Log }

func (c *conn) Prepare(string) (driver.Stmt, error) { return nil, errUnsupported }

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) { return nil, errUnsupported }

func (c *conn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.log.add(query)
	return brokenResult{}, nil
}

type brokenResult struct{}

func (brokenResult) LastInsertId() (int64, error) { return 0, ErrRowsAffected }

func (brokenResult) RowsAffected() (int64, error) { return 0, ErrRowsAffected }
