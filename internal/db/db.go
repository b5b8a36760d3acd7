// Package db is the team and member store. Queries are written once with "?"
// placeholders and rebound for the PostgreSQL driver.
package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Dialect selects the SQL placeholder style of the underlying driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// New wraps a connection (or transaction) for the given dialect.
func New(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

type Queries struct {
	db      DBTX
	dialect Dialect
}

// WithTx returns a copy of the queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

func (q *Queries) rebind(query string) string {
	if q.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
