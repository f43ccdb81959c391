package repository

import (
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

// Dialect selects SQL flavour differences between the supported databases.
type Dialect string

// Dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) dir() string { return string(d) }

func (d Dialect) goose() goose.Dialect {
	if d == DialectPostgres {
		return goose.DialectPostgres
	}
	return goose.DialectSQLite3
}

// rebind rewrites ? placeholders into $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
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

// lockSuffix locks the selected row for the rest of the transaction where
// the database supports it. SQLite serializes writers on its own.
func (d Dialect) lockSuffix() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}
