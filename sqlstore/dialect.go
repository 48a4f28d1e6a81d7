package sqlstore

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

//go:embed schema/postgres.sql
var postgresSchema string

// Dialect captures the differences between the supported databases.
type Dialect struct {
	// Name is the store driver name used in configuration.
	Name string

	// DriverName is the database/sql driver to open.
	DriverName string

	schema     string
	numbered   bool
	noLimit    string
	singleConn bool
	pragmas    []string
}

var (
	SQLite = Dialect{
		Name:       "sqlite",
		DriverName: "sqlite3",
		schema:     sqliteSchema,
		noLimit:    "-1",
		singleConn: true,
		pragmas: []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
			"PRAGMA busy_timeout = 5000",
		},
	}
	Postgres = Dialect{
		Name:       "postgres",
		DriverName: "postgres",
		schema:     postgresSchema,
		numbered:   true,
		noLimit:    "ALL",
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case SQLite.Name, SQLite.DriverName:
		return SQLite, nil
	case Postgres.Name:
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
}

// rebind rewrites ? placeholders into the dialect's style.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
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
