package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect captures the SQL differences between the supported drivers.
type dialect interface {
	driverName() string
	placeholder(n int) string
	columnType(k columnKind) string
	// bind converts a column value into a driver argument.
	bind(k columnKind, v any) any
	// durationMinutes is an SQL expression for the minutes between two
	// timestamp columns.
	durationMinutes(from, to string) string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlite":
		return sqliteDialect{}, nil
	case "postgres":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// quote double-quotes an identifier; TLC column names are mixed case.
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

type sqliteDialect struct{}

func (sqliteDialect) driverName() string { return "sqlite" }

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) columnType(k columnKind) string {
	switch k {
	case kindInteger:
		return "INTEGER"
	case kindReal:
		return "REAL"
	case kindTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// bind stores timestamps as "YYYY-MM-DD HH:MM:SS" text so SQLite date
// functions can read them.
func (sqliteDialect) bind(k columnKind, v any) any {
	if k == kindTimestamp {
		return timestampText(v)
	}
	return nullable(v)
}

func (sqliteDialect) durationMinutes(from, to string) string {
	return fmt.Sprintf("((strftime('%%s', %s) - strftime('%%s', %s)) / 60.0)", to, from)
}

type postgresDialect struct{}

func (postgresDialect) driverName() string { return "postgres" }

func (postgresDialect) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) columnType(k columnKind) string {
	switch k {
	case kindInteger:
		return "BIGINT"
	case kindReal:
		return "DOUBLE PRECISION"
	case kindTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (postgresDialect) bind(k columnKind, v any) any {
	if k == kindTimestamp {
		return v
	}
	return nullable(v)
}

func (postgresDialect) durationMinutes(from, to string) string {
	return fmt.Sprintf("(EXTRACT(EPOCH FROM (%s - %s)) / 60.0)", to, from)
}
