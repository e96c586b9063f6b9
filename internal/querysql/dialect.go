package querysql

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavour a statement is rendered in.
type Dialect int

const (
	SQLite Dialect = iota + 1
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// ParseDialect maps a database/sql driver name to its dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "sqlite3_corpus":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return 0, fmt.Errorf("unknown dialect for driver %q", driver)
	}
}

// SerialPrimaryKey is the column type of an auto-incrementing primary key
// whose values strictly increase with insertion order.
func (d Dialect) SerialPrimaryKey() string {
	if d == Postgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// BinaryCollation is the collation that orders text byte-wise.
func (d Dialect) BinaryCollation() string {
	if d == Postgres {
		return `COLLATE "C"`
	}
	return "COLLATE BINARY"
}

func (d Dialect) regexpOp(negate, fold bool) string {
	if d == Postgres {
		op := "~"
		if fold {
			op = "~*"
		}
		if negate {
			op = "!" + op
		}
		return op
	}
	if negate {
		return "NOT REGEXP"
	}
	return "REGEXP"
}

func (d Dialect) castType(isReal bool) string {
	switch {
	case d == Postgres && isReal:
		return "DOUBLE PRECISION"
	case d == Postgres:
		return "BIGINT"
	case isReal:
		return "REAL"
	default:
		return "INTEGER"
	}
}
