package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteDriver is the database/sql driver name of SQLite connections with
// the REGEXP function and connection pragmas installed.
const SQLiteDriver = "sqlite3_corpus"

// PostgresDriver is the pgx stdlib driver name.
const PostgresDriver = "pgx"

// regexpCacheSize bounds the compiled patterns kept across connections.
const regexpCacheSize = 256

var (
	registerOnce sync.Once
	patterns     *lru.Cache[string, *regexp.Regexp]
)

// connectionPragmas are applied to every new SQLite connection.
var connectionPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

func registerSQLite() {
	registerOnce.Do(func() {
		cache, err := lru.New[string, *regexp.Regexp](regexpCacheSize)
		if err != nil {
			panic(fmt.Sprintf("regexp cache: %v", err))
		}
		patterns = cache
		sql.Register(SQLiteDriver, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("regexp", matchRegexp, true); err != nil {
					return fmt.Errorf("register regexp: %w", err)
				}
				return applyPragmas(conn)
			},
		})
	})
}

// applyPragmas sets required SQLite configuration on one connection.
func applyPragmas(conn *sqlite3.SQLiteConn) error {
	for _, pragma := range connectionPragmas {
		if _, err := conn.Exec(pragma, nil); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// matchRegexp implements "value REGEXP pattern", which SQLite evaluates as
// regexp(pattern, value). NULL values never match.
func matchRegexp(pattern string, value any) (bool, error) {
	var s string
	switch v := value.(type) {
	case nil:
		return false, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		s = fmt.Sprint(v)
	}
	re, ok := patterns.Get(pattern)
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		patterns.Add(pattern, re)
	}
	return re.MatchString(s), nil
}
