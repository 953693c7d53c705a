package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect names a supported SQL backend. The value doubles as the
// database/sql driver name.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// DB wraps a SQL connection and the dialect its statements are written for.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// Open connects to dsn with the given dialect and runs migrations. For
// SQLite, dsn is a file path whose directory is created on demand.
func Open(dialect Dialect, dsn string) (*DB, error) {
	switch dialect {
	case DialectSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	case DialectPostgres, DialectMySQL:
	default:
		return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}

	conn, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// SQLite only supports one writer; a single connection avoids SQLITE_BUSY
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(5)
		conn.SetMaxIdleConns(2)
		conn.SetConnMaxLifetime(10 * time.Minute)
	}

	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect returns the SQL dialect in use.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) migrate() error {
	idType, blobType := "TEXT", "TEXT"
	if db.dialect == DialectMySQL {
		idType, blobType = "VARCHAR(191)", "LONGTEXT"
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS data_sources (
			id ` + idType + ` PRIMARY KEY,
			title TEXT NOT NULL,
			schema_json ` + blobType + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			id ` + idType + ` PRIMARY KEY,
			data_source_id ` + idType + ` NOT NULL,
			title TEXT NOT NULL,
			properties_json ` + blobType + ` NOT NULL,
			position INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS views (
			id ` + idType + ` PRIMARY KEY,
			data_source_id ` + idType + ` NOT NULL,
			name TEXT NOT NULL,
			settings_json ` + blobType + ` NOT NULL,
			updated_at ` + db.timestampType() + ` NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			id ` + idType + ` PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL
		)`,
	}
	if db.dialect == DialectMySQL {
		// MySQL has no CREATE INDEX IF NOT EXISTS; duplicate key names are ignored below.
		migrations = append(migrations,
			`CREATE INDEX idx_records_data_source ON records(data_source_id)`,
			`CREATE INDEX idx_views_data_source ON views(data_source_id)`,
		)
	} else {
		migrations = append(migrations,
			`CREATE INDEX IF NOT EXISTS idx_records_data_source ON records(data_source_id)`,
			`CREATE INDEX IF NOT EXISTS idx_views_data_source ON views(data_source_id)`,
		)
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			if strings.HasPrefix(m, "CREATE INDEX") && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}
	return nil
}

func (db *DB) timestampType() string {
	if db.dialect == DialectPostgres {
		return "TIMESTAMP"
	}
	return "DATETIME"
}

// rebind rewrites ? placeholders for dialects that number them.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
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

// upsert builds an insert-or-replace statement keyed by the first column.
func (db *DB) upsert(table string, cols ...string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)

	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		if db.dialect == DialectMySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	if db.dialect == DialectMySQL {
		q += " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	} else {
		q += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", cols[0], strings.Join(sets, ", "))
	}
	return db.rebind(q)
}
