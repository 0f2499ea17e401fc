package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/compare-engine/internal/record"
)

// Querier is the pgx query surface the Postgres source needs. Both
// *pgxpool.Pool and pgxmock pools satisfy it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres runs a query and turns each row into a record via row_to_json, so
// column names and JSON-compatible types carry over unchanged.
type Postgres struct {
	name  string
	db    Querier
	query string
	close func()
}

// NewPostgres wraps an existing pool.
func NewPostgres(name string, db Querier, query string) *Postgres {
	return &Postgres{name: name, db: db, query: query}
}

// OpenPostgres connects a pool for dsn.
func OpenPostgres(ctx context.Context, name, dsn, query string) (*Postgres, error) {
	if dsn == "" {
		return nil, eris.Errorf("source %s: postgres source needs a url", name)
	}
	if strings.TrimSpace(query) == "" {
		return nil, eris.Errorf("source %s: postgres source needs a query", name)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	p := NewPostgres(name, pool, query)
	p.close = pool.Close
	return p, nil
}

// Name implements Source.
func (p *Postgres) Name() string { return p.name }

// Close releases the pool when the source owns it.
func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}

// WrapQuery returns the statement the source actually executes.
func WrapQuery(query string) string {
	q := strings.TrimRight(strings.TrimSpace(query), ";")
	return "SELECT row_to_json(t)::text FROM (" + q + ") t"
}

// Load implements Source.
func (p *Postgres) Load(ctx context.Context) ([]record.Raw, error) {
	rows, err := p.db.Query(ctx, WrapQuery(p.query))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query")
	}
	defer rows.Close()

	var out []record.Raw
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		var rec record.Raw
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: decode row")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rows")
	}
	return out, nil
}

// SQLite runs a query against a local SQLite database.
type SQLite struct {
	name  string
	db    *sql.DB
	query string
}

// OpenSQLite opens the database at path.
func OpenSQLite(name, path, query string) (*SQLite, error) {
	if strings.TrimSpace(query) == "" {
		return nil, eris.Errorf("source %s: sqlite source needs a query", name)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: exec pragma")
	}
	return &SQLite{name: name, db: db, query: query}, nil
}

// NewSQLite wraps an open database.
func NewSQLite(name string, db *sql.DB, query string) *SQLite {
	return &SQLite{name: name, db: db, query: query}
}

// Name implements Source.
func (s *SQLite) Name() string { return s.name }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Load implements Source. BLOB and TEXT columns become strings; NULLs stay
// nil.
func (s *SQLite) Load(ctx context.Context) ([]record.Raw, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query")
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: columns")
	}

	var out []record.Raw
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		rec := make(record.Raw, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate rows")
	}
	return out, nil
}
