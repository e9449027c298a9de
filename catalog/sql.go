package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	Name   string
	Driver string
	// ILike is the case-insensitive LIKE operator of the engine.
	ILike       string
	placeholder func(n int) string
	schema      []string
}

var (
	// Postgres is the dialect of the hosted database itself.
	Postgres = Dialect{
		Name:        "postgres",
		Driver:      "postgres",
		ILike:       "ILIKE",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		schema:      postgresSchema,
	}
	// SQLite serves local development and tests. Its LIKE already ignores
	// ASCII case.
	SQLite = Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		ILike:       "LIKE",
		placeholder: func(int) string { return "?" },
		schema:      sqliteSchema,
	}
)

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// SQL reads the catalog directly from a relational database.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQL opens and pings a database for dialect d.
func OpenSQL(ctx context.Context, d Dialect, dsn string) (*SQL, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.Name, err)
	}
	return NewSQL(db, d), nil
}

// NewSQL wraps an open handle.
func NewSQL(db *sql.DB, d Dialect) *SQL {
	return &SQL{db: db, dialect: d}
}

// DB exposes the underlying handle.
func (s *SQL) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *SQL) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the catalog tables when they are missing.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Select runs q as one SELECT statement.
func (s *SQL) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := q.Validate(); err != nil {
		return nil, &FetchError{Table: q.Table, Err: err}
	}
	stmt, args := s.build(q)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fetchError(q.Table, err, 0)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fetchError(q.Table, err, 0)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fetchError(q.Table, fmt.Errorf("scan: %w", err), 0)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fetchError(q.Table, err, 0)
	}
	return out, nil
}

func (s *SQL) build(q Query) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(q.Filters))

	cols := q.selectList()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		if c == "*" {
			quoted[i] = c
			continue
		}
		quoted[i] = quoteIdent(c)
	}
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(q.Table))

	for i, f := range q.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		switch {
		case f.Op == OpEq && f.Value == nil:
			fmt.Fprintf(&b, "%s IS NULL", quoteIdent(f.Column))
		case f.Op == OpEq:
			args = append(args, f.Value)
			fmt.Fprintf(&b, "%s = %s", quoteIdent(f.Column), s.dialect.placeholder(len(args)))
		case f.Op == OpILike:
			args = append(args, "%"+escapeLike(f.Value.(string))+"%")
			fmt.Fprintf(&b, `%s %s %s ESCAPE '\'`, quoteIdent(f.Column), s.dialect.ILike, s.dialect.placeholder(len(args)))
		}
	}

	for i, o := range q.Orders {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(o.Column))
		if o.Descending {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}

	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
