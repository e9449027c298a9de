// Package catalog provides read access to the hosted product database.
//
// The storefront needs a small capability set from the store: equality
// filters, case-insensitive substring matches, ordering, a result limit and
// AND composition of filters. Query captures exactly that and every Gateway
// backend interprets it the same way.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Op is a filter operator.
type Op string

const (
	// OpEq matches rows whose column equals the value.
	OpEq Op = "eq"
	// OpILike matches rows whose column contains the value, ignoring case.
	OpILike Op = "ilike"
)

// Filter restricts a query to rows matching one condition. Filters of a
// query are combined with AND.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Order sorts query results by one column.
type Order struct {
	Column     string
	Descending bool
}

// Row is one record as returned by a Gateway, keyed by column name.
type Row map[string]any

// Query describes a read against one table. The builder methods return
// modified copies, so a Query may be shared and extended safely.
type Query struct {
	Table   string
	Columns []string
	Filters []Filter
	Orders  []Order
	Limit   int
}

// Gateway executes queries against a catalog backend.
type Gateway interface {
	Select(ctx context.Context, q Query) ([]Row, error)
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ErrInvalidQuery is wrapped by Validate failures.
var ErrInvalidQuery = errors.New("catalog: invalid query")

// From starts a query on table selecting every column.
func From(table string) Query {
	return Query{Table: table}
}

// Select restricts the returned columns.
func (q Query) Select(columns ...string) Query {
	q.Columns = append([]string(nil), columns...)
	return q
}

// Eq adds an equality filter.
func (q Query) Eq(column string, value any) Query {
	return q.with(Filter{Column: column, Op: OpEq, Value: value})
}

// ILike adds a case-insensitive substring filter. substring is matched
// literally; wildcard characters in it carry no special meaning.
func (q Query) ILike(column, substring string) Query {
	return q.with(Filter{Column: column, Op: OpILike, Value: substring})
}

// Order appends a sort key. Earlier keys take precedence.
func (q Query) Order(column string, descending bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Column: column, Descending: descending})
	return q
}

// WithLimit caps the number of returned rows. Zero means unlimited.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

func (q Query) with(f Filter) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), f)
	return q
}

// Validate checks identifiers and limits before a backend renders the query.
func (q Query) Validate() error {
	if !identRe.MatchString(q.Table) {
		return fmt.Errorf("%w: table %q", ErrInvalidQuery, q.Table)
	}
	for _, c := range q.Columns {
		if c != "*" && !identRe.MatchString(c) {
			return fmt.Errorf("%w: column %q", ErrInvalidQuery, c)
		}
	}
	for _, f := range q.Filters {
		if !identRe.MatchString(f.Column) {
			return fmt.Errorf("%w: filter column %q", ErrInvalidQuery, f.Column)
		}
		switch f.Op {
		case OpEq:
		case OpILike:
			if _, ok := f.Value.(string); !ok {
				return fmt.Errorf("%w: ilike on %q needs a string", ErrInvalidQuery, f.Column)
			}
		default:
			return fmt.Errorf("%w: operator %q", ErrInvalidQuery, f.Op)
		}
	}
	for _, o := range q.Orders {
		if !identRe.MatchString(o.Column) {
			return fmt.Errorf("%w: order column %q", ErrInvalidQuery, o.Column)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

func (q Query) selectList() []string {
	if len(q.Columns) == 0 {
		return []string{"*"}
	}
	return q.Columns
}

// String renders the query for logs.
func (q Query) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s)", q.Table, strings.Join(q.selectList(), ","))
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " %s.%s=%v", f.Column, f.Op, f.Value)
	}
	for _, o := range q.Orders {
		dir := "asc"
		if o.Descending {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order=%s.%s", o.Column, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " limit=%d", q.Limit)
	}
	return b.String()
}

// escapeLike escapes the LIKE metacharacters so s is matched literally with
// backslash as the escape character.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
