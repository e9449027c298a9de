package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Memory is an in-process catalog. It evaluates queries with the same
// semantics as the remote backends and serves demos and tests.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

// NewMemory returns an empty catalog.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Row)}
}

// Insert appends rows to table.
func (m *Memory) Insert(table string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], cloneRow(r))
	}
}

// LoadFixtures reads a YAML document mapping table names to row lists.
func (m *Memory) LoadFixtures(r io.Reader) error {
	var doc map[string][]map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	for table, rows := range doc {
		if !identRe.MatchString(table) {
			return fmt.Errorf("fixtures: invalid table name %q", table)
		}
		for _, r := range rows {
			m.Insert(table, Row(r))
		}
	}
	return nil
}

// Select evaluates q against the stored rows.
func (m *Memory) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := q.Validate(); err != nil {
		return nil, &FetchError{Table: q.Table, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, fetchError(q.Table, err, 0)
	}

	m.mu.RLock()
	source, ok := m.tables[q.Table]
	if !ok {
		m.mu.RUnlock()
		return nil, fetchError(q.Table, fmt.Errorf("relation %q does not exist", q.Table), 404)
	}
	matched := make([]Row, 0, len(source))
	for _, r := range source {
		if matches(r, q.Filters) {
			matched = append(matched, r)
		}
	}
	m.mu.RUnlock()

	if len(q.Orders) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.Orders {
				c := compareValues(matched[i][o.Column], matched[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]Row, len(matched))
	for i, r := range matched {
		out[i] = project(r, q.Columns)
	}
	return out, nil
}

func matches(r Row, filters []Filter) bool {
	for _, f := range filters {
		v := r[f.Column]
		switch f.Op {
		case OpEq:
			if f.Value == nil {
				if v != nil {
					return false
				}
				continue
			}
			if v == nil || compareValues(v, f.Value) != 0 {
				return false
			}
		case OpILike:
			s, ok := v.(string)
			if !ok {
				return false
			}
			if !strings.Contains(strings.ToLower(s), strings.ToLower(f.Value.(string))) {
				return false
			}
		}
	}
	return true
}

func project(r Row, columns []string) Row {
	if len(columns) == 0 || (len(columns) == 1 && columns[0] == "*") {
		return cloneRow(r)
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		if c == "*" {
			return cloneRow(r)
		}
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// compareValues orders two column values. nil sorts first; values of
// unrelated kinds compare by their string form.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ab == bb:
				return 0
			case !ab:
				return -1
			default:
				return 1
			}
		}
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if at, ok := toTime(a); ok {
		if bt, ok := toTime(b); ok {
			return at.Compare(bt)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
