package storefront

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/luansfranca/sopromocoes/catalog"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// scriptedGateway wraps a Memory catalog and lets tests delay or fail
// selected queries.
type scriptedGateway struct {
	inner catalog.Gateway

	mu    sync.Mutex
	hooks []hook
	calls []catalog.Query
}

type hook struct {
	match  func(catalog.Query) bool
	before func(ctx context.Context) error
}

func newScriptedGateway(inner catalog.Gateway) *scriptedGateway {
	return &scriptedGateway{inner: inner}
}

func (g *scriptedGateway) on(match func(catalog.Query) bool, before func(ctx context.Context) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, hook{match: match, before: before})
}

func (g *scriptedGateway) Select(ctx context.Context, q catalog.Query) ([]catalog.Row, error) {
	g.mu.Lock()
	g.calls = append(g.calls, q)
	hooks := append([]hook(nil), g.hooks...)
	g.mu.Unlock()

	for _, h := range hooks {
		if !h.match(q) {
			continue
		}
		if err := h.before(ctx); err != nil {
			return nil, &catalog.FetchError{Table: q.Table, Err: err}
		}
	}
	return g.inner.Select(ctx, q)
}

func (g *scriptedGateway) callCount(match func(catalog.Query) bool) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, q := range g.calls {
		if match(q) {
			n++
		}
	}
	return n
}

func hasFilter(column string, value any) func(catalog.Query) bool {
	return func(q catalog.Query) bool {
		for _, f := range q.Filters {
			if f.Column == column && fmt.Sprint(f.Value) == fmt.Sprint(value) {
				return true
			}
		}
		return false
	}
}

func isTable(table string) func(catalog.Query) bool {
	return func(q catalog.Query) bool { return q.Table == table }
}

func isSearch(q catalog.Query) bool {
	return q.Table == catalog.TableProducts && q.Limit == SearchLimit
}

func fail(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

// product builds a products row created minutesAgo before baseTime.
func product(id, title string, featured bool, categoryID int64, minutesAgo int) catalog.Row {
	row := catalog.Row{
		"id":               id,
		"title":            title,
		"description":      "oferta " + id,
		"original_price":   200.0,
		"sale_price":       150.0,
		"image_url":        "https://img.example/" + id + ".jpg",
		"marketplace_name": "Loja",
		"product_url":      "https://loja.example/" + id,
		"is_featured":      featured,
		"created_at":       baseTime.Add(-time.Duration(minutesAgo) * time.Minute),
	}
	if categoryID != 0 {
		row["category_id"] = categoryID
	}
	return row
}

// seedCatalog loads the games/livros scenario: 3 featured and 2 other games,
// one featured and one other book, one uncategorised featured deal.
func seedCatalog(t *testing.T) *catalog.Memory {
	t.Helper()
	mem := catalog.NewMemory()
	mem.Insert(catalog.TableCategories,
		catalog.Row{"id": int64(1), "slug": "games", "name": "Games"},
		catalog.Row{"id": int64(2), "slug": "livros", "name": "Livros"},
	)
	mem.Insert(catalog.TableProducts,
		product("g1", "Console X", true, 1, 1),
		product("g2", "Controle Pro", true, 1, 2),
		product("g3", "Jogo Aventura", true, 1, 3),
		product("g4", "Headset Gamer", false, 1, 4),
		product("g5", "Cadeira Gamer", false, 1, 5),
		product("b1", "Livro de Go", true, 2, 6),
		product("b2", "Livro de SQL", false, 2, 7),
		product("x1", "Cupom Geral", true, 0, 8),
	)
	mem.Insert(catalog.TableReviews,
		catalog.Row{"id": "r1", "name": "Ana", "rating": int64(5), "comment": "Ótimo", "created_at": baseTime},
	)
	return mem
}
