package storefront

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/luansfranca/sopromocoes/catalog"
	"github.com/luansfranca/sopromocoes/parser"
)

// DefaultResolverCacheSize bounds the slug cache when none is configured.
const DefaultResolverCacheSize = 256

// Resolver maps category slugs to catalog ids with an exact-match lookup.
// Found ids are memoised; misses and failures are not, so a category added
// later becomes visible on the next lookup.
type Resolver struct {
	gw      catalog.Gateway
	cache   *lru.Cache[string, int64]
	metrics *Metrics
}

// NewResolver builds a resolver holding at most size slugs.
func NewResolver(gw catalog.Gateway, size int, metrics *Metrics) (*Resolver, error) {
	if size <= 0 {
		size = DefaultResolverCacheSize
	}
	cache, err := lru.New[string, int64](size)
	if err != nil {
		return nil, fmt.Errorf("category cache: %w", err)
	}
	return &Resolver{gw: gw, cache: cache, metrics: metrics}, nil
}

// Resolve returns the id of slug. found is false when no category has that
// slug; err is set only when the lookup itself failed.
func (r *Resolver) Resolve(ctx context.Context, slug string) (id int64, found bool, err error) {
	if id, ok := r.cache.Get(slug); ok {
		r.metrics.IncLookup("cache")
		return id, true, nil
	}

	q := catalog.From(catalog.TableCategories).Select("id").Eq("slug", slug).WithLimit(1)
	rows, err := r.gw.Select(ctx, q)
	if err != nil {
		r.metrics.IncLookup("error")
		return 0, false, err
	}
	if len(rows) == 0 {
		r.metrics.IncLookup("missing")
		return 0, false, nil
	}

	category, err := parser.Category(rows[0])
	if err != nil {
		r.metrics.IncLookup("error")
		return 0, false, &catalog.FetchError{Table: catalog.TableCategories, Err: err}
	}
	r.cache.Add(slug, category.ID)
	r.metrics.IncLookup("found")
	return category.ID, true, nil
}
