package storefront

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luansfranca/sopromocoes/catalog"
	"github.com/luansfranca/sopromocoes/models"
	"github.com/luansfranca/sopromocoes/parser"
)

// Query kinds, used as metric labels.
const (
	kindFeatured   = "featured"
	kindOther      = "other"
	kindCategory   = "category"
	kindSearch     = "search"
	kindSuggestion = "suggestion"
	kindReviews    = "reviews"
)

// Options configures a Controller.
type Options struct {
	// QueryTimeout bounds each catalog query. Expiry counts as a failure.
	QueryTimeout time.Duration
	Policy       FailurePolicy
	Metrics      *Metrics
	// Resolver may be shared between controllers. When nil a private one
	// is created.
	Resolver *Resolver
}

// Controller holds one visitor's selection and the lists derived from it.
//
// Every request carries the generation of the selection it was issued
// under. When it completes after the selection moved on, its result is
// dropped, so a slow response for an old category never replaces the lists
// of the current one. Superseded requests are also cancelled.
//
// Fetch failures never surface as errors: they are logged and the affected
// list becomes empty.
type Controller struct {
	gw       catalog.Gateway
	resolver *Resolver
	metrics  *Metrics
	timeout  time.Duration
	policy   FailurePolicy

	mu    sync.Mutex
	state state

	browseGen  uint64
	searchGen  uint64
	suggestGen uint64

	browseCancel  context.CancelFunc
	searchCancel  context.CancelFunc
	suggestCancel context.CancelFunc
}

// New builds a controller in the initial Browsing{category: none} state.
// Nothing is fetched until Start or an operation is called.
func New(gw catalog.Gateway, opts Options) (*Controller, error) {
	if gw == nil {
		return nil, errors.New("storefront: gateway must be non-nil")
	}
	timeout := opts.QueryTimeout
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	resolver := opts.Resolver
	if resolver == nil {
		r, err := NewResolver(gw, DefaultResolverCacheSize, opts.Metrics)
		if err != nil {
			return nil, err
		}
		resolver = r
	}
	return &Controller{
		gw:       gw,
		resolver: resolver,
		metrics:  opts.Metrics,
		timeout:  timeout,
		policy:   opts.Policy,
		state: state{
			featured: []models.Product{},
			other:    []models.Product{},
			reviews:  []models.Review{},
		},
	}, nil
}

// Start loads the browse lists and the footer reviews concurrently.
func (c *Controller) Start(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		c.RefreshBrowseLists(ctx)
		return nil
	})
	g.Go(func() error {
		c.LoadReviews(ctx)
		return nil
	})
	_ = g.Wait()
}

// Restore reapplies a persisted selection and loads everything it implies.
func (c *Controller) Restore(ctx context.Context, sel models.Selection) {
	c.mu.Lock()
	c.state.category = strings.TrimSpace(sel.Category)
	c.state.darkMode = sel.DarkMode
	c.mu.Unlock()

	c.Start(ctx)
	if strings.TrimSpace(sel.Query) != "" {
		c.Search(ctx, sel.Query)
	}
}

// View returns a snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.view(c.policy)
}

// Selection returns the persistable part of the state. The query is only
// included while a search is active.
func (c *Controller) Selection() models.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel := models.Selection{
		Category: c.state.category,
		DarkMode: c.state.darkMode,
	}
	if c.state.searchResults != nil {
		sel.Query = c.state.query
	}
	return sel
}

// SetDarkMode sets the display-mode flag.
func (c *Controller) SetDarkMode(on bool) {
	c.mu.Lock()
	c.state.darkMode = on
	c.mu.Unlock()
}

// ToggleDarkMode flips the display-mode flag and returns the new value.
func (c *Controller) ToggleDarkMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.darkMode = !c.state.darkMode
	return c.state.darkMode
}

// SelectCategory switches to browsing slug. Any active or in-flight search
// is dropped; the submitted search text stays for display. An empty slug or
// one matching no category shows every product.
func (c *Controller) SelectCategory(ctx context.Context, slug string) {
	c.mu.Lock()
	c.state.category = strings.TrimSpace(slug)
	c.state.searchResults = nil
	c.state.searchFailed = false
	c.searchGen++
	if c.searchCancel != nil {
		c.searchCancel()
		c.searchCancel = nil
	}
	c.mu.Unlock()

	c.RefreshBrowseLists(ctx)
}

// RefreshBrowseLists reloads the featured and other lists for the current
// category. Both queries run concurrently and both lists are replaced
// together; a list whose query failed becomes empty. If ctx ends before the
// queries complete, the previous lists are kept.
func (c *Controller) RefreshBrowseLists(ctx context.Context) {
	c.mu.Lock()
	c.browseGen++
	gen := c.browseGen
	category := c.state.category
	if c.browseCancel != nil {
		c.browseCancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.browseCancel = cancel
	c.mu.Unlock()
	defer cancel()

	categoryID := c.resolveCategory(reqCtx, category)

	var (
		featured, other       []models.Product
		featuredErr, otherErr error
		g                     errgroup.Group
	)
	g.Go(func() error {
		featured, featuredErr = c.fetchProducts(reqCtx, kindFeatured, browseQuery(true, categoryID))
		return nil
	})
	g.Go(func() error {
		other, otherErr = c.fetchProducts(reqCtx, kindOther, browseQuery(false, categoryID))
		return nil
	})
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.browseGen {
		c.metrics.IncStale("browse")
		slog.Debug("discarding stale browse lists", slog.String("category", category))
		return
	}
	if ctx.Err() != nil {
		slog.Debug("browse abandoned by caller, keeping previous lists", slog.String("category", category))
		return
	}
	c.state.featured = featured
	c.state.other = other
	c.state.browseFailed = featuredErr != nil || otherErr != nil
}

// Search runs a title search for query. Blank input ends search mode. A
// failed search shows an empty result list, not browse mode. A search whose
// ctx ends first leaves the previous results in place.
func (c *Controller) Search(ctx context.Context, query string) {
	trimmed := strings.TrimSpace(query)

	c.mu.Lock()
	c.searchGen++
	gen := c.searchGen
	if c.searchCancel != nil {
		c.searchCancel()
		c.searchCancel = nil
	}
	if trimmed == "" {
		c.state.query = ""
		c.state.searchResults = nil
		c.state.searchFailed = false
		c.mu.Unlock()
		return
	}
	c.state.query = query
	reqCtx, cancel := context.WithCancel(ctx)
	c.searchCancel = cancel
	c.mu.Unlock()
	defer cancel()

	results, err := c.fetchProducts(reqCtx, kindSearch, searchQuery(trimmed))

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.searchGen {
		c.metrics.IncStale(kindSearch)
		slog.Debug("discarding stale search results", slog.String("query", trimmed))
		return
	}
	if ctx.Err() != nil {
		return
	}
	c.state.searchResults = results
	c.state.searchFailed = err != nil
}

// Suggest refreshes the inline suggestion list for the text typed so far.
// It never changes the display mode.
func (c *Controller) Suggest(ctx context.Context, input string) {
	trimmed := strings.TrimSpace(input)

	c.mu.Lock()
	c.suggestGen++
	gen := c.suggestGen
	if c.suggestCancel != nil {
		c.suggestCancel()
		c.suggestCancel = nil
	}
	if trimmed == "" {
		c.state.suggestions = nil
		c.mu.Unlock()
		return
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.suggestCancel = cancel
	c.mu.Unlock()
	defer cancel()

	q := catalog.From(catalog.TableProducts).
		Select("id", "title", "image_url", "marketplace_name").
		ILike("title", trimmed).
		WithLimit(SuggestionLimit)
	rows, _ := c.fetch(reqCtx, kindSuggestion, q)

	suggestions := make([]models.Suggestion, 0, len(rows))
	for _, r := range rows {
		suggestions = append(suggestions, parser.Suggestion(r))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.suggestGen {
		c.metrics.IncStale(kindSuggestion)
		return
	}
	if ctx.Err() != nil {
		return
	}
	c.state.suggestions = suggestions
}

// ClearSuggestions hides the suggestion list and drops any pending lookup.
func (c *Controller) ClearSuggestions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suggestGen++
	if c.suggestCancel != nil {
		c.suggestCancel()
		c.suggestCancel = nil
	}
	c.state.suggestions = nil
}

// SelectSuggestion submits the suggestion's title as the search query.
func (c *Controller) SelectSuggestion(ctx context.Context, s models.Suggestion) {
	c.ClearSuggestions()
	c.Search(ctx, s.Title)
}

// LoadReviews fetches the latest footer reviews.
func (c *Controller) LoadReviews(ctx context.Context) {
	q := catalog.From(catalog.TableReviews).
		Order("created_at", true).
		WithLimit(ReviewLimit)
	rows, _ := c.fetch(ctx, kindReviews, q)
	if ctx.Err() != nil {
		return
	}

	reviews := make([]models.Review, 0, len(rows))
	for _, r := range rows {
		reviews = append(reviews, parser.Review(r))
	}

	c.mu.Lock()
	c.state.reviews = reviews
	c.mu.Unlock()
}

func (c *Controller) resolveCategory(ctx context.Context, slug string) *int64 {
	if slug == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.metrics.IncQuery(kindCategory)
	id, found, err := c.resolver.Resolve(ctx, slug)
	if err != nil {
		c.logFailure(ctx, kindCategory, err)
		return nil
	}
	if !found {
		slog.Debug("category not found, showing all products", slog.String("slug", slug))
		return nil
	}
	return &id
}

func (c *Controller) fetchProducts(ctx context.Context, kind string, q catalog.Query) ([]models.Product, error) {
	rows, err := c.fetch(ctx, kind, q)
	products, skipped := parser.Products(rows)
	if skipped > 0 {
		slog.Warn("skipped invalid product rows", slog.String("kind", kind), slog.Int("skipped", skipped))
	}
	return products, err
}

// fetch runs q under the query timeout. On failure it logs, counts and
// returns no rows alongside the error.
func (c *Controller) fetch(ctx context.Context, kind string, q catalog.Query) ([]catalog.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.metrics.IncQuery(kind)
	start := time.Now()
	rows, err := c.gw.Select(ctx, q)
	c.metrics.ObserveDuration(kind, time.Since(start))
	if err != nil {
		c.logFailure(ctx, kind, err)
		return nil, err
	}
	return rows, nil
}

func (c *Controller) logFailure(ctx context.Context, kind string, err error) {
	if errors.Is(context.Cause(ctx), context.Canceled) {
		slog.Debug("catalog query cancelled", slog.String("kind", kind))
		return
	}
	label := catalog.ErrorTypeLabel(err)
	c.metrics.IncFailure(kind, label)
	slog.Error("catalog query failed",
		slog.String("kind", kind),
		slog.String("error_type", label),
		slog.Any("error", err),
	)
}

func browseQuery(featured bool, categoryID *int64) catalog.Query {
	q := catalog.From(catalog.TableProducts).
		Eq("is_featured", featured).
		Order("created_at", true).
		WithLimit(BrowseLimit)
	if categoryID != nil {
		q = q.Eq("category_id", *categoryID)
	}
	return q
}

func searchQuery(text string) catalog.Query {
	return catalog.From(catalog.TableProducts).
		ILike("title", text).
		Order("is_featured", true).
		Order("created_at", true).
		WithLimit(SearchLimit)
}
