package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luansfranca/sopromocoes/catalog"
	"github.com/luansfranca/sopromocoes/models"
	"github.com/luansfranca/sopromocoes/presenter"
	"github.com/luansfranca/sopromocoes/storefront"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testCatalog() *catalog.Memory {
	mem := catalog.NewMemory()
	mem.Insert(catalog.TableCategories,
		catalog.Row{"id": int64(1), "slug": "games", "name": "Games"},
	)
	add := func(id, title string, featured bool, category int64, age int) {
		row := catalog.Row{
			"id":          id,
			"title":       title,
			"sale_price":  10.0,
			"is_featured": featured,
			"created_at":  baseTime.Add(-time.Duration(age) * time.Minute),
		}
		if category != 0 {
			row["category_id"] = category
		}
		mem.Insert(catalog.TableProducts, row)
	}
	add("g1", "Console X", true, 1, 1)
	add("g2", "Controle", false, 1, 2)
	add("p1", "Smartphone A", true, 0, 3)
	add("p2", "Smartphone B", false, 0, 4)
	mem.Insert(catalog.TableReviews, catalog.Row{"id": "r1", "name": "Ana", "rating": int64(5), "comment": "Ótimo", "created_at": baseTime})
	return mem
}

type harness struct {
	srv     *Server
	ts      *httptest.Server
	metrics *storefront.Metrics
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	metrics := storefront.NewMetrics()
	gw := testCatalog()
	resolver, err := storefront.NewResolver(gw, 16, metrics)
	require.NoError(t, err)
	opts.Factory = func() (*storefront.Controller, error) {
		return storefront.New(gw, storefront.Options{Metrics: metrics, Resolver: resolver})
	}
	opts.Metrics = metrics

	srv, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{srv: srv, ts: ts, metrics: metrics}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func do(t *testing.T, c *http.Client, method, url, body string, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func headings(p presenter.Page) []string {
	out := make([]string, len(p.Sections))
	for i, s := range p.Sections {
		out[i] = s.Heading
	}
	return out
}

func TestNewSessionGetsCookieAndBrowsePage(t *testing.T) {
	h := newHarness(t, Options{})
	client := newClient(t)

	var page presenter.Page
	resp := do(t, client, http.MethodGet, h.ts.URL+"/api/page", "", &page)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, []string{"Ofertas em Destaque", "Outras Ofertas"}, headings(page))
	assert.Len(t, page.Sections[0].Cards, 2)
	assert.Len(t, page.Reviews, 1)
	assert.Equal(t, "light", page.Theme)
	assert.Equal(t, 1, h.srv.Sessions().Len())
}

func TestCategorySearchFlow(t *testing.T) {
	h := newHarness(t, Options{})
	client := newClient(t)

	var page presenter.Page
	do(t, client, http.MethodPost, h.ts.URL+"/api/categories/games/select", "", &page)
	assert.Equal(t, []string{"Ofertas em Destaque - games", "Outras Ofertas - games"}, headings(page))
	assert.Equal(t, "g1", page.Sections[0].Cards[0].ID)
	assert.Equal(t, "g2", page.Sections[1].Cards[0].ID)

	do(t, client, http.MethodPost, h.ts.URL+"/api/search", `{"query":"smartphone"}`, &page)
	assert.Equal(t, []string{"Resultados da Pesquisa"}, headings(page))
	require.Len(t, page.Sections[0].Cards, 2)
	assert.Equal(t, "p1", page.Sections[0].Cards[0].ID, "featured results first")

	do(t, client, http.MethodPost, h.ts.URL+"/api/search", `{"query":"   "}`, &page)
	assert.Equal(t, []string{"Ofertas em Destaque - games", "Outras Ofertas - games"}, headings(page))

	var view storefront.View
	do(t, client, http.MethodGet, h.ts.URL+"/api/view", "", &view)
	assert.Equal(t, storefront.ModeBrowsing, view.Mode)
	assert.Equal(t, "games", view.Category)

	do(t, client, http.MethodPost, h.ts.URL+"/api/categories/select", `{"slug":""}`, &page)
	assert.Equal(t, []string{"Ofertas em Destaque", "Outras Ofertas"}, headings(page))
}

func TestSessionsAreIsolated(t *testing.T) {
	h := newHarness(t, Options{})
	alice, bob := newClient(t), newClient(t)

	do(t, alice, http.MethodPost, h.ts.URL+"/api/categories/games/select", "", nil)

	var view storefront.View
	do(t, bob, http.MethodGet, h.ts.URL+"/api/view", "", &view)
	assert.Empty(t, view.Category)
	assert.Equal(t, 2, h.srv.Sessions().Len())
}

func TestSuggestions(t *testing.T) {
	h := newHarness(t, Options{})
	client := newClient(t)

	var suggestions []models.Suggestion
	do(t, client, http.MethodGet, h.ts.URL+"/api/suggestions?q=smart", "", &suggestions)
	require.Len(t, suggestions, 2)

	do(t, client, http.MethodGet, h.ts.URL+"/api/suggestions?q=", "", &suggestions)
	assert.NotNil(t, suggestions)
	assert.Empty(t, suggestions)

	var page presenter.Page
	do(t, client, http.MethodPost, h.ts.URL+"/api/suggestions/select", `{"id":"p2","title":"Smartphone B"}`, &page)
	assert.Equal(t, "Smartphone B", page.Query)
	require.Len(t, page.Sections, 1)
	assert.Equal(t, "p2", page.Sections[0].Cards[0].ID)
}

func TestToggleDisplay(t *testing.T) {
	h := newHarness(t, Options{})
	client := newClient(t)

	var body struct {
		DarkMode bool   `json:"dark_mode"`
		Theme    string `json:"theme"`
	}
	do(t, client, http.MethodPost, h.ts.URL+"/api/display/toggle", "", &body)
	assert.True(t, body.DarkMode)
	assert.Equal(t, "dark", body.Theme)

	do(t, client, http.MethodPost, h.ts.URL+"/api/display/toggle", "", &body)
	assert.False(t, body.DarkMode)
}

func TestEvictedSessionIsRestored(t *testing.T) {
	store := NewMemoryStore(16, time.Hour)
	h := newHarness(t, Options{Store: store, MaxSessions: 1})
	alice, bob := newClient(t), newClient(t)

	do(t, alice, http.MethodPost, h.ts.URL+"/api/categories/games/select", "", nil)
	do(t, alice, http.MethodPost, h.ts.URL+"/api/display/toggle", "", nil)
	do(t, bob, http.MethodGet, h.ts.URL+"/api/view", "", nil)
	require.Equal(t, 1, h.srv.Sessions().Len())

	var view storefront.View
	do(t, alice, http.MethodGet, h.ts.URL+"/api/view", "", &view)
	assert.Equal(t, "games", view.Category)
	assert.True(t, view.DarkMode)
	assert.Len(t, view.Featured, 1)
}

func TestBadRequestBody(t *testing.T) {
	h := newHarness(t, Options{})
	resp := do(t, newClient(t), http.MethodPost, h.ts.URL+"/api/search", `{"query":`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCategoriesEndpoint(t *testing.T) {
	h := newHarness(t, Options{})
	var categories []models.Category
	do(t, newClient(t), http.MethodGet, h.ts.URL+"/api/categories", "", &categories)
	assert.Len(t, categories, len(models.DefaultCategories))
	assert.Equal(t, "smartphone", categories[0].Slug)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, Options{})
	client := newClient(t)

	resp := do(t, client, http.MethodGet, h.ts.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	do(t, client, http.MethodGet, h.ts.URL+"/api/page", "", nil)

	resp, err := client.Get(h.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "storefront_queries_total")
	assert.Contains(t, string(body), `storefront_http_requests_total{code="200",route="/api/page"}`)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, Options{AllowedOrigins: []string{"https://sopromocoes.example"}})

	req, err := http.NewRequest(http.MethodOptions, h.ts.URL+"/api/search", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://sopromocoes.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "https://sopromocoes.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSelectionContextSurvivesClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodPost, "/api/search", nil).WithContext(ctx)
	cancel()

	sel := selectionContext(r)
	assert.NoError(t, sel.Err())
	_, hasDeadline := sel.Deadline()
	assert.False(t, hasDeadline)
}
