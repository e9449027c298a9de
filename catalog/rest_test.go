package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
)

const testBaseURL = "http://catalog.test/rest/v1"

func newTestREST(t *testing.T, transport http.RoundTripper) *REST {
	t.Helper()
	r, err := NewREST(RESTOptions{
		BaseURL:   testBaseURL + "/",
		APIKey:    "anon-key",
		UserAgent: "sopromocoes-test",
		Timeout:   2 * time.Second,
		Transport: transport,
	})
	if err != nil {
		t.Fatalf("new rest: %v", err)
	}
	return r
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "unauthorized", err: nil, statusCode: http.StatusUnauthorized, expected: "forbidden"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusInternalServerError, expected: "other"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
		{name: "invalid query", err: fmt.Errorf("%w: table", ErrInvalidQuery), statusCode: 0, expected: "invalid_query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestFetchErrorMessage(t *testing.T) {
	err := fetchError(TableProducts, nil, http.StatusForbidden)
	if got, want := err.Error(), "fetch products: catalog forbidden: http status 403"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	var forbidden ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Fatalf("errors.As(%v, ErrForbidden) = false", err)
	}

	err = fetchError(TableReviews, context.DeadlineExceeded, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("errors.Is(%v, DeadlineExceeded) = false", err)
	}
	if got, want := err.Error(), "fetch user_reviews: catalog timeout: context deadline exceeded"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestRESTSelectEncodesQuery(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var got *http.Request
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/products", func(req *http.Request) (*http.Response, error) {
		got = req
		return httpmock.NewStringResponse(http.StatusOK,
			`[{"id":"p1","title":"Fone","sale_price":99.9,"is_featured":true,"category_id":3}]`), nil
	})

	r := newTestREST(t, transport)
	q := From(TableProducts).
		Eq("is_featured", true).
		Eq("category_id", int64(3)).
		Order("created_at", true).
		WithLimit(10)
	rows, err := r.Select(context.Background(), q)
	if err != nil {
		t.Fatalf("select: %v", err)
	}

	params := got.URL.Query()
	want := url.Values{
		"select":      {"*"},
		"is_featured": {"eq.true"},
		"category_id": {"eq.3"},
		"order":       {"created_at.desc"},
		"limit":       {"10"},
	}
	for key, values := range want {
		if params.Get(key) != values[0] {
			t.Errorf("param %s = %q, want %q", key, params.Get(key), values[0])
		}
	}
	if got.Header.Get("apikey") != "anon-key" || got.Header.Get("Authorization") != "Bearer anon-key" {
		t.Errorf("missing auth headers: %v", got.Header)
	}
	if got.Header.Get("User-Agent") != "sopromocoes-test" {
		t.Errorf("user agent = %q", got.Header.Get("User-Agent"))
	}

	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0]["sale_price"] != json.Number("99.9") {
		t.Fatalf("expected json.Number price, got %#v", rows[0]["sale_price"])
	}
}

func TestRESTSelectSearchParams(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var params url.Values
	transport.RegisterResponder(http.MethodGet, testBaseURL+"/products", func(req *http.Request) (*http.Response, error) {
		params = req.URL.Query()
		return httpmock.NewStringResponse(http.StatusOK, `[]`), nil
	})

	r := newTestREST(t, transport)
	q := From(TableProducts).
		Select("id", "title").
		ILike("title", "50%_off").
		Eq("category_id", nil).
		Order("is_featured", true).
		Order("created_at", true)
	rows, err := r.Select(context.Background(), q)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if rows != nil && len(rows) != 0 {
		t.Fatalf("expected no rows, got %v", rows)
	}

	if got := params.Get("title"); got != `ilike.*50\%\_off*` {
		t.Errorf("title filter = %q", got)
	}
	if got := params.Get("category_id"); got != "is.null" {
		t.Errorf("null filter = %q", got)
	}
	if got := params.Get("order"); got != "is_featured.desc,created_at.desc" {
		t.Errorf("order = %q", got)
	}
	if got := params.Get("select"); got != "id,title" {
		t.Errorf("select = %q", got)
	}
	if params.Has("limit") {
		t.Errorf("unexpected limit param")
	}
}

func TestRESTStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusUnauthorized, expected: "forbidden"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusServiceUnavailable, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder(http.MethodGet, testBaseURL+"/categories",
				httpmock.NewStringResponder(tt.status, `{"message":"nope"}`))

			r := newTestREST(t, transport)
			_, err := r.Select(context.Background(), From(TableCategories).Eq("slug", "games"))

			var fe *FetchError
			if !errors.As(err, &fe) || fe.Table != TableCategories {
				t.Fatalf("expected FetchError for categories, got %v", err)
			}
			if got := ErrorTypeLabel(err); got != tt.expected {
				t.Fatalf("label = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRESTTransportErrors(t *testing.T) {
	t.Run("connection", func(t *testing.T) {
		transport := httpmock.NewMockTransport()
		transport.RegisterResponder(http.MethodGet, testBaseURL+"/products",
			httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

		_, err := newTestREST(t, transport).Select(context.Background(), From(TableProducts))
		if got := ErrorTypeLabel(err); got != "connection" {
			t.Fatalf("label = %q, want connection (err %v)", got, err)
		}
	})

	t.Run("deadline", func(t *testing.T) {
		transport := httpmock.NewMockTransport()
		transport.RegisterResponder(http.MethodGet, testBaseURL+"/products", func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := newTestREST(t, transport).Select(ctx, From(TableProducts))
		if got := ErrorTypeLabel(err); got != "timeout" {
			t.Fatalf("label = %q, want timeout (err %v)", got, err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		transport := httpmock.NewMockTransport()
		transport.RegisterResponder(http.MethodGet, testBaseURL+"/products",
			httpmock.NewStringResponder(http.StatusOK, `{"not":"an array"}`))

		_, err := newTestREST(t, transport).Select(context.Background(), From(TableProducts))
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("expected FetchError, got %v", err)
		}
	})
}

func TestRESTRejectsInvalidQueryWithoutRequest(t *testing.T) {
	transport := httpmock.NewMockTransport()
	r := newTestREST(t, transport)

	_, err := r.Select(context.Background(), From("Bad Table"))
	if !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
	if n := transport.GetTotalCallCount(); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestNewRESTRequiresAbsoluteURL(t *testing.T) {
	for _, raw := range []string{"", "catalog.test/rest", "http://"} {
		if _, err := NewREST(RESTOptions{BaseURL: raw}); err == nil {
			t.Errorf("NewREST(%q) succeeded, want error", raw)
		}
	}
}
