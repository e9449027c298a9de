package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

// RESTOptions configures a REST gateway.
type RESTOptions struct {
	// BaseURL is the REST root of the hosted database, e.g.
	// https://project.supabase.co/rest/v1.
	BaseURL string
	// APIKey is the anonymous (read-only) key of the project.
	APIKey    string
	Timeout   time.Duration
	UserAgent string
	Transport http.RoundTripper
}

// REST reads the catalog through a PostgREST-compatible HTTP endpoint.
type REST struct {
	base   *url.URL
	apiKey string
	ua     string
	client *http.Client
}

// NewREST builds a REST gateway. A nil Transport gets a pooled default.
func NewREST(opts RESTOptions) (*REST, error) {
	parsed, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("catalog url must include scheme and host")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}

	return &REST{
		base:   parsed,
		apiKey: opts.APIKey,
		ua:     opts.UserAgent,
		client: &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

// Select issues q as a single GET request.
func (r *REST) Select(ctx context.Context, q Query) ([]Row, error) {
	if err := q.Validate(); err != nil {
		return nil, &FetchError{Table: q.Table, Err: err}
	}

	endpoint := r.base.JoinPath(q.Table)
	endpoint.RawQuery = encodeParams(q).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &FetchError{Table: q.Table, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	if r.ua != "" {
		req.Header.Set("User-Agent", r.ua)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fetchError(q.Table, err, 0)
	}
	defer resp.Body.Close()

	slog.Debug("catalog request",
		slog.String("query", q.String()),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fetchError(q.Table, fmt.Errorf("http status %d: %s", resp.StatusCode, bytes.TrimSpace(body)), resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var rows []Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fetchError(q.Table, fmt.Errorf("decode response: %w", err), 0)
	}
	return rows, nil
}

func encodeParams(q Query) url.Values {
	params := url.Values{}
	params.Set("select", strings.Join(q.selectList(), ","))
	for _, f := range q.Filters {
		switch f.Op {
		case OpEq:
			if f.Value == nil {
				params.Add(f.Column, "is.null")
				continue
			}
			params.Add(f.Column, "eq."+formatValue(f.Value))
		case OpILike:
			params.Add(f.Column, "ilike.*"+escapeLike(f.Value.(string))+"*")
		}
	}
	if len(q.Orders) > 0 {
		keys := make([]string, 0, len(q.Orders))
		for _, o := range q.Orders {
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			keys = append(keys, o.Column+"."+dir)
		}
		params.Set("order", strings.Join(keys, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return params
}

func formatValue(v any) string {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val)
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(val)
	}
}
