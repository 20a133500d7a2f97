package onemap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/resale-estimator/internal/resilience"
)

const searchBody = `{
	"found": 2, "totalNumPages": 1, "pageNum": 1,
	"results": [
		{"SEARCHVAL": "BLK 123", "BUILDING": "NIL", "ADDRESS": "123 BISHAN STREET 12 SINGAPORE 570123",
		 "POSTAL": "570123", "LATITUDE": "1.3521", "LONGITUDE": "103.8198"},
		{"SEARCHVAL": "OTHER", "ADDRESS": "ELSEWHERE", "LATITUDE": "1.4", "LONGITUDE": "103.9"}
	]
}`

func fastPolicy() resilience.Policy {
	return resilience.Policy{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRetryPolicy(fastPolicy()),
	}
	c := NewClient(append(base, opts...)...)
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

func TestSearch_FirstResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, searchPath, r.URL.Path)
		assert.Equal(t, "123 Bishan St 12", r.URL.Query().Get("searchVal"))
		assert.Equal(t, "Y", r.URL.Query().Get("returnGeom"))
		assert.Equal(t, "Y", r.URL.Query().Get("getAddrDetails"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, searchBody)
	}))
	defer srv.Close()

	loc, err := newTestClient(srv).Search(context.Background(), " 123 Bishan St 12 ")
	require.NoError(t, err)
	assert.Equal(t, 1.3521, loc.Latitude)
	assert.Equal(t, 103.8198, loc.Longitude)
	assert.Equal(t, "570123", loc.Postal)
	assert.Equal(t, "123 BISHAN STREET 12 SINGAPORE 570123", loc.Address)
}

func TestSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"found":0,"totalNumPages":0,"pageNum":1,"results":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNoResults)

	_, err = newTestClient(srv).Search(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestSearch_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, searchBody)
	}))
	defer srv.Close()

	loc, err := newTestClient(srv).Search(context.Background(), "bishan")
	require.NoError(t, err)
	assert.Equal(t, 1.3521, loc.Latitude)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_UpstreamUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), "bishan")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), "bishan")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := fastPolicy()
	p.Attempts = 1
	c := newTestClient(srv, WithRetryPolicy(p), WithBreaker(resilience.NewBreaker("onemap", 1, time.Hour)))

	_, err := c.Search(context.Background(), "bishan")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	_, err = c.Search(context.Background(), "bishan")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "open breaker skips the upstream")
}

func TestSearch_BadCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"found":1,"results":[{"LATITUDE":"n/a","LONGITUDE":"103.8"}]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Search(context.Background(), "bishan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LATITUDE")
}

func TestSearch_SendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cached-token", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, searchBody)
	}))
	defer srv.Close()

	cache := &MemoryTokenCache{}
	require.NoError(t, cache.Store(context.Background(), &Token{AccessToken: "cached-token", Expiry: time.Now().Add(time.Hour)}))
	ts := NewTokenSource(cache, "", "", srv.URL, srv.Client())

	_, err := newTestClient(srv, WithTokenSource(ts)).Search(context.Background(), "bishan")
	require.NoError(t, err)
}

func TestToken_Valid(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var nilTok *Token
	assert.False(t, nilTok.Valid(now))
	assert.False(t, (&Token{AccessToken: "x", Expiry: now}).Valid(now))
	assert.False(t, (&Token{Expiry: now.Add(time.Hour)}).Valid(now))
	assert.True(t, (&Token{AccessToken: "x", Expiry: now.Add(time.Second)}).Valid(now))
}

func TestTokenSource_FetchesAndCaches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, tokenPath, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "me@example.com", r.FormValue("email"))
		assert.Equal(t, "secret", r.FormValue("password"))
		_, _ = io.WriteString(w, `{"access_token":"fresh","expiry_timestamp":"1893456000"}`)
	}))
	defer srv.Close()

	cache := &FileTokenCache{Path: filepath.Join(t.TempDir(), "token.json")}
	ts := NewTokenSource(cache, "me@example.com", "secret", srv.URL, srv.Client())
	ts.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, int64(1893456000), tok.Expiry.Unix())

	tok, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, int32(1), calls.Load(), "second call served from cache")

	stored, err := cache.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
}

func TestTokenSource_RefreshesExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"access_token":"renewed","expiry_timestamp":1893456000}`)
	}))
	defer srv.Close()

	cache := &MemoryTokenCache{}
	require.NoError(t, cache.Store(context.Background(), &Token{AccessToken: "stale", Expiry: time.Unix(1000, 0)}))

	tok, err := NewTokenSource(cache, "a", "b", srv.URL, srv.Client()).Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "renewed", tok.AccessToken)
}

func TestTokenSource_Errors(t *testing.T) {
	_, err := NewTokenSource(&MemoryTokenCache{}, "", "", "http://127.0.0.1:0", nil).Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email and password")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err = NewTokenSource(&MemoryTokenCache{}, "a", "b", srv.URL, srv.Client()).Token(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestFileTokenCache_Missing(t *testing.T) {
	c := &FileTokenCache{Path: filepath.Join(t.TempDir(), "none.json")}
	tok, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tok)
}
