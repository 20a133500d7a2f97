package onemap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/resale-estimator/internal/resilience"
)

const tokenPath = "/privateapi/auth/post/getToken"

// Token is a OneMap access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"-"`
}

// Valid reports whether the token can still be used at now.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.Expiry)
}

type tokenJSON struct {
	AccessToken     string          `json:"access_token"`
	ExpiryTimestamp json.RawMessage `json:"expiry_timestamp"`
}

// MarshalJSON writes the wire format with a unix expiry_timestamp.
func (t Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		AccessToken     string `json:"access_token"`
		ExpiryTimestamp string `json:"expiry_timestamp"`
	}{t.AccessToken, strconv.FormatInt(t.Expiry.Unix(), 10)})
}

// UnmarshalJSON accepts expiry_timestamp as a number or a numeric string.
func (t *Token) UnmarshalJSON(data []byte) error {
	var raw tokenJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts := strings.Trim(strings.TrimSpace(string(raw.ExpiryTimestamp)), `"`)
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return eris.Wrapf(err, "onemap: expiry_timestamp %q", ts)
	}
	t.AccessToken = raw.AccessToken
	t.Expiry = time.Unix(secs, 0).UTC()
	return nil
}

// TokenCache stores the current token between calls and processes.
type TokenCache interface {
	// Load returns the cached token, or nil when there is none.
	Load(ctx context.Context) (*Token, error)
	Store(ctx context.Context, t *Token) error
}

// MemoryTokenCache keeps the token in process memory.
type MemoryTokenCache struct {
	mu  sync.Mutex
	tok *Token
}

// Load returns the cached token.
func (m *MemoryTokenCache) Load(context.Context) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tok == nil {
		return nil, nil
	}
	cp := *m.tok
	return &cp, nil
}

// Store replaces the cached token.
func (m *MemoryTokenCache) Store(_ context.Context, t *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tok = &cp
	return nil
}

// FileTokenCache persists the token as JSON at Path.
type FileTokenCache struct {
	Path string
	mu   sync.Mutex
}

// Load reads the token file. A missing file is an empty cache.
func (f *FileTokenCache) Load(context.Context) (*Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "onemap: read token cache")
	}
	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "onemap: parse token cache")
	}
	return &t, nil
}

// Store writes the token file with owner-only permissions.
func (f *FileTokenCache) Store(_ context.Context, t *Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(t, "", "    ")
	if err != nil {
		return eris.Wrap(err, "onemap: marshal token")
	}
	return eris.Wrap(os.WriteFile(f.Path, data, 0o600), "onemap: write token cache")
}

// TokenSource returns a valid token, fetching a new one when the cached one
// has expired.
type TokenSource struct {
	cache      TokenCache
	email      string
	password   string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time

	mu sync.Mutex
}

// NewTokenSource returns a source backed by cache. baseURL defaults to DefaultBaseURL.
func NewTokenSource(cache TokenCache, email, password, baseURL string, hc *http.Client) *TokenSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenSource{
		cache:      cache,
		email:      email,
		password:   password,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
		now:        time.Now,
	}
}

// Token returns a cached token if still valid, otherwise requests a new one.
func (s *TokenSource) Token(ctx context.Context) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, err := s.cache.Load(ctx)
	if err != nil {
		zap.L().Warn("onemap: token cache unreadable", zap.Error(err))
	}
	if cached.Valid(s.now()) {
		return cached, nil
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Store(ctx, tok); err != nil {
		zap.L().Warn("onemap: token cache not written", zap.Error(err))
	}
	return tok, nil
}

func (s *TokenSource) fetch(ctx context.Context) (*Token, error) {
	if s.email == "" || s.password == "" {
		return nil, eris.New("onemap: email and password are required for a token")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range map[string]string{"email": s.email, "password": s.password} {
		if err := mw.WriteField(k, v); err != nil {
			return nil, eris.Wrap(err, "onemap: write token form")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "onemap: close token form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+tokenPath, &body)
	if err != nil {
		return nil, eris.Wrap(err, "onemap: build token request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(ErrUpstreamUnavailable, "token request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		se := &resilience.StatusError{Service: "onemap", Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		return nil, eris.Wrapf(ErrUpstreamUnavailable, "token: %v", se)
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, eris.Wrap(err, "onemap: parse token response")
	}
	if tok.AccessToken == "" {
		return nil, eris.New("onemap: token response has no access_token")
	}
	zap.L().Info("onemap: token refreshed", zap.Time("expiry", tok.Expiry))
	return &tok, nil
}
