package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"gitea.jw6.us/james/gigboard/internal/apperr"
)

type tokenServer struct {
	srv       *httptest.Server
	refreshes atomic.Int32
	exchanges atomic.Int32
	fail      atomic.Bool
	delay     atomic.Int64
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if d := time.Duration(ts.delay.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		if ts.fail.Load() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		var body map[string]any
		switch r.Form.Get("grant_type") {
		case "refresh_token":
			n := ts.refreshes.Add(1)
			body = map[string]any{"access_token": fmt.Sprintf("refreshed-%d", n), "token_type": "Bearer", "expires_in": 3600}
		case "authorization_code":
			ts.exchanges.Add(1)
			if r.Form.Get("code") != "good-code" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			body = map[string]any{"access_token": "consented", "refresh_token": "fresh-refresh", "token_type": "Bearer", "expires_in": 3600}
		default:
			http.Error(w, "unsupported grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *tokenServer) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.srv.URL + "/auth",
			TokenURL:  ts.srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func writeTokenFile(t *testing.T, path string, tok *oauth2.Token) {
	t.Helper()
	b, err := json.Marshal(tok)
	if err != nil {
		t.Fatalf("marshal token: %v", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
}

func readTokenFile(t *testing.T, path string) *oauth2.Token {
	t.Helper()
	tok, err := readToken(path)
	if err != nil {
		t.Fatalf("read token: %v", err)
	}
	return tok
}

func TestAcquireReturnsValidCachedToken(t *testing.T) {
	ts := newTokenServer(t)
	path := filepath.Join(t.TempDir(), "token.json")
	writeTokenFile(t, path, &oauth2.Token{AccessToken: "cached", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)})

	cache := NewTokenCache(ts.config(), path, nil)
	tok, err := cache.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if tok.AccessToken != "cached" {
		t.Fatalf("AccessToken = %q, want cached", tok.AccessToken)
	}
	if ts.refreshes.Load() != 0 {
		t.Fatal("valid token must not be refreshed")
	}
}

func TestAcquireRefreshesExpiredTokenAndPersists(t *testing.T) {
	ts := newTokenServer(t)
	path := filepath.Join(t.TempDir(), "token.json")
	writeTokenFile(t, path, &oauth2.Token{AccessToken: "stale", RefreshToken: "keep-me", Expiry: time.Now().Add(-time.Hour)})

	cache := NewTokenCache(ts.config(), path, nil)
	tok, err := cache.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if tok.AccessToken != "refreshed-1" {
		t.Fatalf("AccessToken = %q", tok.AccessToken)
	}

	persisted := readTokenFile(t, path)
	if persisted.AccessToken != "refreshed-1" {
		t.Errorf("persisted AccessToken = %q", persisted.AccessToken)
	}
	if persisted.RefreshToken != "keep-me" {
		t.Errorf("persisted RefreshToken = %q, want the original refresh token", persisted.RefreshToken)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the credential file, found %d entries", len(entries))
	}
}

func TestAcquireConcurrentRefreshHappensOnce(t *testing.T) {
	ts := newTokenServer(t)
	path := filepath.Join(t.TempDir(), "token.json")
	writeTokenFile(t, path, &oauth2.Token{AccessToken: "stale", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)})

	cache := NewTokenCache(ts.config(), path, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Token(); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Token() error = %v", err)
	}
	if got := ts.refreshes.Load(); got != 1 {
		t.Fatalf("refreshes = %d, want 1", got)
	}
}

func TestAcquireWithoutConsentFailsWithAuthError(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(t *testing.T, ts *tokenServer, path string)
	}{
		{
			name:  "missing file",
			setup: func(t *testing.T, ts *tokenServer, path string) {},
		},
		{
			name: "corrupt file",
			setup: func(t *testing.T, ts *tokenServer, path string) {
				if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "refresh rejected",
			setup: func(t *testing.T, ts *tokenServer, path string) {
				ts.fail.Store(true)
				writeTokenFile(t, path, &oauth2.Token{AccessToken: "stale", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Hour)})
			},
		},
		{
			name: "expired without refresh token",
			setup: func(t *testing.T, ts *tokenServer, path string) {
				writeTokenFile(t, path, &oauth2.Token{AccessToken: "stale", Expiry: time.Now().Add(-time.Hour)})
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTokenServer(t)
			path := filepath.Join(t.TempDir(), "token.json")
			tc.setup(t, ts, path)

			_, err := NewTokenCache(ts.config(), path, nil).Acquire(context.Background())
			if !apperr.Is(err, apperr.KindAuth) {
				t.Fatalf("expected auth error, got %v", err)
			}
		})
	}
}

func TestAcquirePicksUpCredentialWrittenLater(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(t *testing.T, ts *tokenServer, path string)
	}{
		{
			name:  "no file at startup",
			setup: func(t *testing.T, ts *tokenServer, path string) {},
		},
		{
			name: "revoked then reauthorized",
			setup: func(t *testing.T, ts *tokenServer, path string) {
				ts.fail.Store(true)
				writeTokenFile(t, path, &oauth2.Token{AccessToken: "stale", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Hour)})
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTokenServer(t)
			path := filepath.Join(t.TempDir(), "token.json")
			tc.setup(t, ts, path)

			cache := NewTokenCache(ts.config(), path, nil)
			if _, err := cache.Acquire(context.Background()); !apperr.Is(err, apperr.KindAuth) {
				t.Fatalf("first Acquire() error = %v, want auth error", err)
			}

			// Another process (the auth command) writes a fresh credential.
			writeTokenFile(t, path, &oauth2.Token{AccessToken: "reauthorized-token", RefreshToken: "new-refresh", Expiry: time.Now().Add(time.Hour)})

			tok, err := cache.Acquire(context.Background())
			if err != nil {
				t.Fatalf("Acquire() after writing the file error = %v", err)
			}
			if tok.AccessToken != "reauthorized-token" {
				t.Fatalf("AccessToken = %q, want reauthorized-token", tok.AccessToken)
			}
		})
	}
}

func TestAcquireBoundsSlowTokenEndpoint(t *testing.T) {
	ts := newTokenServer(t)
	ts.delay.Store(int64(5 * time.Second))
	path := filepath.Join(t.TempDir(), "token.json")
	writeTokenFile(t, path, &oauth2.Token{AccessToken: "stale", RefreshToken: "r", Expiry: time.Now().Add(-time.Hour)})

	cache := NewTokenCache(ts.config(), path, nil).WithTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err := cache.Token()
	if !apperr.Is(err, apperr.KindRemoteService) {
		t.Fatalf("expected remote service error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("refresh took %s, timeout not applied", elapsed)
	}
	if got := readTokenFile(t, path).AccessToken; got != "stale" {
		t.Fatalf("timed out refresh must not replace the credential, got %q", got)
	}
}

func TestAcquireRunsConsentOnceAndPersists(t *testing.T) {
	ts := newTokenServer(t)
	path := filepath.Join(t.TempDir(), "token.json")

	var prompts int
	consent := func(ctx context.Context, authURL string) (string, error) {
		prompts++
		if !strings.HasPrefix(authURL, ts.srv.URL+"/auth") || !strings.Contains(authURL, "access_type=offline") {
			t.Errorf("unexpected consent URL %q", authURL)
		}
		return " good-code\n", nil
	}

	cache := NewTokenCache(ts.config(), path, consent)
	for i := 0; i < 2; i++ {
		tok, err := cache.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if tok.AccessToken != "consented" {
			t.Fatalf("AccessToken = %q", tok.AccessToken)
		}
	}
	if prompts != 1 {
		t.Fatalf("consent prompts = %d, want 1", prompts)
	}
	if got := readTokenFile(t, path).RefreshToken; got != "fresh-refresh" {
		t.Errorf("persisted RefreshToken = %q", got)
	}
}

func TestAcquireConsentFailure(t *testing.T) {
	ts := newTokenServer(t)
	path := filepath.Join(t.TempDir(), "token.json")

	testCases := map[string]ConsentFunc{
		"prompt error": func(context.Context, string) (string, error) { return "", errors.New("closed") },
		"empty code":   func(context.Context, string) (string, error) { return "  ", nil },
		"bad code":     func(context.Context, string) (string, error) { return "bad-code", nil },
	}
	for name, consent := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := NewTokenCache(ts.config(), path, consent).Acquire(context.Background())
			if !apperr.Is(err, apperr.KindAuth) {
				t.Fatalf("expected auth error, got %v", err)
			}
			if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
				t.Fatalf("failed consent must not write a credential, stat err = %v", statErr)
			}
		})
	}
}

func TestPromptConsent(t *testing.T) {
	var out strings.Builder
	consent := PromptConsent(strings.NewReader("abc-123\n"), &out)

	code, err := consent(context.Background(), "https://accounts.example/auth")
	if err != nil {
		t.Fatalf("consent error = %v", err)
	}
	if code != "abc-123" {
		t.Fatalf("code = %q", code)
	}
	if !strings.Contains(out.String(), "https://accounts.example/auth") {
		t.Fatalf("consent URL not printed: %q", out.String())
	}
}
