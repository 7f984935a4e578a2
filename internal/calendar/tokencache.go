package calendar

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"gitea.jw6.us/james/gigboard/internal/apperr"
	"gitea.jw6.us/james/gigboard/internal/metrics"
)

// ConsentFunc shows authURL to an operator and returns the authorization code they obtained.
type ConsentFunc func(ctx context.Context, authURL string) (string, error)

// TokenCache owns the persisted OAuth credential for the calendar account.
// A single instance is shared by every request in the process.
type TokenCache struct {
	cfg     *oauth2.Config
	path    string
	consent ConsentFunc

	timeout time.Duration

	mu     sync.Mutex
	loaded bool
	// stamp identifies the file version last read, so a credential written
	// by another process is picked up on the next Acquire.
	stamp fileStamp
	token *oauth2.Token
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

func (s fileStamp) same(o fileStamp) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

// NewTokenCache returns a cache backed by the JSON file at path. consent may
// be nil, in which case a missing or unrefreshable credential is an auth error.
func NewTokenCache(cfg *oauth2.Config, path string, consent ConsentFunc) *TokenCache {
	return &TokenCache{cfg: cfg, path: path, consent: consent, timeout: defaultTimeout}
}

// WithTimeout bounds each call to the token endpoint. Non-positive values keep the default.
func (c *TokenCache) WithTimeout(d time.Duration) *TokenCache {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Token implements oauth2.TokenSource.
func (c *TokenCache) Token() (*oauth2.Token, error) {
	return c.Acquire(context.Background())
}

// Acquire returns a valid access token, refreshing or re-consenting as needed.
func (c *TokenCache) Acquire(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != nil && c.token.Valid() {
		metrics.RecordTokenAcquisition("cache", "ok")
		return c.token, nil
	}

	c.reload()
	if c.token != nil && c.token.Valid() {
		metrics.RecordTokenAcquisition("file", "ok")
		return c.token, nil
	}

	var cause error = errors.New("no cached credential")
	if c.token != nil && c.token.RefreshToken != "" {
		tok, err := c.refresh(ctx, c.token.RefreshToken)
		if err == nil {
			metrics.RecordTokenAcquisition("refresh", "ok")
			return tok, nil
		}
		metrics.RecordTokenAcquisition("refresh", "error")
		slog.Warn("calendar credential refresh failed", "error", err)
		if apperr.Is(err, apperr.KindRemoteService) {
			return nil, err
		}
		cause = err
	}

	if c.consent == nil {
		metrics.RecordTokenAcquisition("consent", "unavailable")
		return nil, apperr.AuthWrap(cause, "calendar credential unavailable; run the auth command")
	}

	tok, err := c.runConsent(ctx)
	if err != nil {
		metrics.RecordTokenAcquisition("consent", "error")
		return nil, apperr.AuthWrap(err, "calendar authorization failed")
	}
	metrics.RecordTokenAcquisition("consent", "ok")
	return tok, nil
}

// reload reads the credential file when it changed since the last read.
// Callers hold c.mu.
func (c *TokenCache) reload() {
	info, err := os.Stat(c.path)
	if err != nil {
		if !c.loaded {
			if errors.Is(err, os.ErrNotExist) {
				slog.Info("no cached calendar credential", "path", c.path)
			} else {
				slog.Warn("cannot stat calendar credential", "path", c.path, "error", err)
			}
		}
		c.loaded = true
		return
	}
	stamp := fileStamp{modTime: info.ModTime(), size: info.Size()}
	if c.loaded && stamp.same(c.stamp) {
		return
	}
	c.loaded = true
	c.stamp = stamp

	tok, err := readToken(c.path)
	if err != nil {
		slog.Warn("ignoring unreadable calendar credential", "path", c.path, "error", err)
		return
	}
	c.token = tok
}

// withDeadline bounds a token endpoint call, whatever ctx the caller passed.
func (c *TokenCache) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	if _, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); !ok {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: c.timeout})
	}
	return ctx, cancel
}

func timedOut(ctx context.Context, err error) bool {
	var netErr net.Error
	return errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
}

func (c *TokenCache) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	tok, err := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		if timedOut(ctx, err) {
			return nil, apperr.RemoteService(err, "calendar credential refresh timed out")
		}
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	if err := c.store(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func (c *TokenCache) runConsent(ctx context.Context) (*oauth2.Token, error) {
	authURL := c.cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	code, err := c.consent(ctx, authURL)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("empty authorization code")
	}
	exchangeCtx, cancel := c.withDeadline(ctx)
	defer cancel()
	tok, err := c.cfg.Exchange(exchangeCtx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := c.store(tok); err != nil {
		return nil, err
	}
	slog.Info("stored new calendar credential", "path", c.path)
	return tok, nil
}

// store persists tok and makes it the cached value. Callers hold c.mu.
func (c *TokenCache) store(tok *oauth2.Token) error {
	if err := writeToken(c.path, tok); err != nil {
		return err
	}
	c.token = tok
	if info, err := os.Stat(c.path); err == nil {
		c.stamp = fileStamp{modTime: info.ModTime(), size: info.Size()}
		c.loaded = true
	}
	return nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("decode %s: empty credential", path)
	}
	return tok, nil
}

// writeToken replaces path atomically so a crash never leaves a truncated file.
func writeToken(path string, tok *oauth2.Token) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return fmt.Errorf("create credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := json.NewEncoder(tmp).Encode(tok); err != nil {
		tmp.Close()
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}

// PromptConsent prints the consent URL to out and reads the code from in.
func PromptConsent(in io.Reader, out io.Writer) ConsentFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, authURL string) (string, error) {
		fmt.Fprintf(out, "Go to the following link in your browser then type the authorization code:\n%v\n", authURL)
		fmt.Fprint(out, "Enter Authorization Code: ")
		code, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && code != "") {
			return "", fmt.Errorf("read authorization code: %w", err)
		}
		return strings.TrimSpace(code), nil
	}
}
