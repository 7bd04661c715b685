package spec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Fetcher retrieves the raw bytes of a remote document.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FetcherFunc adapts a plain function to Fetcher.
type FetcherFunc func(ctx context.Context, uri string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, uri string) ([]byte, error) { return f(ctx, uri) }

// HTTPFetcher fetches http/https documents, retrying transient failures
// (>=500, 429, or network errors) with exponential backoff.
type HTTPFetcher struct {
	Client      *http.Client
	MaxRetries  int
	BackoffBase time.Duration
}

// NewHTTPFetcher builds an HTTPFetcher from settings.
func NewHTTPFetcher(settings Settings) *HTTPFetcher {
	return &HTTPFetcher{
		Client:      &http.Client{Timeout: settings.HTTPTimeout},
		MaxRetries:  settings.MaxRetries,
		BackoffBase: settings.BackoffBase,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	var lastErr error
	backoff := f.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := f.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err == nil && resp.StatusCode < 300 {
			body, rerr := io.ReadAll(resp.Body)
			resp.Body.Close()
			return body, rerr
		}
		if err != nil {
			lastErr = err
		} else {
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				lastErr = fmt.Errorf("transient http error %d", resp.StatusCode)
				resp.Body.Close()
			} else {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				resp.Body.Close()
				return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

// openURI is the generic fallback used when no fetcher is injected: plain
// http/https GET with the default client, or a local read for file URIs.
func openURI(ctx context.Context, u *url.URL) ([]byte, error) {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return (&HTTPFetcher{MaxRetries: 1}).Fetch(ctx, u.String())
	case "", "file":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		return os.ReadFile(p)
	default:
		return nil, fmt.Errorf("unsupported ref scheme: %s", u.Scheme)
	}
}
