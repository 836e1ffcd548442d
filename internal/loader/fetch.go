package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Fetcher decodes the JSON document at source into v.
type Fetcher interface {
	Fetch(ctx context.Context, source string, v any) error
}

type loggingRoundTripper struct {
	rt  http.RoundTripper
	log *zap.Logger
}

func (l *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.rt.RoundTrip(req)
	if err != nil {
		l.log.Warn("http request failed", zap.String("method", req.Method), zap.Stringer("url", req.URL), zap.Error(err))
		return nil, err
	}
	l.log.Debug("http request",
		zap.String("method", req.Method),
		zap.Stringer("url", req.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	return resp, nil
}

// NewHTTPClient wraps the default transport with request logging.
func NewHTTPClient(log *zap.Logger, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &loggingRoundTripper{rt: http.DefaultTransport, log: log},
	}
}

// HTTPFetcher appends a random rnd query parameter so intermediaries never
// serve a stale table definition.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, source string, v any) error {
	u, err := url.Parse(source)
	if err != nil {
		return fmt.Errorf("parse %s: %w", source, err)
	}
	q := u.Query()
	q.Set("rnd", strconv.FormatFloat(rand.Float64(), 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", source, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("fetch %s: non-200 response: %s", source, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", source, err)
	}
	return nil
}

type FileFetcher struct{}

func (FileFetcher) Fetch(_ context.Context, source string, v any) error {
	data, err := os.ReadFile(strings.TrimPrefix(source, "file://"))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", source, err)
	}
	return nil
}

// SchemeFetcher sends http(s) sources to HTTP and everything else to File.
type SchemeFetcher struct {
	HTTP Fetcher
	File Fetcher
}

func NewFetcher(client *http.Client) SchemeFetcher {
	return SchemeFetcher{HTTP: HTTPFetcher{Client: client}, File: FileFetcher{}}
}

func (f SchemeFetcher) Fetch(ctx context.Context, source string, v any) error {
	if isHTTP(source) {
		return f.HTTP.Fetch(ctx, source, v)
	}
	return f.File.Fetch(ctx, source, v)
}

func isHTTP(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Resolve interprets ref relative to the document at base.
func Resolve(base, ref string) string {
	if ref == "" || isHTTP(ref) || filepath.IsAbs(ref) || strings.HasPrefix(ref, "file://") {
		return ref
	}
	if isHTTP(base) {
		b, err := url.Parse(base)
		if err != nil {
			return ref
		}
		r, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return b.ResolveReference(r).String()
	}
	return filepath.Join(filepath.Dir(strings.TrimPrefix(base, "file://")), ref)
}
