// Package artifact downloads plugin archives and repository listings and reads the archives.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joncooperworks/pluginstall/credentials"
	"github.com/joncooperworks/pluginstall/observability"
)

// Defaults for NewFetcher.
const (
	DefaultTimeout   = 60 * time.Second
	DefaultMaxBytes  = 256 << 20
	DefaultUserAgent = "pluginstall/1.0"
)

// ErrTooLarge is returned when a response body exceeds the fetcher's size limit.
var ErrTooLarge = errors.New("response exceeds size limit")

// TransportError describes a failed HTTP exchange. StatusCode is 0 when no response was received.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: server responded %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the shared HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithCredentials attaches bearer tokens from store to requests for hosts it knows.
func WithCredentials(store credentials.Store) Option {
	return func(f *Fetcher) {
		f.tokens = store
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBytes limits the size of a downloaded body. Zero or less keeps the default.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(f *Fetcher) {
		f.log = log
	}
}

// WithMetrics records archive sizes.
func WithMetrics(m *observability.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// Fetcher performs GET requests over one shared HTTP client. It is safe for concurrent use.
type Fetcher struct {
	client    *http.Client
	tokens    credentials.Store
	userAgent string
	maxBytes  int64
	log       *logrus.Logger
	metrics   *observability.Metrics
}

// NewFetcher creates a fetcher with a 60 second timeout and a 256 MiB body limit.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		maxBytes:  DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = observability.OrDefault(f.log)
	return f
}

// Fetch downloads the body at url into memory. Non-2xx responses are transport errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	f.authorize(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > f.maxBytes {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, resp.ContentLength, f.maxBytes)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)}
	}

	f.log.WithFields(logrus.Fields{
		"url":   url,
		"bytes": len(body),
	}).Debug("fetched")
	return body, nil
}

// FetchArchive downloads a plugin archive and records its size.
func (f *Fetcher) FetchArchive(ctx context.Context, url string) ([]byte, error) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	f.metrics.RecordArchiveSize(len(body))
	return body, nil
}

// RepoPlugin is one entry of a plugin repository listing. Unknown fields are ignored.
type RepoPlugin struct {
	InternalName        string `json:"InternalName"`
	Name                string `json:"Name,omitempty"`
	AssemblyVersion     string `json:"AssemblyVersion,omitempty"`
	DownloadLinkInstall string `json:"DownloadLinkInstall"`
}

// FetchRepository downloads and parses a repository listing.
func (f *Fetcher) FetchRepository(ctx context.Context, url string) ([]RepoPlugin, error) {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var plugins []RepoPlugin
	if err := json.Unmarshal(body, &plugins); err != nil {
		return nil, fmt.Errorf("failed to parse repository listing %s: %w", url, err)
	}
	return plugins, nil
}

func (f *Fetcher) authorize(req *http.Request) {
	if f.tokens == nil {
		return
	}

	host := req.URL.Hostname()
	token, err := f.tokens.Token(host)
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			f.log.WithError(err).WithField("host", host).Warn("failed to look up repository token, sending request without it")
		}
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}
