package artifact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joncooperworks/pluginstall/credentials"
	"github.com/joncooperworks/pluginstall/observability"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	body, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestFetch_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), srv.URL+"/missing.zip")

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotFound, te.StatusCode)
	assert.Contains(t, err.Error(), "404")
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewFetcher().Fetch(context.Background(), addr)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.StatusCode)
}

func TestFetch_InvalidURL(t *testing.T) {
	_, err := NewFetcher().Fetch(context.Background(), "://bad")

	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestFetch_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		// Chunked so the limit is enforced while reading, not from Content-Length.
		w.(http.Flusher).Flush()
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	f := NewFetcher(WithMaxBytes(16))
	_, err := f.Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)

	body, err := NewFetcher(WithMaxBytes(64)).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, body, 64)
}

func TestFetch_DeclaredLengthOverLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	_, err := NewFetcher(WithMaxBytes(16)).Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetch_BearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	store := credentials.NewMockStore(map[string]string{u.Hostname(): "s3cret"})

	_, err = NewFetcher(WithCredentials(store), WithUserAgent("test-agent")).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Bearer s3cret", got)
}

func TestFetch_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFetcher().Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchArchive_RecordsSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	_, err := NewFetcher(WithMetrics(metrics)).FetchArchive(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ArchiveSize))
}

func TestFetchRepository(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"InternalName": "A", "DownloadLinkInstall": "https://example.com/a.zip", "Punchline": "ignored"},
			{"InternalName": "B", "DownloadLinkInstall": "https://example.com/b.zip", "AssemblyVersion": "1.0.0.0"}
		]`))
	}))
	defer srv.Close()

	plugins, err := NewFetcher().FetchRepository(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "A", plugins[0].InternalName)
	assert.Equal(t, "https://example.com/b.zip", plugins[1].DownloadLinkInstall)
	assert.Equal(t, "1.0.0.0", plugins[1].AssemblyVersion)
}

func TestFetchRepository_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not": "a list"}`))
	}))
	defer srv.Close()

	_, err := NewFetcher().FetchRepository(context.Background(), srv.URL)
	assert.Error(t, err)
}
