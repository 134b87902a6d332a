package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := New(Options{}, nil)
	resp, err := c.Get(context.Background(), srv.URL+"/robots.txt")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "text/plain", resp.MediaType())
	assert.Equal(t, "hello", string(resp.Body))

	_, err = c.Get(context.Background(), srv.URL+"/robots.txt")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second call should be served from cache")
}

func TestClient_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := New(Options{}, nil)
	resp, err := c.Get(context.Background(), srv.URL+"/missing.png")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	var fe *CandidateFetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.Status)
}

func TestClient_TimeoutIsCandidateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := New(Options{Timeout: 50 * time.Millisecond}, nil)
	start := time.Now()
	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var fe *CandidateFetchError
	assert.True(t, errors.As(err, &fe))
}

func TestClient_GuardBlocks(t *testing.T) {
	blocked := errors.New("blocked")
	c := New(Options{Guard: func(context.Context, string) error { return blocked }}, nil)

	_, err := c.Get(context.Background(), "http://10.0.0.1/logo.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, blocked)
}

func TestClient_GuardGetsRequestContext(t *testing.T) {
	type key struct{}
	var got any
	c := New(Options{Guard: func(ctx context.Context, _ string) error {
		got = ctx.Value(key{})
		return errors.New("stop")
	}}, nil)

	_, err := c.Get(context.WithValue(context.Background(), key{}, "audit"), "https://moh.gov.sa/logo.png")
	require.Error(t, err)
	assert.Equal(t, "audit", got)
}

func TestClient_HeadHasNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte("<urlset/>"))
	}))
	defer srv.Close()

	c := New(Options{}, nil)
	resp, err := c.Fetch(context.Background(), http.MethodHead, srv.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Empty(t, resp.Body)
	assert.Equal(t, "application/xml", resp.MediaType())
}

func TestClient_MaxBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	c := New(Options{MaxBody: 4}, nil)
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(resp.Body))
}
