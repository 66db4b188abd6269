package n2yo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nyc = Observer{Lat: 40.7128, Lng: -74.0060, Alt: 10}

type recorder struct {
	mu   sync.Mutex
	uris []string
}

func (r *recorder) add(u string) {
	r.mu.Lock()
	r.uris = append(r.uris, u)
	r.mu.Unlock()
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.RequestURI())
		h(w, r)
	}))
	t.Cleanup(ts.Close)
	return New("secret-key", WithBaseURL(ts.URL+"/rest/v1/satellite"), WithLimiter(nil)), rec
}

func TestEndpointPaths(t *testing.T) {
	c, rec := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"info":{"satid":25544}}`))
	})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() Response
		want string
	}{
		{"tle", func() Response { return c.TLE(ctx, ISSNoradID) }, "/rest/v1/satellite/tle/25544&apiKey=secret-key"},
		{"positions", func() Response { return c.Positions(ctx, ISSNoradID, nyc, 3) }, "/rest/v1/satellite/positions/25544/40.7128/-74.006/10/3/&apiKey=secret-key"},
		{"visual", func() Response { return c.VisualPasses(ctx, ISSNoradID, nyc, 2, 300) }, "/rest/v1/satellite/visualpasses/25544/40.7128/-74.006/10/2/300/&apiKey=secret-key"},
		{"radio", func() Response { return c.RadioPasses(ctx, ISSNoradID, nyc, 2, 40) }, "/rest/v1/satellite/radiopasses/25544/40.7128/-74.006/10/2/40/&apiKey=secret-key"},
		{"above", func() Response { return c.Above(ctx, nyc, 70, 0) }, "/rest/v1/satellite/above/40.7128/-74.006/10/70/0/&apiKey=secret-key"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.call()
			require.True(t, res.OK(), res.Error)
			assert.JSONEq(t, `{"info":{"satid":25544}}`, string(res.Data))
			assert.NotContains(t, res.URL, "secret-key")
			assert.True(t, strings.HasSuffix(res.URL, "&apiKey=***"))
			assert.Equal(t, tt.want, rec.uris[i])
		})
	}
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name        string
		handler     http.HandlerFunc
		wantErr     string
		wantContent string
	}{
		{
			name:    "http status",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) },
			wantErr: "403 Forbidden",
		},
		{
			name:        "bad json",
			handler:     func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>oops secret-key</html>")) },
			wantErr:     "JSON decode error",
			wantContent: "<html>oops ***</html>",
		},
		{
			name:    "api error",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"error":"Invalid API Key!"}`)) },
			wantErr: "Invalid API Key!",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler)
			res := c.TLE(context.Background(), ISSNoradID)
			assert.False(t, res.OK())
			assert.Contains(t, res.Error, tt.wantErr)
			assert.Equal(t, tt.wantContent, res.Content)
			assert.Empty(t, res.Data)
			assert.NotContains(t, res.URL, "secret-key")
		})
	}
}

func TestMissingKeyMakesNoRequest(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer ts.Close()

	res := New("  ", WithBaseURL(ts.URL)).TLE(context.Background(), 1)
	assert.Equal(t, ErrNoAPIKey.Error(), res.Error)
	assert.False(t, called)
}

func TestTransportErrorIsScrubbed(t *testing.T) {
	c := New("secret-key", WithBaseURL("http://127.0.0.1:1/"), WithLimiter(nil),
		WithHTTPClient(&http.Client{Timeout: time.Second}))
	res := c.TLE(context.Background(), 1)
	require.False(t, res.OK())
	assert.NotContains(t, res.Error, "secret-key")
}

func TestCanceledContext(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.TLE(ctx, 1)
	assert.False(t, res.OK())
}
