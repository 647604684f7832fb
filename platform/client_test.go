package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eringen/storefront/content"
)

// graphQLServer dispatches on the operation name found in the query text.
type graphQLServer struct {
	t        *testing.T
	mu       sync.Mutex
	handlers map[string]func(vars map[string]any) (int, any)
	calls    map[string]int
	headers  []http.Header
}

func newGraphQLServer(t *testing.T) (*graphQLServer, *httptest.Server) {
	t.Helper()
	s := &graphQLServer{t: t, handlers: map[string]func(map[string]any) (int, any){}, calls: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *graphQLServer) on(op string, fn func(vars map[string]any) (int, any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[op] = fn
}

func (s *graphQLServer) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *graphQLServer) serve(w http.ResponseWriter, r *http.Request) {
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fields := strings.Fields(req.Query)
	if len(fields) < 2 {
		http.Error(w, "bad query", http.StatusBadRequest)
		return
	}
	op := strings.SplitN(fields[1], "(", 2)[0]

	s.mu.Lock()
	s.calls[op]++
	s.headers = append(s.headers, r.Header.Clone())
	fn := s.handlers[op]
	s.mu.Unlock()

	if fn == nil {
		s.t.Errorf("unexpected operation %q", op)
		http.Error(w, "unknown operation", http.StatusBadRequest)
		return
	}
	status, body := fn(req.Variables)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func gqlData(v any) any { return map[string]any{"data": v} }

func newTestClient(baseURL string) *Client {
	return NewClient(ClientOptions{
		BaseURL:       baseURL,
		TokenProvider: StaticToken("shpat_test"),
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
	})
}

func TestClientSendsBearerAndRequestID(t *testing.T) {
	s, srv := newGraphQLServer(t)
	s.on("fileStatus", func(map[string]any) (int, any) {
		return http.StatusOK, gqlData(map[string]any{"node": map[string]any{
			"id": "gid://shopify/MediaImage/1", "fileStatus": "READY",
			"image": map[string]any{"url": "https://cdn.example/a.jpg"},
		}})
	})

	f, err := newTestClient(srv.URL).File(context.Background(), "gid://shopify/MediaImage/1")
	require.NoError(t, err)
	assert.Equal(t, FileStatusReady, f.Status)
	assert.Equal(t, "https://cdn.example/a.jpg", f.URL)

	require.Len(t, s.headers, 1)
	assert.Equal(t, "Bearer shpat_test", s.headers[0].Get("Authorization"))
	assert.NotEmpty(t, s.headers[0].Get("X-Request-Id"))
}

func TestClientEndpointPath(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"node":null}}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL + "/", APIVersion: "2025-01", TokenProvider: StaticToken("t")})
	_, err := c.File(context.Background(), "gid://x/1")
	require.ErrorIs(t, err, content.ErrNotFound)
	assert.Equal(t, "/admin/api/2025-01/graphql.json", path.Load())
}

func TestClientRetriesServerErrors(t *testing.T) {
	s, srv := newGraphQLServer(t)
	var n int32
	s.on("fileStatus", func(map[string]any) (int, any) {
		if atomic.AddInt32(&n, 1) < 3 {
			return http.StatusServiceUnavailable, map[string]any{"errors": "down"}
		}
		return http.StatusOK, gqlData(map[string]any{"node": map[string]any{"id": "gid://x/1", "fileStatus": "PROCESSING"}})
	})

	f, err := newTestClient(srv.URL).File(context.Background(), "gid://x/1")
	require.NoError(t, err)
	assert.Equal(t, FileStatusProcessing, f.Status)
	assert.Equal(t, 3, s.count("fileStatus"))
}

func TestClientRetriesThrottled(t *testing.T) {
	s, srv := newGraphQLServer(t)
	var n int32
	s.on("fileStatus", func(map[string]any) (int, any) {
		if atomic.AddInt32(&n, 1) == 1 {
			return http.StatusOK, map[string]any{"errors": []any{
				map[string]any{"message": "Throttled", "extensions": map[string]any{"code": "THROTTLED"}},
			}}
		}
		return http.StatusOK, gqlData(map[string]any{"node": map[string]any{"id": "gid://x/1", "fileStatus": "UPLOADED"}})
	})

	_, err := newTestClient(srv.URL).File(context.Background(), "gid://x/1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.count("fileStatus"))
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	s, srv := newGraphQLServer(t)
	s.on("fileStatus", func(map[string]any) (int, any) {
		return http.StatusTooManyRequests, map[string]any{}
	})

	_, err := newTestClient(srv.URL).File(context.Background(), "gid://x/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")
	assert.Equal(t, 4, s.count("fileStatus"))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	s, srv := newGraphQLServer(t)
	s.on("fileStatus", func(map[string]any) (int, any) {
		return http.StatusUnauthorized, map[string]any{"errors": "bad token"}
	})

	_, err := newTestClient(srv.URL).File(context.Background(), "gid://x/1")
	require.Error(t, err)
	assert.Equal(t, 1, s.count("fileStatus"))
}

func TestClientRequiresToken(t *testing.T) {
	c := NewClient(ClientOptions{BaseURL: "http://127.0.0.1:1"})
	_, err := c.File(context.Background(), "gid://x/1")
	require.Error(t, err)

	c = NewClient(ClientOptions{BaseURL: "http://127.0.0.1:1", TokenProvider: func(context.Context) (string, error) {
		return "", errors.New("vault sealed")
	}})
	_, err = c.File(context.Background(), "gid://x/1")
	require.EqualError(t, err, "vault sealed")
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveRequest(op, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, op+":"+status)
}

func TestClientObservesEachOperationOnce(t *testing.T) {
	s, srv := newGraphQLServer(t)
	var n int32
	s.on("fileStatus", func(map[string]any) (int, any) {
		if atomic.AddInt32(&n, 1) == 1 {
			return http.StatusBadGateway, map[string]any{}
		}
		return http.StatusOK, gqlData(map[string]any{"node": nil})
	})
	obs := &recordingObserver{}
	c := NewClient(ClientOptions{BaseURL: srv.URL, TokenProvider: StaticToken("t"), BaseDelay: time.Millisecond, Observer: obs})

	_, _ = c.File(context.Background(), "gid://x/1")
	assert.Equal(t, []string{"fileStatus:ok"}, obs.calls)
}

func TestLocateAsset(t *testing.T) {
	s, srv := newGraphQLServer(t)
	statuses := map[string]map[string]any{
		"gid://x/ready":   {"id": "gid://x/ready", "fileStatus": "READY", "url": "https://cdn.example/f.pdf"},
		"gid://x/pending": {"id": "gid://x/pending", "fileStatus": "PROCESSING"},
		"gid://x/failed":  {"id": "gid://x/failed", "fileStatus": "FAILED"},
		"gid://x/video":   {"id": "gid://x/video", "fileStatus": "READY", "originalSource": map[string]any{"url": "https://cdn.example/v.mp4"}},
	}
	s.on("fileStatus", func(vars map[string]any) (int, any) {
		return http.StatusOK, gqlData(map[string]any{"node": statuses[vars["id"].(string)]})
	})
	c := newTestClient(srv.URL)
	ctx := context.Background()

	url, ready, err := c.LocateAsset(ctx, "gid://x/ready")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, "https://cdn.example/f.pdf", url)

	url, ready, err = c.LocateAsset(ctx, "gid://x/video")
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, "https://cdn.example/v.mp4", url)

	_, ready, err = c.LocateAsset(ctx, "gid://x/pending")
	require.NoError(t, err)
	assert.False(t, ready)

	_, _, err = c.LocateAsset(ctx, "gid://x/failed")
	require.ErrorIs(t, err, ErrAssetFailed)
}

func TestRetryDelay(t *testing.T) {
	c := NewClient(ClientOptions{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})
	assert.Equal(t, 100*time.Millisecond, c.retryDelay(1, ""))
	assert.Equal(t, 200*time.Millisecond, c.retryDelay(2, ""))
	assert.Equal(t, 400*time.Millisecond, c.retryDelay(3, ""))
	assert.Equal(t, time.Second, c.retryDelay(10, ""))
	assert.Equal(t, time.Second, c.retryDelay(1, "30"))
	assert.Equal(t, 100*time.Millisecond, c.retryDelay(1, "soon"))
}

func TestResourceKind(t *testing.T) {
	assert.Equal(t, "IMAGE", resourceKind("image/png"))
	assert.Equal(t, "VIDEO", resourceKind("video/mp4"))
	assert.Equal(t, "FILE", resourceKind("application/pdf"))
}
