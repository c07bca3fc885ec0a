package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deploymenttheory/go-api-credential-dispatcher/coordinator"
	"github.com/deploymenttheory/go-api-credential-dispatcher/credentials"
	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
	"github.com/deploymenttheory/go-api-credential-dispatcher/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// apiFixture is an authorization server and a resource server sharing one token table.
type apiFixture struct {
	mu          sync.Mutex
	tokenGrants []string
	issued      map[string]bool
	tokenDelay  time.Duration

	auth *httptest.Server
	api  *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	f := &apiFixture{issued: map[string]bool{}}

	f.auth = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.tokenGrants = append(f.tokenGrants, r.PostForm.Get("grant_type"))
		token := "token-" + string(rune('a'+len(f.tokenGrants)-1))
		f.issued[token] = true
		delay := f.tokenDelay
		f.mu.Unlock()

		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(f.auth.Close)

	f.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		f.mu.Lock()
		ok := len(auth) > len("Bearer ") && f.issued[auth[len("Bearer "):]]
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message": "invalid token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"path": "` + r.URL.Path + `", "method": "` + r.Method + `"}`))
	}))
	t.Cleanup(f.api.Close)
	return f
}

func (f *apiFixture) Grants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokenGrants...)
}

func (f *apiFixture) Revoke(token string) {
	f.mu.Lock()
	delete(f.issued, token)
	f.mu.Unlock()
}

func (f *apiFixture) config() ClientConfig {
	return ClientConfig{
		BaseURL: f.api.URL + "/api/v1",
		OAuth2: OAuth2Config{
			TokenURL:     f.auth.URL + "/oauth/token",
			ClientID:     "dispatcher",
			ClientSecret: "s3cret",
		},
	}
}

func buildTestClient(t *testing.T, config ClientConfig, opts ...BuildOption) *Client {
	t.Helper()
	opts = append([]BuildOption{WithLogger(logger.NewNopLogger())}, opts...)
	client, err := BuildClient(config, true, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type echo struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func TestClientDoAcquiresTokenAndDecodes(t *testing.T) {
	f := newAPIFixture(t)
	client := buildTestClient(t, f.config())

	var out echo
	resp, err := client.Get(context.Background(), "/devices?page=2", &out)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, echo{Path: "/api/v1/devices", Method: http.MethodGet}, out)
	assert.Equal(t, []string{"client_credentials"}, f.Grants())
	assert.Equal(t, "token-a", client.Store().Access().Token)
}

func TestClientConcurrentCallsShareOneGrant(t *testing.T) {
	f := newAPIFixture(t)
	f.tokenDelay = 50 * time.Millisecond
	client := buildTestClient(t, f.config())

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			_, err := client.Post(ctx, "devices", map[string]string{"name": "laptop"}, nil)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, []string{"client_credentials"}, f.Grants())
	assert.Equal(t, int64(25), client.Coordinator.Metrics().Dispatched)
}

func TestClientRecoversFromRevokedToken(t *testing.T) {
	f := newAPIFixture(t)
	client := buildTestClient(t, f.config())

	_, err := client.Get(context.Background(), "devices", nil)
	require.NoError(t, err)

	f.Revoke("token-a")

	var out echo
	_, err = client.Delete(context.Background(), "devices/7", &out)
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, out.Method)
	assert.Equal(t, []string{"client_credentials", "client_credentials"}, f.Grants())
	assert.Equal(t, int64(1), client.Coordinator.Metrics().Retried401)
}

func TestClientWithoutOAuth2SendsUnauthenticated(t *testing.T) {
	f := newAPIFixture(t)
	config := f.config()
	config.OAuth2 = OAuth2Config{}
	client := buildTestClient(t, config)

	_, err := client.Get(context.Background(), "devices", nil)
	require.Error(t, err)
	assert.True(t, response.IsUnauthorized(err))
	assert.Empty(t, f.Grants())
}

func TestClientTraceHooks(t *testing.T) {
	f := newAPIFixture(t)
	var started atomic.Int32
	trace := &coordinator.Trace{
		OperationStart: func(op coordinator.Operation, _ credentials.PendingMode) {
			started.Add(1)
		},
	}
	client := buildTestClient(t, f.config(), WithTrace(trace))

	_, err := client.Get(context.Background(), "devices", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), started.Load())
}

func TestClientRelativeEndpointNeedsBaseURL(t *testing.T) {
	f := newAPIFixture(t)
	config := f.config()
	config.BaseURL = ""
	client := buildTestClient(t, config)

	_, err := client.Get(context.Background(), "devices", nil)
	assert.Error(t, err)

	_, err = client.Get(context.Background(), f.api.URL+"/absolute", nil)
	assert.NoError(t, err)
}

func TestBuildClientRejectsInvalidConfig(t *testing.T) {
	_, err := BuildClient(ClientConfig{MaxConcurrentRequests: -1}, true)
	assert.Error(t, err)

	_, err = BuildClient(ClientConfig{}, false)
	assert.Error(t, err)
}
