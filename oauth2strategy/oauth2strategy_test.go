package oauth2strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/deploymenttheory/go-api-credential-dispatcher/coordinator"
	"github.com/deploymenttheory/go-api-credential-dispatcher/credentials"
	"github.com/deploymenttheory/go-api-credential-dispatcher/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type tokenServer struct {
	mu     sync.Mutex
	grants []string
	forms  []map[string]string
	reject map[string]bool
	server *httptest.Server
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{reject: map[string]bool{}}
	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		grant := r.PostForm.Get("grant_type")

		ts.mu.Lock()
		ts.grants = append(ts.grants, grant)
		ts.forms = append(ts.forms, map[string]string{
			"refresh_token": r.PostForm.Get("refresh_token"),
			"username":      r.PostForm.Get("username"),
			"password":      r.PostForm.Get("password"),
		})
		rejected := ts.reject[grant]
		ts.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if rejected {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"grant rejected"}`))
			return
		}

		body := map[string]any{
			"access_token": grant + "-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
		}
		if grant != "client_credentials" {
			body["refresh_token"] = grant + "-refresh"
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *tokenServer) Grants() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.grants...)
}

func (ts *tokenServer) Reject(grant string) {
	ts.mu.Lock()
	ts.reject[grant] = true
	ts.mu.Unlock()
}

func newStrategy(t *testing.T, ts *tokenServer, username, password string) *Strategy {
	t.Helper()
	s, err := New(Config{
		TokenURL:     ts.server.URL,
		ClientID:     "dispatcher",
		ClientSecret: "s3cret",
		Scopes:       []string{"api.read"},
		Username:     username,
		Password:     password,
		AuthStyle:    oauth2.AuthStyleInParams,
		HTTPClient:   ts.server.Client(),
	})
	require.NoError(t, err)
	return s
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{ClientID: "id"})
	assert.Error(t, err)

	_, err = New(Config{TokenURL: "https://auth.example.com/token"})
	assert.Error(t, err)
}

func TestStrategiesReflectConfiguredCredentials(t *testing.T) {
	s, err := New(Config{TokenURL: "https://auth.example.com/token", ClientID: "id"})
	require.NoError(t, err)
	set := s.Strategies()
	assert.Nil(t, set.Generator)
	assert.Nil(t, set.Refresher)
	assert.NotNil(t, set.Renewer)

	s, err = New(Config{
		TokenURL:     "https://auth.example.com/token",
		ClientID:     "id",
		ClientSecret: "secret",
		Username:     "user",
		Password:     "pass",
	})
	require.NoError(t, err)
	set = s.Strategies()
	assert.NotNil(t, set.Generator)
	assert.NotNil(t, set.Refresher)
}

func TestGenerateStoresAccessToken(t *testing.T) {
	ts := newTokenServer(t)
	s := newStrategy(t, ts, "", "")
	store := credentials.NewStore()

	require.NoError(t, s.Generate(context.Background(), store))

	access := store.Access()
	assert.Equal(t, "client_credentials-access", access.Token)
	assert.True(t, access.ValidAt(time.Now()))
	assert.Equal(t, credentials.Record{}, store.Refresh())
	assert.Equal(t, []string{"client_credentials"}, ts.Grants())
}

func TestRenewUsesStoredRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	s := newStrategy(t, ts, "", "")
	store := credentials.NewStore()
	store.SetRefreshToken("stored-refresh", time.Hour, time.Now())

	require.NoError(t, s.Renew(context.Background(), store))

	assert.Equal(t, "refresh_token-access", store.Access().Token)
	assert.Equal(t, "refresh_token-refresh", store.Refresh().Token)
	ts.mu.Lock()
	assert.Equal(t, "stored-refresh", ts.forms[0]["refresh_token"])
	ts.mu.Unlock()
}

func TestRenewWithoutRefreshToken(t *testing.T) {
	ts := newTokenServer(t)
	s := newStrategy(t, ts, "", "")

	err := s.Renew(context.Background(), credentials.NewStore())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.Empty(t, ts.Grants())
}

func TestRefreshUsesPasswordGrant(t *testing.T) {
	ts := newTokenServer(t)
	s := newStrategy(t, ts, "alice", "wonderland")
	store := credentials.NewStore()

	require.NoError(t, s.Refresh(context.Background(), store))

	assert.Equal(t, "password-access", store.Access().Token)
	assert.Equal(t, "password-refresh", store.Refresh().Token)
	ts.mu.Lock()
	assert.Equal(t, "alice", ts.forms[0]["username"])
	assert.Equal(t, "wonderland", ts.forms[0]["password"])
	ts.mu.Unlock()
}

func TestGrantErrorsAreWrapped(t *testing.T) {
	ts := newTokenServer(t)
	ts.Reject("client_credentials")
	s := newStrategy(t, ts, "", "")
	store := credentials.NewStore()

	err := s.Generate(context.Background(), store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client credentials grant")
	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, "invalid_grant", retrieveErr.ErrorCode)
	assert.Equal(t, credentials.Record{}, store.Access())
}

func TestCoordinatorFallsBackFromPasswordToClientCredentials(t *testing.T) {
	ts := newTokenServer(t)
	ts.Reject("password")
	s := newStrategy(t, ts, "alice", "wrong")

	store := credentials.NewStore()
	store.SetRefresh(credentials.Record{Token: "stale", ExpiresAt: time.Now().Add(time.Hour)})

	var seen []string
	var mu sync.Mutex
	c, err := coordinator.New(coordinator.Options{
		Transport: transport.Func(func(_ context.Context, _ string, opts transport.Options) (*transport.Response, error) {
			mu.Lock()
			seen = append(seen, opts.Header.Get("Authorization"))
			mu.Unlock()
			return &transport.Response{StatusCode: http.StatusOK}, nil
		}),
		Store:      store,
		Strategies: s.Strategies(),
		Connected:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.Dispatch(context.Background(), "https://api.example.com/items", transport.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"password", "client_credentials"}, ts.Grants())
	mu.Lock()
	assert.Equal(t, []string{"Bearer client_credentials-access"}, seen)
	mu.Unlock()
}
