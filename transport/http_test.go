// transport/http_test.go
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/deploymenttheory/go-api-credential-dispatcher/response"
	"github.com/deploymenttheory/go-api-credential-dispatcher/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_SendJSON(t *testing.T) {
	var gotBody map[string]any
	var gotHeader http.Header
	var gotQuery url.Values

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotQuery = r.URL.Query()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 42}`))
	}))
	defer server.Close()

	tr := NewHTTPTransport(HTTPTransportConfig{MaxConcurrentRequests: 2})
	resp, err := tr.Send(context.Background(), server.URL+"/devices?existing=1", Options{
		Method: http.MethodPost,
		Header: http.Header{"X-Trace": []string{"abc"}},
		Query:  url.Values{"page": []string{"2"}},
		Body:   map[string]string{"name": "laptop"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]any{"id": float64(42)}, resp.Body)
	assert.Equal(t, map[string]any{"name": "laptop"}, gotBody)
	assert.Equal(t, "abc", gotHeader.Get("X-Trace"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, version.GetUserAgentHeader(), gotHeader.Get("User-Agent"))
	assert.Equal(t, "1", gotQuery.Get("existing"))
	assert.Equal(t, "2", gotQuery.Get("page"))
	assert.Equal(t, 0, tr.Concurrency().InUse())
}

func TestHTTPTransport_DefaultsToGET(t *testing.T) {
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp, err := NewHTTPTransport(HTTPTransportConfig{}).Send(context.Background(), server.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, method)
	assert.Nil(t, resp.Body)
}

// TestHTTPTransport_ErrorResponse checks non-2xx responses surface as typed errors with the parsed body.
func TestHTTPTransport_ErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid_token"}`))
	}))
	defer server.Close()

	_, err := NewHTTPTransport(HTTPTransportConfig{}).Send(context.Background(), server.URL, Options{})
	require.Error(t, err)

	var apiErr *response.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, response.KindHTTP, apiErr.Kind)
	assert.Equal(t, "invalid_token", apiErr.Message)
	assert.Equal(t, map[string]any{"error": "invalid_token"}, apiErr.Data)
}

// TestHTTPTransport_Offline sends to a closed listener and expects a synthetic 500.
func TestHTTPTransport_Offline(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = NewHTTPTransport(HTTPTransportConfig{}).Send(context.Background(), "http://"+addr, Options{})
	require.Error(t, err)

	var apiErr *response.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, response.KindOffline, apiErr.Kind)
}

func TestHTTPTransport_CancelledContextIsFetchError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPTransport(HTTPTransportConfig{}).Send(ctx, "http://127.0.0.1:1", Options{})

	var apiErr *response.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, response.KindFetch, apiErr.Kind)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPTransport_FormBody(t *testing.T) {
	var contentType string
	var form url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	resp, err := NewHTTPTransport(HTTPTransportConfig{}).Send(context.Background(), server.URL, Options{
		Method: http.MethodPost,
		Body:   url.Values{"grant_type": []string{"password"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Body)
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "password", form.Get("grant_type"))
}

func TestOptionsClone(t *testing.T) {
	original := Options{
		Header: http.Header{"X-A": []string{"1"}},
		Query:  url.Values{"q": []string{"x"}},
	}
	clone := original.Clone()
	clone.Header.Set("Authorization", "Bearer t")
	clone.Query.Set("q", "y")

	assert.Empty(t, original.Header.Get("Authorization"))
	assert.Equal(t, "x", original.Query.Get("q"))
}
