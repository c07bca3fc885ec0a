// transport/http.go
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/deploymenttheory/go-api-credential-dispatcher/concurrency"
	"github.com/deploymenttheory/go-api-credential-dispatcher/headers/redact"
	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
	"github.com/deploymenttheory/go-api-credential-dispatcher/response"
	"github.com/deploymenttheory/go-api-credential-dispatcher/version"
	"go.uber.org/zap"
)

// HTTPTransport is the default Transport. It assembles the request from Options, bounds the
// number of concurrent exchanges and converts the outcome into a Response or *response.APIError.
type HTTPTransport struct {
	http              *http.Client
	concurrency       *concurrency.ConcurrencyHandler
	logger            logger.Logger
	hideSensitiveData bool
}

// HTTPTransportConfig configures NewHTTPTransport.
type HTTPTransportConfig struct {
	HTTPClient            *http.Client // defaults to a client with Timeout
	Timeout               time.Duration
	MaxConcurrentRequests int
	HideSensitiveData     bool
	Logger                logger.Logger
}

// NewHTTPTransport builds an HTTPTransport.
func NewHTTPTransport(config HTTPTransportConfig) *HTTPTransport {
	log := config.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &HTTPTransport{
		http:              httpClient,
		concurrency:       concurrency.NewConcurrencyHandler(config.MaxConcurrentRequests, log, &concurrency.ConcurrencyMetrics{}),
		logger:            log,
		hideSensitiveData: config.HideSensitiveData,
	}
}

// Concurrency exposes the permit handler, mainly for metrics.
func (t *HTTPTransport) Concurrency() *concurrency.ConcurrencyHandler {
	return t.concurrency
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := t.buildRequest(ctx, method, rawURL, opts)
	if err != nil {
		return nil, err
	}

	ctx, requestID, err := t.concurrency.AcquireConcurrencyPermit(ctx)
	if err != nil {
		return nil, response.NewNetworkError(method, rawURL, response.KindFetch, err)
	}
	defer t.concurrency.ReleaseConcurrencyPermit(requestID)
	req = req.WithContext(ctx)

	t.logger.LogRequestStart("request_start", requestID.String(), method, req.URL.String(), redact.RedactHeaders(t.hideSensitiveData, req.Header))

	startTime := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		kind := classifyNetworkError(err)
		t.logger.LogError("request_error", method, req.URL.String(), 0, err, string(kind))
		return nil, response.NewNetworkError(method, req.URL.String(), kind, err)
	}
	defer resp.Body.Close()

	t.logger.LogRequestEnd("request_end", method, req.URL.String(), resp.StatusCode, time.Since(startTime))

	if !response.IsSuccessStatusCode(resp.StatusCode) {
		apiErr := response.HandleAPIErrorResponse(resp)
		if response.IsTransientError(resp.StatusCode) {
			t.logger.Warn("Transient server error received", zap.Int("status_code", resp.StatusCode), zap.String("url", req.URL.String()))
		}
		t.logger.LogError("response_error", method, req.URL.String(), resp.StatusCode, apiErr, apiErr.RawResponse)
		return nil, apiErr
	}

	body, err := response.DecodeSuccessBody(resp)
	if err != nil {
		return nil, t.logger.Error("Failed to decode response body", zap.String("url", req.URL.String()), zap.Error(err))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// buildRequest merges Query into the URL, encodes Body and copies caller headers.
// io.Reader and []byte bodies are sent as-is, url.Values as a form, anything else as JSON.
func (t *HTTPTransport) buildRequest(ctx context.Context, method, rawURL string, opts Options) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request url %q: %w", rawURL, err)
	}
	if len(opts.Query) > 0 {
		q := u.Query()
		for key, values := range opts.Query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	contentType := ""
	switch b := opts.Body.(type) {
	case nil:
	case io.Reader:
		body = b
	case []byte:
		body = bytes.NewReader(b)
	case string:
		body = strings.NewReader(b)
		contentType = "text/plain; charset=utf-8"
	case url.Values:
		body = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}

	for key, values := range opts.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json, application/xml;q=0.9, */*;q=0.8")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", version.GetUserAgentHeader())
	}

	return req, nil
}

// classifyNetworkError separates "host unreachable" failures from everything else that
// prevented a response from arriving.
func classifyNetworkError(err error) response.ErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return response.KindOffline
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return response.KindOffline
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return response.KindOffline
	}
	return response.KindFetch
}
