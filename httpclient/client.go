// httpclient/client.go

// Package httpclient assembles a ready to use client from a ClientConfig: a zap logger, the default
// HTTP transport with its redirect, cookie and proxy policies, the OAuth2 credential strategies and
// the coordinator that ties them together. Every call made through the Client carries a bearer
// token managed by the coordinator.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deploymenttheory/go-api-credential-dispatcher/cookiejar"
	"github.com/deploymenttheory/go-api-credential-dispatcher/coordinator"
	"github.com/deploymenttheory/go-api-credential-dispatcher/credentials"
	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
	"github.com/deploymenttheory/go-api-credential-dispatcher/oauth2strategy"
	"github.com/deploymenttheory/go-api-credential-dispatcher/proxy"
	"github.com/deploymenttheory/go-api-credential-dispatcher/redirecthandler"
	"github.com/deploymenttheory/go-api-credential-dispatcher/response"
	"github.com/deploymenttheory/go-api-credential-dispatcher/transport"
	"go.uber.org/zap"
)

// Client is the assembled dispatcher.
type Client struct {
	config ClientConfig
	http   *http.Client

	Logger      logger.Logger
	Transport   *transport.HTTPTransport
	Coordinator *coordinator.Coordinator
	Redirects   *redirecthandler.RedirectHandler // nil unless FollowRedirects is set
}

// BuildOption customises BuildClient beyond what ClientConfig can express.
type BuildOption func(*buildOptions)

type buildOptions struct {
	logger logger.Logger
	store  *credentials.Store
	trace  *coordinator.Trace
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(log logger.Logger) BuildOption {
	return func(o *buildOptions) { o.logger = log }
}

// WithStore seeds the coordinator with an existing credential store.
func WithStore(store *credentials.Store) BuildOption {
	return func(o *buildOptions) { o.store = store }
}

// WithTrace installs coordinator trace hooks.
func WithTrace(trace *coordinator.Trace) BuildOption {
	return func(o *buildOptions) { o.trace = trace }
}

// BuildClient creates a new client with the provided configuration.
func BuildClient(config ClientConfig, populateDefaultValues bool, opts ...BuildOption) (*Client, error) {
	if populateDefaultValues {
		SetDefaultValuesClientConfig(&config)
	}
	if err := validateClientConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	log := bo.logger
	if log == nil {
		parsedLogLevel := logger.ParseLogLevelFromString(config.LogLevel)
		log = logger.BuildLogger(parsedLogLevel, config.LogOutputFormat)
	}

	httpClient := &http.Client{Timeout: time.Duration(config.CustomTimeout)}

	if err := proxy.InitializeProxy(httpClient, config.ProxyURL, config.ProxyUsername, config.ProxyPassword, log); err != nil {
		return nil, err
	}

	redirects, err := redirecthandler.SetupRedirectHandler(httpClient, config.FollowRedirects, config.MaxRedirects, log)
	if err != nil {
		return nil, err
	}

	if err := cookiejar.SetupCookieJar(httpClient, config.EnableCookieJar, log); err != nil {
		return nil, err
	}
	if err := cookiejar.SeedCookies(httpClient, config.BaseURL, config.CustomCookies, config.HideSensitiveData, log); err != nil {
		return nil, err
	}

	httpTransport := transport.NewHTTPTransport(transport.HTTPTransportConfig{
		HTTPClient:            httpClient,
		MaxConcurrentRequests: config.MaxConcurrentRequests,
		HideSensitiveData:     config.HideSensitiveData,
		Logger:                log,
	})

	var strategies coordinator.Strategies
	if config.OAuth2.TokenURL != "" {
		strategy, err := oauth2strategy.New(oauth2strategy.Config{
			TokenURL:             config.OAuth2.TokenURL,
			ClientID:             config.OAuth2.ClientID,
			ClientSecret:         config.OAuth2.ClientSecret,
			Scopes:               config.OAuth2.Scopes,
			Username:             config.OAuth2.Username,
			Password:             config.OAuth2.Password,
			RefreshTokenLifetime: time.Duration(config.OAuth2.RefreshTokenLifetime),
			HTTPClient:           httpClient,
			Logger:               log,
		})
		if err != nil {
			return nil, err
		}
		strategies = strategy.Strategies()
	}
	strategies.ErrorHandler = coordinator.ErrorHandlerFunc(func(ctx context.Context, err error, call *coordinator.Call) error {
		log.LogError("dispatch_failed", call.Options.Method, call.URL, response.StatusCodeOf(err), err, "")
		return nil
	})

	coord, err := coordinator.New(coordinator.Options{
		Transport:     httpTransport,
		Store:         bo.store,
		Strategies:    strategies,
		Connected:     config.Connected == nil || *config.Connected,
		RenewAfter:    time.Duration(config.RenewAfter),
		MaxReplays:    config.MaxReplays,
		MaxQueueDepth: config.MaxQueueDepth,
		Logger:        log,
		Trace:         bo.trace,
	})
	if err != nil {
		return nil, err
	}

	client := &Client{
		config:      config,
		http:        httpClient,
		Logger:      log,
		Transport:   httpTransport,
		Coordinator: coord,
		Redirects:   redirects,
	}

	log.Debug("New API client initialized",
		zap.String("base_url", config.BaseURL),
		zap.Bool("oauth2", config.OAuth2.TokenURL != ""),
		zap.String("log_level", config.LogLevel),
		zap.String("log_output_format", config.LogOutputFormat),
		zap.Bool("hide_sensitive_data", config.HideSensitiveData),
		zap.Bool("cookie_jar", config.EnableCookieJar),
		zap.Bool("proxy", config.ProxyURL != ""),
		zap.Bool("follow_redirects", config.FollowRedirects),
		zap.Int("max_redirects", config.MaxRedirects),
		zap.Int("max_concurrent_requests", config.MaxConcurrentRequests),
		zap.Duration("custom_timeout", time.Duration(config.CustomTimeout)),
		zap.Duration("renew_after", time.Duration(config.RenewAfter)),
		zap.Int("max_replays", config.MaxReplays),
		zap.Int("max_queue_depth", config.MaxQueueDepth),
	)

	return client, nil
}

// Store returns the credential store, for seeding or inspecting tokens.
func (c *Client) Store() *credentials.Store {
	return c.Coordinator.Store()
}

// Do sends one call. A relative endpoint is resolved against BaseURL. When out is non-nil the
// decoded response body is copied into it.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, out any) (*transport.Response, error) {
	target, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}

	resp, err := c.Coordinator.Dispatch(ctx, target, transport.Options{Method: method, Body: body})
	if err != nil {
		return nil, err
	}
	if err := response.Into(resp.Body, out); err != nil {
		return resp, fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return resp, nil
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, endpoint string, out any) (*transport.Response, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil, out)
}

// Post sends a POST request.
func (c *Client) Post(ctx context.Context, endpoint string, body any, out any) (*transport.Response, error) {
	return c.Do(ctx, http.MethodPost, endpoint, body, out)
}

// Put sends a PUT request.
func (c *Client) Put(ctx context.Context, endpoint string, body any, out any) (*transport.Response, error) {
	return c.Do(ctx, http.MethodPut, endpoint, body, out)
}

// Patch sends a PATCH request.
func (c *Client) Patch(ctx context.Context, endpoint string, body any, out any) (*transport.Response, error) {
	return c.Do(ctx, http.MethodPatch, endpoint, body, out)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, out any) (*transport.Response, error) {
	return c.Do(ctx, http.MethodDelete, endpoint, nil, out)
}

// Close stops the coordinator and releases idle connections.
func (c *Client) Close() error {
	err := c.Coordinator.Close()
	c.http.CloseIdleConnections()
	return err
}

func (c *Client) resolve(endpoint string) (string, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() {
		return endpoint, nil
	}
	if c.config.BaseURL == "" {
		return "", fmt.Errorf("relative endpoint %q requires a base URL", endpoint)
	}
	base, err := url.Parse(strings.TrimSuffix(c.config.BaseURL, "/") + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(&url.URL{Path: strings.TrimPrefix(ref.Path, "/"), RawQuery: ref.RawQuery}).String(), nil
}
