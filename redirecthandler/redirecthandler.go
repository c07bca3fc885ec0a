package redirecthandler

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
	"github.com/deploymenttheory/go-api-credential-dispatcher/response"
	"go.uber.org/zap"
)

// RedirectHandler is the CheckRedirect policy of the default transport's http.Client. Requests
// carry a bearer token injected by the coordinator, so credentials never follow a redirect to a
// different host.
type RedirectHandler struct {
	Logger           logger.Logger
	MaxRedirects     int
	SensitiveHeaders []string // removed on cross-host redirects

	permMu             sync.RWMutex
	PermanentRedirects map[string]string // cache of 301/308 targets
}

// NewRedirectHandler creates a new instance of RedirectHandler.
func NewRedirectHandler(log logger.Logger, maxRedirects int) *RedirectHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedirectHandler{
		Logger:             log,
		MaxRedirects:       maxRedirects,
		SensitiveHeaders:   []string{"Authorization", "Cookie", "Proxy-Authorization"},
		PermanentRedirects: make(map[string]string),
	}
}

// AddSensitiveHeader allows adding configurable sensitive headers.
func (r *RedirectHandler) AddSensitiveHeader(header string) {
	r.SensitiveHeaders = append(r.SensitiveHeaders, header)
}

// WithRedirectHandling applies the redirect handling policy to an http.Client.
func (r *RedirectHandler) WithRedirectHandling(client *http.Client) {
	client.CheckRedirect = r.checkRedirect
}

// checkRedirect is called by net/http before following a redirect. req is the upcoming request,
// via the requests made so far, oldest first.
func (r *RedirectHandler) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) == 0 {
		return nil
	}

	// Non-idempotent methods are returned to the caller as is.
	if method := via[0].Method; method == http.MethodPost || method == http.MethodPatch {
		r.Logger.Warn("Redirect attempted on non-idempotent method, not following", zap.String("method", method))
		return http.ErrUseLastResponse
	}

	if len(via) >= r.MaxRedirects {
		r.Logger.Warn("Maximum redirects reached", zap.Int("max_redirects", r.MaxRedirects))
		return &MaxRedirectsError{MaxRedirects: r.MaxRedirects}
	}

	if hasLoop(req.URL, via) {
		r.Logger.Warn("Redirect loop detected", zap.String("url", req.URL.String()))
		return &RedirectLoopError{URL: req.URL.String()}
	}

	previous := via[len(via)-1]
	if lastResponse := req.Response; lastResponse != nil {
		if !response.IsRedirectStatusCode(lastResponse.StatusCode) {
			return http.ErrUseLastResponse
		}
		if response.IsPermanentRedirect(lastResponse.StatusCode) {
			r.cachePermanentRedirect(previous.URL.String(), req.URL.String())
		}
	}

	if !strings.EqualFold(req.URL.Host, previous.URL.Host) {
		r.secureRequest(req)
	}

	r.Logger.Info("Redirecting request",
		zap.String("original_url", previous.URL.String()),
		zap.String("new_url", req.URL.String()),
		zap.Int("redirect_count", len(via)),
	)
	return nil
}

// secureRequest removes sensitive headers from a request leaving the original host.
func (r *RedirectHandler) secureRequest(req *http.Request) {
	for _, header := range r.SensitiveHeaders {
		req.Header.Del(header)
	}
}

// RedirectLoopError represents an error when a redirect loop is detected.
type RedirectLoopError struct {
	URL string
}

func (e *RedirectLoopError) Error() string {
	return fmt.Sprintf("redirect loop detected at %s", e.URL)
}

// MaxRedirectsError represents an error when the maximum number of redirects is reached.
type MaxRedirectsError struct {
	MaxRedirects int
}

func (e *MaxRedirectsError) Error() string {
	return fmt.Sprintf("maximum redirects reached: %d", e.MaxRedirects)
}

func (r *RedirectHandler) cachePermanentRedirect(originalURL, redirectURL string) {
	r.permMu.Lock()
	defer r.permMu.Unlock()
	r.PermanentRedirects[originalURL] = redirectURL
}

// PermanentRedirect returns the cached target of a permanent redirect from originalURL.
func (r *RedirectHandler) PermanentRedirect(originalURL string) (string, bool) {
	r.permMu.RLock()
	defer r.permMu.RUnlock()
	target, ok := r.PermanentRedirects[originalURL]
	return target, ok
}

func hasLoop(next *url.URL, via []*http.Request) bool {
	target := next.String()
	for _, prev := range via {
		if prev.URL.String() == target {
			return true
		}
	}
	return false
}

// SetupRedirectHandler configures redirect handling on client. With followRedirects unset the
// client returns redirect responses to the caller untouched.
func SetupRedirectHandler(client *http.Client, followRedirects bool, maxRedirects int, log logger.Logger) (*RedirectHandler, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if !followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
		return nil, nil
	}
	if maxRedirects < 1 {
		log.Warn("Invalid maxRedirects value", zap.Int("max_redirects", maxRedirects))
		return nil, fmt.Errorf("invalid maxRedirects value: %d", maxRedirects)
	}

	handler := NewRedirectHandler(log, maxRedirects)
	handler.WithRedirectHandling(client)
	log.Debug("Redirect handling enabled", zap.Int("max_redirects", maxRedirects))
	return handler, nil
}
