// proxy.go

package proxy

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
	"go.uber.org/zap"
)

// InitializeProxy routes httpClient through proxyURL. Credentials given separately take precedence
// over any userinfo in the URL. An empty proxyURL leaves the client untouched.
func InitializeProxy(httpClient *http.Client, proxyURL, proxyUsername, proxyPassword string, log logger.Logger) error {
	if proxyURL == "" {
		return nil
	}

	parsedProxyURL, err := url.Parse(proxyURL)
	if err != nil || parsedProxyURL.Host == "" {
		log.Warn("Failed to parse proxy URL", zap.String("proxy_url", proxyURL), zap.Error(err))
		return fmt.Errorf("invalid proxy URL %q", proxyURL)
	}
	if proxyUsername != "" && proxyPassword != "" {
		parsedProxyURL.User = url.UserPassword(proxyUsername, proxyPassword)
	}

	base, ok := httpClient.Transport.(*http.Transport)
	if !ok || base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}
	rt := base.Clone()
	rt.Proxy = http.ProxyURL(parsedProxyURL)
	httpClient.Transport = rt

	log.Info("Proxy configured",
		zap.String("proxy_host", parsedProxyURL.Host),
		zap.Bool("proxy_auth", parsedProxyURL.User != nil),
	)
	return nil
}
