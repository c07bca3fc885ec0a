// cookiejar/cookiejar.go

// Package cookiejar sets up cookie persistence for the default transport's http.Client. Session
// cookies set by an API survive across calls, and configured cookies can be seeded up front for
// APIs that authenticate partly by cookie.
package cookiejar

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/deploymenttheory/go-api-credential-dispatcher/headers/redact"
	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// SetupCookieJar installs a cookie jar on client when enableCookieJar is set. The jar uses the
// public suffix list so cookies cannot be scoped to a whole TLD.
func SetupCookieJar(client *http.Client, enableCookieJar bool, log logger.Logger) error {
	if !enableCookieJar {
		return nil
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		log.Warn("Failed to create cookie jar", zap.Error(err))
		return fmt.Errorf("setupCookieJar failed: %w", err)
	}
	client.Jar = jar
	log.Debug("Cookie jar enabled")
	return nil
}

// SeedCookies stores cookies for baseURL in the client's jar. Cookie values are only logged
// redacted when hideSensitiveData is set.
func SeedCookies(client *http.Client, baseURL string, cookies map[string]string, hideSensitiveData bool, log logger.Logger) error {
	if len(cookies) == 0 {
		return nil
	}
	if client.Jar == nil {
		return fmt.Errorf("cannot seed cookies: cookie jar is not enabled")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("cannot seed cookies: invalid base URL %q", baseURL)
	}

	list := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		list = append(list, &http.Cookie{Name: name, Value: value, Path: "/"})
		log.Debug("Seeding cookie",
			zap.String("name", name),
			zap.String("value", redact.RedactSensitiveHeaderData(hideSensitiveData, "cookie", value)),
			zap.String("host", u.Host),
		)
	}
	client.Jar.SetCookies(u, list)
	return nil
}
