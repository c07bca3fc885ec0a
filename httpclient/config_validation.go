// httpclient/config_validation.go
package httpclient

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
)

var configFileExtensions = []string{".json", ".yaml", ".yml"}

func validateClientConfig(config ClientConfig) error {
	validLogLevels := []string{
		"LogLevelDebug",
		"LogLevelInfo",
		"LogLevelWarn",
		"LogLevelError",
		"LogLevelDPanic",
		"LogLevelPanic",
		"LogLevelFatal",
	}
	if !slices.Contains(validLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	validLogFormats := []string{"json", "human-readable"}
	if !slices.Contains(validLogFormats, config.LogOutputFormat) {
		return fmt.Errorf("invalid log output format: %s", config.LogOutputFormat)
	}

	if config.BaseURL != "" {
		if err := validateAbsoluteURL(config.BaseURL); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
	}

	if config.OAuth2.TokenURL != "" {
		if err := validateAbsoluteURL(config.OAuth2.TokenURL); err != nil {
			return fmt.Errorf("invalid OAuth2 token URL: %w", err)
		}
		if config.OAuth2.ClientID == "" {
			return errors.New("OAuth2 client ID is required when a token URL is set")
		}
		if (config.OAuth2.Username == "") != (config.OAuth2.Password == "") {
			return errors.New("OAuth2 username and password must be set together")
		}
	}
	if config.OAuth2.RefreshTokenLifetime < 0 {
		return errors.New("refresh token lifetime cannot be less than 0")
	}

	if len(config.CustomCookies) > 0 {
		if !config.EnableCookieJar {
			return errors.New("custom cookies require the cookie jar to be enabled")
		}
		if config.BaseURL == "" {
			return errors.New("custom cookies require a base URL")
		}
	}

	if config.MaxConcurrentRequests < 1 {
		return errors.New("maximum concurrent requests cannot be less than 1")
	}

	if config.CustomTimeout < 0 {
		return errors.New("timeout cannot be less than 0 seconds")
	}

	if config.RenewAfter < 0 {
		return errors.New("renew after cannot be less than 0 seconds")
	}

	if config.MaxQueueDepth < 0 {
		return errors.New("max queue depth cannot be less than 0")
	}

	if config.FollowRedirects && config.MaxRedirects < 1 {
		return errors.New("max redirects cannot be less than 1")
	}

	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

func validateFilePath(path string) (string, error) {
	cleanPath := filepath.Clean(path)

	absPath, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		return "", fmt.Errorf("unable to resolve the absolute path of the configuration file: %s, error: %w", path, err)
	}

	if strings.Contains(absPath, "..") {
		return "", fmt.Errorf("invalid path, path traversal patterns detected: %s", path)
	}

	if !slices.Contains(configFileExtensions, strings.ToLower(filepath.Ext(absPath))) {
		return "", fmt.Errorf("invalid file extension for configuration file: %s, expected one of %v", path, configFileExtensions)
	}

	return absPath, nil
}
