// httpclient/config.go
package httpclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultLogLevelString        = "LogLevelInfo"
	DefaultLogOutputFormatString = "json"
	DefaultMaxConcurrentRequests = 5
	DefaultCustomTimeout         = 10 * time.Second
	DefaultRenewAfter            = 15 * time.Minute
	DefaultMaxReplays            = 5
	DefaultMaxQueueDepth         = 1000
	DefaultMaxRedirects          = 5
)

// Duration is a time.Duration that reads "10s" style strings from JSON and YAML. Plain JSON
// numbers are taken as nanoseconds.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v))
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// OAuth2Config configures the credential strategies. An empty TokenURL disables them: calls are
// then sent without an Authorization header.
type OAuth2Config struct {
	TokenURL             string   `json:"TokenURL" yaml:"token_url"`
	ClientID             string   `json:"ClientID" yaml:"client_id"`
	ClientSecret         string   `json:"ClientSecret" yaml:"client_secret"`
	Scopes               []string `json:"Scopes" yaml:"scopes"`
	Username             string   `json:"Username" yaml:"username"`
	Password             string   `json:"Password" yaml:"password"`
	RefreshTokenLifetime Duration `json:"RefreshTokenLifetime" yaml:"refresh_token_lifetime"`
}

// ClientConfig is the full configuration of a Client.
type ClientConfig struct {
	BaseURL string       `json:"BaseURL" yaml:"base_url"`
	OAuth2  OAuth2Config `json:"OAuth2" yaml:"oauth2"`
	// Connected is the initial state of the flag that allows the client credentials grant.
	// Nil means true.
	Connected *bool `json:"Connected,omitempty" yaml:"connected,omitempty"`

	// Log
	LogLevel          string `json:"LogLevel" yaml:"log_level"`
	LogOutputFormat   string `json:"LogOutputFormat" yaml:"log_output_format"` // "json" or "human-readable"
	HideSensitiveData bool   `json:"HideSensitiveData" yaml:"hide_sensitive_data"`

	// Cookies
	EnableCookieJar bool              `json:"EnableCookieJar" yaml:"enable_cookie_jar"`
	CustomCookies   map[string]string `json:"CustomCookies" yaml:"custom_cookies"`

	// Proxy
	ProxyURL      string `json:"ProxyURL" yaml:"proxy_url"`
	ProxyUsername string `json:"ProxyUsername" yaml:"proxy_username"`
	ProxyPassword string `json:"ProxyPassword" yaml:"proxy_password"`

	// Redirects
	FollowRedirects bool `json:"FollowRedirects" yaml:"follow_redirects"`
	MaxRedirects    int  `json:"MaxRedirects" yaml:"max_redirects"`

	// Transport
	MaxConcurrentRequests int      `json:"MaxConcurrentRequests" yaml:"max_concurrent_requests"`
	CustomTimeout         Duration `json:"CustomTimeout" yaml:"custom_timeout"`

	// Credential coordination
	RenewAfter    Duration `json:"RenewAfter" yaml:"renew_after"`
	MaxReplays    int      `json:"MaxReplays" yaml:"max_replays"` // negative: unbounded
	MaxQueueDepth int      `json:"MaxQueueDepth" yaml:"max_queue_depth"`
}

// LoadConfigFromFile loads a ClientConfig from a JSON or YAML file, chosen by extension, then
// applies defaults and validates the result.
func LoadConfigFromFile(path string) (*ClientConfig, error) {
	path, err := validateFilePath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to clean/validate filepath (%s): %w", path, err)
	}

	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the configuration file: %s, error: %w", path, err)
	}

	var config ClientConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(fileBytes, &config)
	default:
		err = json.Unmarshal(fileBytes, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal the configuration file: %s, error: %w", path, err)
	}

	SetDefaultValuesClientConfig(&config)
	if err := validateClientConfig(config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadConfigFromEnv overlays environment variables on config. For each option, a set variable
// wins over the existing value. Defaults are applied and the result is validated.
func LoadConfigFromEnv(config *ClientConfig) (*ClientConfig, error) {
	if config == nil {
		config = &ClientConfig{}
	}

	config.BaseURL = getEnvOrDefault("BASE_URL", config.BaseURL)

	// OAuth2
	config.OAuth2.TokenURL = getEnvOrDefault("OAUTH2_TOKEN_URL", config.OAuth2.TokenURL)
	config.OAuth2.ClientID = getEnvOrDefault("CLIENT_ID", config.OAuth2.ClientID)
	config.OAuth2.ClientSecret = getEnvOrDefault("CLIENT_SECRET", config.OAuth2.ClientSecret)
	if scopes, ok := os.LookupEnv("OAUTH2_SCOPES"); ok {
		config.OAuth2.Scopes = strings.Fields(scopes)
	}
	config.OAuth2.Username = getEnvOrDefault("USERNAME", config.OAuth2.Username)
	config.OAuth2.Password = getEnvOrDefault("PASSWORD", config.OAuth2.Password)
	config.OAuth2.RefreshTokenLifetime = parseDuration(getEnvOrDefault("REFRESH_TOKEN_LIFETIME", ""), config.OAuth2.RefreshTokenLifetime)
	if connected, ok := os.LookupEnv("CONNECTED"); ok {
		value := parseBool(connected)
		config.Connected = &value
	}

	// Logging
	config.LogLevel = getEnvOrDefault("LOG_LEVEL", config.LogLevel)
	config.LogOutputFormat = getEnvOrDefault("LOG_OUTPUT_FORMAT", config.LogOutputFormat)
	config.HideSensitiveData = parseBool(getEnvOrDefault("HIDE_SENSITIVE_DATA", strconv.FormatBool(config.HideSensitiveData)))

	// Cookies
	config.EnableCookieJar = parseBool(getEnvOrDefault("ENABLE_COOKIE_JAR", strconv.FormatBool(config.EnableCookieJar)))
	if cookieStr := getEnvOrDefault("CUSTOM_COOKIES", ""); cookieStr != "" {
		config.CustomCookies = parseCookiesFromString(cookieStr)
	}

	// Proxy
	config.ProxyURL = getEnvOrDefault("PROXY_URL", config.ProxyURL)
	config.ProxyUsername = getEnvOrDefault("PROXY_USERNAME", config.ProxyUsername)
	config.ProxyPassword = getEnvOrDefault("PROXY_PASSWORD", config.ProxyPassword)

	// Redirects
	config.FollowRedirects = parseBool(getEnvOrDefault("FOLLOW_REDIRECTS", strconv.FormatBool(config.FollowRedirects)))
	config.MaxRedirects = parseInt(getEnvOrDefault("MAX_REDIRECTS", ""), config.MaxRedirects)

	// Transport and coordination
	config.MaxConcurrentRequests = parseInt(getEnvOrDefault("MAX_CONCURRENT_REQUESTS", ""), config.MaxConcurrentRequests)
	config.CustomTimeout = parseDuration(getEnvOrDefault("CUSTOM_TIMEOUT", ""), config.CustomTimeout)
	config.RenewAfter = parseDuration(getEnvOrDefault("RENEW_AFTER", ""), config.RenewAfter)
	config.MaxReplays = parseInt(getEnvOrDefault("MAX_REPLAYS", ""), config.MaxReplays)
	config.MaxQueueDepth = parseInt(getEnvOrDefault("MAX_QUEUE_DEPTH", ""), config.MaxQueueDepth)

	SetDefaultValuesClientConfig(config)
	if err := validateClientConfig(*config); err != nil {
		return nil, err
	}
	return config, nil
}

// SetDefaultValuesClientConfig fills every unset option with its default.
func SetDefaultValuesClientConfig(config *ClientConfig) {
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevelString
	}
	if config.LogOutputFormat == "" {
		config.LogOutputFormat = DefaultLogOutputFormatString
	}
	if config.MaxConcurrentRequests == 0 {
		config.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if config.CustomTimeout == 0 {
		config.CustomTimeout = Duration(DefaultCustomTimeout)
	}
	if config.RenewAfter == 0 {
		config.RenewAfter = Duration(DefaultRenewAfter)
	}
	if config.MaxReplays == 0 {
		config.MaxReplays = DefaultMaxReplays
	}
	if config.MaxQueueDepth == 0 {
		config.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if config.FollowRedirects && config.MaxRedirects == 0 {
		config.MaxRedirects = DefaultMaxRedirects
	}
	if config.Connected == nil {
		connected := true
		config.Connected = &connected
	}
}

func getEnvOrDefault(envKey string, defaultValue string) string {
	if value, exists := os.LookupEnv(envKey); exists {
		return value
	}
	return defaultValue
}

func parseBool(value string) bool {
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return result
}

func parseInt(value string, defaultVal int) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultVal
	}
	return result
}

func parseDuration(value string, defaultVal Duration) Duration {
	result, err := time.ParseDuration(value)
	if err != nil {
		return defaultVal
	}
	return Duration(result)
}

// parseCookiesFromString parses a semi-colon separated string of key=value pairs into a map.
func parseCookiesFromString(cookieStr string) map[string]string {
	cookies := make(map[string]string)
	for _, pair := range strings.Split(cookieStr, ";") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			cookies[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return cookies
}
