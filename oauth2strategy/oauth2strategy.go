// oauth2strategy/oauth2strategy.go
/*
Package oauth2strategy provides credential strategies backed by golang.org/x/oauth2.

	Generate  client_credentials grant, for a client acting on its own behalf
	Renew     refresh_token grant, using the refresh token held in the store
	Refresh   password grant, which re-establishes the refresh token itself

Each strategy writes the issued tokens to the credential store before returning.
*/
package oauth2strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/deploymenttheory/go-api-credential-dispatcher/coordinator"
	"github.com/deploymenttheory/go-api-credential-dispatcher/credentials"
	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultAccessTokenLifetime is used when a token response carries no expiry.
	DefaultAccessTokenLifetime = time.Hour
	// DefaultRefreshTokenLifetime is used for refresh tokens; token responses do not report one.
	DefaultRefreshTokenLifetime = 24 * time.Hour
)

// ErrNoRefreshToken is returned by Renew when the store holds no refresh token.
var ErrNoRefreshToken = errors.New("oauth2: no refresh token available")

// Config describes the authorization server and the credentials used against it.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// Username and Password enable the password grant used by Refresh.
	Username string
	Password string

	AuthStyle            oauth2.AuthStyle
	RefreshTokenLifetime time.Duration
	HTTPClient           *http.Client

	Logger logger.Logger
	Now    func() time.Time
}

// Strategy implements coordinator.Generator, coordinator.Renewer and coordinator.Refresher.
type Strategy struct {
	config       Config
	oauth        *oauth2.Config
	clientCreds  *clientcredentials.Config
	refreshLife  time.Duration
	logger       logger.Logger
	now          func() time.Time
	hasPassword  bool
	hasClientCrd bool
}

// New validates cfg and builds a Strategy.
func New(cfg Config) (*Strategy, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New("oauth2: token URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("oauth2: client ID is required")
	}

	s := &Strategy{
		config: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL, AuthStyle: cfg.AuthStyle},
		},
		clientCreds: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
			AuthStyle:    cfg.AuthStyle,
		},
		refreshLife:  cfg.RefreshTokenLifetime,
		logger:       cfg.Logger,
		now:          cfg.Now,
		hasPassword:  cfg.Username != "" && cfg.Password != "",
		hasClientCrd: cfg.ClientSecret != "",
	}
	if s.refreshLife <= 0 {
		s.refreshLife = DefaultRefreshTokenLifetime
	}
	if s.logger == nil {
		s.logger = logger.NewNopLogger()
	}
	s.logger = s.logger.With(zap.String("component", "oauth2strategy"))
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Strategies returns the capabilities this configuration can serve. Generate needs a client
// secret and Refresh needs a username and password; Renew is always available.
func (s *Strategy) Strategies() coordinator.Strategies {
	set := coordinator.Strategies{Renewer: s}
	if s.hasClientCrd {
		set.Generator = s
	}
	if s.hasPassword {
		set.Refresher = s
	}
	return set
}

// Generate obtains a new token set with the client_credentials grant.
func (s *Strategy) Generate(ctx context.Context, store *credentials.Store) error {
	token, err := s.clientCreds.Token(s.withHTTPClient(ctx))
	if err != nil {
		return fmt.Errorf("oauth2 client credentials grant: %w", err)
	}
	s.save(store, token, "client_credentials")
	return nil
}

// Renew exchanges the stored refresh token for a new access token. A refresh token returned by
// the server replaces the stored one; otherwise the stored one is kept.
func (s *Strategy) Renew(ctx context.Context, store *credentials.Store) error {
	refresh := store.Refresh()
	if refresh.Token == "" {
		return ErrNoRefreshToken
	}

	// An empty access token makes the token source go straight to the refresh grant.
	src := s.oauth.TokenSource(s.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refresh.Token})
	token, err := src.Token()
	if err != nil {
		return fmt.Errorf("oauth2 refresh token grant: %w", err)
	}
	if token.RefreshToken == refresh.Token {
		token.RefreshToken = ""
	}
	s.save(store, token, "refresh_token")
	return nil
}

// Refresh re-establishes the refresh token with the resource owner password grant.
func (s *Strategy) Refresh(ctx context.Context, store *credentials.Store) error {
	if !s.hasPassword {
		return errors.New("oauth2: password grant requires username and password")
	}
	token, err := s.oauth.PasswordCredentialsToken(s.withHTTPClient(ctx), s.config.Username, s.config.Password)
	if err != nil {
		return fmt.Errorf("oauth2 password grant: %w", err)
	}
	s.save(store, token, "password")
	return nil
}

func (s *Strategy) withHTTPClient(ctx context.Context) context.Context {
	if s.config.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.config.HTTPClient)
}

func (s *Strategy) save(store *credentials.Store, token *oauth2.Token, grant string) {
	now := s.now()

	lifetime := DefaultAccessTokenLifetime
	if !token.Expiry.IsZero() {
		lifetime = token.Expiry.Sub(now)
	}
	store.SetAccessToken(token.AccessToken, lifetime, now)

	if token.RefreshToken != "" {
		store.SetRefreshToken(token.RefreshToken, s.refreshLife, now)
	}

	s.logger.Debug("Stored OAuth2 token",
		zap.String("grant_type", grant),
		zap.Duration("access_lifetime", lifetime),
		zap.Bool("refresh_token_issued", token.RefreshToken != ""),
	)
}
