package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Token exchange identifiers from RFC 8693.
const (
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	TokenTypeAccessToken   = "urn:ietf:params:oauth:token-type:access_token"
)

// Exchanger trades a subject token for one aimed at another audience.
type Exchanger struct {
	TokenURL     string
	ClientID     string
	ClientSecret string

	// Audience is the requested target audience, if any.
	Audience string
	Scopes   []string

	HTTPClient *http.Client
}

// ParseScopes splits a space or comma separated scope list.
func ParseScopes(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
}

// Exchange returns the exchanged access token.
func (e *Exchanger) Exchange(ctx context.Context, subject string) (string, error) {
	if e.TokenURL == "" {
		return "", errors.New("auth: token url is required")
	}
	if subject == "" {
		return "", errors.New("auth: subject token is required")
	}
	params := url.Values{
		"grant_type":           {GrantTypeTokenExchange},
		"subject_token":        {subject},
		"subject_token_type":   {TokenTypeAccessToken},
		"requested_token_type": {TokenTypeAccessToken},
	}
	if e.Audience != "" {
		params.Set("audience", e.Audience)
	}
	cfg := clientcredentials.Config{
		ClientID:       e.ClientID,
		ClientSecret:   e.ClientSecret,
		TokenURL:       e.TokenURL,
		Scopes:         e.Scopes,
		EndpointParams: params,
		AuthStyle:      oauth2.AuthStyleInParams,
	}
	tok, err := cfg.Token(withHTTPClient(ctx, e.HTTPClient))
	if err != nil {
		return "", fmt.Errorf("auth: token exchange: %w", err)
	}
	return tok.AccessToken, nil
}

// Default credentials of the Keycloak password grant.
const (
	DefaultRealm    = "master"
	DefaultUsername = "test-user"
	DefaultPassword = "test-password"
)

// PasswordGrant fetches a token from Keycloak with the resource owner
// password flow.
type PasswordGrant struct {
	// URL is the Keycloak base URL.
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string

	HTTPClient *http.Client
}

func (p *PasswordGrant) tokenURL() string {
	realm := p.Realm
	if realm == "" {
		realm = DefaultRealm
	}
	return strings.TrimRight(p.URL, "/") + "/realms/" + url.PathEscape(realm) + "/protocol/openid-connect/token"
}

// Token returns a fresh access token.
func (p *PasswordGrant) Token(ctx context.Context) (string, error) {
	if p.URL == "" {
		return "", errors.New("auth: keycloak url is required")
	}
	user, pass := p.Username, p.Password
	if user == "" {
		user, pass = DefaultUsername, DefaultPassword
	}
	cfg := oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.tokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	tok, err := cfg.PasswordCredentialsToken(withHTTPClient(ctx, p.HTTPClient), user, pass)
	if err != nil {
		return "", fmt.Errorf("auth: get access token: %w", err)
	}
	return tok.AccessToken, nil
}

func withHTTPClient(ctx context.Context, c *http.Client) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c)
}
