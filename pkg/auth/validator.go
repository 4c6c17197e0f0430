package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DefaultPublicPaths are served without a token.
var DefaultPublicPaths = []string{
	"/.well-known/agent.json",
	"/.well-known/agent-card.json",
}

// ErrNoToken is returned when a request carries no bearer token.
var ErrNoToken = errors.New("Bearer token not found in Authorization header.")

type ValidatorOptions struct {
	// JWKSURL is fetched and cached. Ignored when KeySet is set.
	JWKSURL string

	// KeySet is a fixed set of verification keys.
	KeySet jwk.Set

	// Issuer and Audience are checked when not empty.
	Issuer   string
	Audience string

	// PublicPaths bypass the middleware. Nil means DefaultPublicPaths.
	PublicPaths []string

	// RefreshInterval bounds how often the JWKS is refetched.
	RefreshInterval time.Duration

	Logger *slog.Logger
}

// Validator verifies bearer JWTs.
type Validator struct {
	opts   ValidatorOptions
	cache  *jwk.Cache
	logger *slog.Logger
}

// NewValidator registers the JWKS URL with a refreshing cache bound to ctx.
// The first fetch happens on the first validation.
func NewValidator(ctx context.Context, opts ValidatorOptions) (*Validator, error) {
	if opts.KeySet == nil && opts.JWKSURL == "" {
		return nil, errors.New("auth: JWKS URL or key set is required")
	}
	if opts.PublicPaths == nil {
		opts.PublicPaths = DefaultPublicPaths
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 15 * time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	v := &Validator{opts: opts, logger: logger}
	if opts.KeySet == nil {
		v.cache = jwk.NewCache(ctx)
		if err := v.cache.Register(opts.JWKSURL, jwk.WithMinRefreshInterval(opts.RefreshInterval)); err != nil {
			return nil, fmt.Errorf("auth: register jwks: %w", err)
		}
	}
	if opts.Issuer == "" {
		logger.Debug("no issuer configured, issuer check disabled")
	}
	if opts.Audience == "" {
		logger.Debug("no audience configured, audience check disabled")
	}
	return v, nil
}

func (v *Validator) keySet(ctx context.Context) (jwk.Set, error) {
	if v.opts.KeySet != nil {
		return v.opts.KeySet, nil
	}
	set, err := v.cache.Get(ctx, v.opts.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch jwks from %s: %w", v.opts.JWKSURL, err)
	}
	return set, nil
}

// Validate verifies the signature and the registered claims of raw.
func (v *Validator) Validate(ctx context.Context, raw string) (jwt.Token, error) {
	set, err := v.keySet(ctx)
	if err != nil {
		return nil, err
	}
	opts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(30 * time.Second),
	}
	if v.opts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.opts.Issuer))
	}
	if v.opts.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.opts.Audience))
	}
	tok, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return nil, fmt.Errorf("Invalid token: %w", err)
	}
	return tok, nil
}

// Middleware rejects requests without a valid bearer token with 401.
// Accepted tokens are stored in the request context.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slices.Contains(v.opts.PublicPaths, r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := BearerToken(r.Header)
		if !ok {
			v.logger.WarnContext(r.Context(), "request without bearer token", "path", r.URL.Path)
			unauthorized(w, ErrNoToken)
			return
		}
		if _, err := v.Validate(r.Context(), raw); err != nil {
			v.logger.WarnContext(r.Context(), "token validation failed", "error", err)
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), raw)))
	})
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
