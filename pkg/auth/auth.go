// Package auth validates incoming bearer tokens and obtains outgoing ones.
//
// A Validator checks JWTs against a JWKS endpoint and, as HTTP middleware,
// stores the accepted raw token in the request context so that agents can
// forward it, optionally through an Exchanger, to the tools they call.
package auth

import (
	"context"
	"net/http"
	"strings"
)

type tokenKey struct{}

// WithToken returns a copy of ctx carrying the raw bearer token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token stored by WithToken.
func TokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(tokenKey{}).(string)
	return tok, ok && tok != ""
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(h http.Header) (string, bool) {
	v := h.Get("Authorization")
	scheme, tok, ok := strings.Cut(v, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
