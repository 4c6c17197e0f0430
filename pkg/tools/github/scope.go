package github

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ScopeExchanger picks one of two configured upstream tokens depending on
// whether the caller's token carries RequiredScope. The caller's token is
// expected to have been verified upstream; only its claims are read here.
type ScopeExchanger struct {
	RequiredScope string

	// InScope and OutOfScope are upstream tokens, with or without a
	// "Bearer " prefix.
	InScope    string
	OutOfScope string
}

var _ TokenExchanger = ScopeExchanger{}

func (s ScopeExchanger) Exchange(_ context.Context, subject string) (string, error) {
	tok, err := jwt.ParseString(subject, jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("parse caller token: %w", err)
	}
	v, _ := tok.Get("scope")
	scopes, _ := v.(string)
	if scopes == "" {
		return "", errors.New("caller token has no scopes")
	}

	upstream := s.OutOfScope
	if slices.Contains(strings.Fields(scopes), s.RequiredScope) {
		upstream = s.InScope
	}
	upstream = strings.TrimSpace(upstream)
	if after, ok := strings.CutPrefix(upstream, "Bearer "); ok {
		upstream = after
	}
	if upstream == "" {
		return "", errors.New("no upstream token configured for caller scopes")
	}
	return upstream, nil
}
