package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Well known locations of workload credentials.
const (
	DefaultSVIDPath   = "/opt/jwt_svid.token"
	DefaultSecretPath = "/shared/secret.txt"
)

// ClientIDFromSVID reads the JWT SVID at path and returns its subject. The
// signature is not verified; the file is trusted local state.
func ClientIDFromSVID(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("auth: read svid: %w", err)
	}
	content := strings.TrimSpace(string(b))
	if content == "" {
		return "", errors.New("auth: no content read from SVID JWT")
	}
	tok, err := jwt.Parse([]byte(content), jwt.WithVerify(false), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("auth: parse svid: %w", err)
	}
	if tok.Subject() == "" {
		return "", errors.New(`auth: SVID JWT does not contain a "sub" claim`)
	}
	return tok.Subject(), nil
}

// ReadSecretFile returns the trimmed content of path.
func ReadSecretFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("auth: read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
