package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ValidateScopes checks that a freshly issued token carries every required
// Graph permission. Delegated tokens carry the "scp" claim, app-only tokens
// "roles". The signature is not verified: the token came straight from the
// identity platform and is only inspected, never trusted for inbound auth.
func ValidateScopes(token string, required []string) error {
	if len(required) == 0 {
		return nil
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	granted := make(map[string]bool)
	if scp, ok := claims["scp"].(string); ok {
		for _, s := range strings.Fields(scp) {
			granted[strings.ToLower(s)] = true
		}
	}
	if roles, ok := claims["roles"].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				granted[strings.ToLower(s)] = true
			}
		}
	}

	var missing []string
	for _, want := range required {
		if !granted[strings.ToLower(want)] {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("token missing required permissions: %s", strings.Join(missing, ", "))
	}
	return nil
}

// TenantID extracts the tid claim, useful for confirming the token was
// issued by the expected tenant.
func TenantID(token string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	tid, ok := claims["tid"].(string)
	if !ok {
		return "", fmt.Errorf("no tid claim in token")
	}
	return tid, nil
}
