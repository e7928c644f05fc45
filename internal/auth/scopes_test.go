package auth

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

// buildToken assembles an unsigned JWT carrying the given claims, enough for
// the unverified claim inspection these helpers do.
func buildToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := map[string]string{"alg": "none", "typ": "JWT"}

	enc := func(v any) string {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal token part: %v", err)
		}
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	return enc(header) + "." + enc(claims) + "."
}

func TestValidateScopes(t *testing.T) {
	tests := []struct {
		name     string
		claims   map[string]any
		required []string
		wantErr  bool
	}{
		{
			name:     "delegated scopes present",
			claims:   map[string]any{"scp": "Group.ReadWrite.All DeviceManagementServiceConfig.ReadWrite.All"},
			required: []string{"Group.ReadWrite.All"},
		},
		{
			name:     "app roles present",
			claims:   map[string]any{"roles": []any{"DeviceManagementManagedDevices.Read.All"}},
			required: []string{"DeviceManagementManagedDevices.Read.All"},
		},
		{
			name:     "case insensitive",
			claims:   map[string]any{"scp": "group.readwrite.all"},
			required: []string{"Group.ReadWrite.All"},
		},
		{
			name:     "missing scope",
			claims:   map[string]any{"scp": "User.Read"},
			required: []string{"Group.ReadWrite.All"},
			wantErr:  true,
		},
		{
			name:     "no scope claims at all",
			claims:   map[string]any{"aud": "https://graph.microsoft.com"},
			required: []string{"Group.ReadWrite.All"},
			wantErr:  true,
		},
		{
			name:     "nothing required",
			claims:   map[string]any{},
			required: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := buildToken(t, tt.claims)
			err := ValidateScopes(token, tt.required)
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateScopesGarbageToken(t *testing.T) {
	if err := ValidateScopes("not-a-jwt", []string{"User.Read"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTenantID(t *testing.T) {
	token := buildToken(t, map[string]any{"tid": "11111111-2222-3333-4444-555555555555"})

	tid, err := TenantID(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tid != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("unexpected tid: %s", tid)
	}

	token = buildToken(t, map[string]any{})
	if _, err := TenantID(token); err == nil {
		t.Fatal("expected error for token without tid")
	}
}
