package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/gratbox/graph-csv-sync/internal/config"
)

// TokenSource hands out a bearer token for each request, caching the azcore
// token until shortly before expiry.
type TokenSource struct {
	cred   azcore.TokenCredential
	scopes []string

	mu    sync.Mutex
	token azcore.AccessToken
}

func NewTokenSource(cfg config.Graph) (*TokenSource, error) {
	cred, err := newCredential(cfg)
	if err != nil {
		return nil, err
	}
	return &TokenSource{cred: cred, scopes: cfg.Scopes}, nil
}

func newCredential(cfg config.Graph) (azcore.TokenCredential, error) {
	switch cfg.AuthMethod {
	case "device-code":
		return azidentity.NewDeviceCodeCredential(&azidentity.DeviceCodeCredentialOptions{
			TenantID: cfg.TenantID,
			ClientID: cfg.ClientID,
			UserPrompt: func(ctx context.Context, dc azidentity.DeviceCodeMessage) error {
				fmt.Println(dc.Message)
				return nil
			},
		})
	case "client-secret":
		if cfg.Secret == "" {
			return nil, fmt.Errorf("auth method client-secret requires a secret")
		}
		return azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.Secret, nil)
	case "browser":
		return azidentity.NewInteractiveBrowserCredential(&azidentity.InteractiveBrowserCredentialOptions{
			TenantID: cfg.TenantID,
			ClientID: cfg.ClientID,
		})
	default:
		return nil, fmt.Errorf("unknown auth method %q", cfg.AuthMethod)
	}
}

// Token returns a valid bearer token, refreshing through the credential when
// the cached one is within a minute of expiry.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token.Token != "" && time.Until(ts.token.ExpiresOn) > time.Minute {
		return ts.token.Token, nil
	}

	token, err := ts.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: ts.scopes})
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	ts.token = token
	slog.Debug("Acquired graph token", "expires", token.ExpiresOn)
	return token.Token, nil
}
