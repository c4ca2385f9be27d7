package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/wso2/abdm-integration-api/internal/config"
)

// CredentialResolver supplies the gateway client secret. The secret both
// authenticates the session request and keys the request signature.
type CredentialResolver interface {
	ClientSecret(ctx context.Context) (string, error)
}

// RefCredentialResolver resolves a config secret reference once and caches it
type RefCredentialResolver struct {
	ref string

	once   sync.Once
	secret string
	err    error
}

// NewRefCredentialResolver creates a resolver for an env:, file: or literal reference
func NewRefCredentialResolver(ref string) *RefCredentialResolver {
	return &RefCredentialResolver{ref: ref}
}

// ClientSecret returns the resolved secret
func (r *RefCredentialResolver) ClientSecret(_ context.Context) (string, error) {
	r.once.Do(func() {
		r.secret, r.err = config.ResolveRef(r.ref)
	})
	return r.secret, r.err
}

// StaticCredentials is a fixed secret
type StaticCredentials string

// ClientSecret returns the secret
func (s StaticCredentials) ClientSecret(_ context.Context) (string, error) {
	return string(s), nil
}

// Sign computes the hex HMAC-SHA256 of timestamp and body under secret
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches timestamp and body under secret
func VerifySignature(secret, timestamp string, body []byte, signature string) bool {
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
