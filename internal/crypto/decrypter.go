// Package crypto unwraps the encrypted envelope of health information entries.
package crypto

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wso2/abdm-integration-api/internal/config"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

// NonceSize is the size in bytes of a requester nonce
const NonceSize = 32

// ErrChecksumMismatch is returned when decrypted content does not match the entry checksum
var ErrChecksumMismatch = errors.New("checksum mismatch")

// Decrypter turns one delivered entry into plaintext bundle bytes.
// fetch carries the requester nonce sent with the health information request;
// km is the sender's key material from the delivery.
type Decrypter interface {
	Algorithm() string
	Decrypt(ctx context.Context, fetch *models.HealthRecordFetchRequest, km *models.KeyMaterial, entry *models.HealthInfoEntry) ([]byte, error)
}

// NewFromConfig builds the configured decrypter
func NewFromConfig(cfg *config.CryptoConfig) (Decrypter, error) {
	switch cfg.Scheme {
	case config.CryptoSchemePlaintext:
		return PlaintextDecrypter{}, nil
	case config.CryptoSchemeAESGCM, "":
		encoded, err := config.ResolveRef(cfg.MasterKeyRef)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve master key: %w", err)
		}
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("master key is not valid base64: %w", err)
		}
		return NewAESGCMDecrypter(key)
	default:
		return nil, fmt.Errorf("unsupported crypto scheme: %s", cfg.Scheme)
	}
}

// GenerateNonce returns a random base64 requester nonce
func GenerateNonce() (string, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce), nil
}

// VerifyChecksum checks plaintext against the entry's checksum when one is supplied
func VerifyChecksum(entry *models.HealthInfoEntry, plaintext []byte) error {
	if entry.Checksum == "" {
		return nil
	}
	if !utils.VerifyChecksum(plaintext, strings.ToLower(entry.Checksum)) {
		return ErrChecksumMismatch
	}
	return nil
}

// PlaintextDecrypter accepts unencrypted content, either raw JSON or base64 encoded JSON.
// Intended for sandbox peers that do not encrypt.
type PlaintextDecrypter struct{}

// Algorithm names the scheme advertised in key material
func (PlaintextDecrypter) Algorithm() string {
	return "NONE"
}

// Decrypt returns the entry content
func (PlaintextDecrypter) Decrypt(_ context.Context, _ *models.HealthRecordFetchRequest, _ *models.KeyMaterial, entry *models.HealthInfoEntry) ([]byte, error) {
	content := bytes.TrimSpace([]byte(entry.Content))
	if len(content) == 0 {
		return nil, errors.New("entry content is empty")
	}
	if content[0] == '{' || content[0] == '[' {
		return content, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(string(content))
	if err != nil {
		return nil, fmt.Errorf("content is neither JSON nor base64: %w", err)
	}
	return decoded, nil
}
