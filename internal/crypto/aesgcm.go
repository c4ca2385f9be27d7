package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/wso2/abdm-integration-api/internal/models"
)

const (
	masterKeySize = 32
	hkdfInfo      = "abdm-hi-transfer"
)

// AESGCMDecrypter opens AES-256-GCM content keyed per transfer. The transfer key is
// HKDF-SHA256 of the master key salted with requester nonce followed by sender nonce.
type AESGCMDecrypter struct {
	masterKey []byte
}

// NewAESGCMDecrypter creates a decrypter with a 32-byte master key
func NewAESGCMDecrypter(masterKey []byte) (*AESGCMDecrypter, error) {
	if len(masterKey) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(masterKey))
	}
	key := make([]byte, masterKeySize)
	copy(key, masterKey)
	return &AESGCMDecrypter{masterKey: key}, nil
}

// Algorithm names the scheme advertised in key material
func (d *AESGCMDecrypter) Algorithm() string {
	return "AES-256-GCM+HKDF-SHA256"
}

// Decrypt opens base64(nonce || ciphertext) content
func (d *AESGCMDecrypter) Decrypt(_ context.Context, fetch *models.HealthRecordFetchRequest, km *models.KeyMaterial, entry *models.HealthInfoEntry) ([]byte, error) {
	if km == nil || km.Nonce == "" {
		return nil, errors.New("delivery carries no sender key material")
	}

	aead, err := d.transferCipher(fetch.KeyNonce, km.Nonce)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(entry.Content)
	if err != nil {
		return nil, fmt.Errorf("content is not valid base64: %w", err)
	}

	nonceSize := aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open content: %w", err)
	}
	return plaintext, nil
}

// Seal encrypts plaintext the way a sender would for the given nonces and returns
// the base64 entry content
func (d *AESGCMDecrypter) Seal(requesterNonce, senderNonce string, plaintext []byte) (string, error) {
	aead, err := d.transferCipher(requesterNonce, senderNonce)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	return base64.StdEncoding.EncodeToString(aead.Seal(nonce, nonce, plaintext, nil)), nil
}

func (d *AESGCMDecrypter) transferCipher(requesterNonce, senderNonce string) (cipher.AEAD, error) {
	rn, err := base64.StdEncoding.DecodeString(requesterNonce)
	if err != nil || len(rn) == 0 {
		return nil, errors.New("requester nonce is missing or not valid base64")
	}
	sn, err := base64.StdEncoding.DecodeString(senderNonce)
	if err != nil || len(sn) == 0 {
		return nil, errors.New("sender nonce is missing or not valid base64")
	}

	salt := make([]byte, 0, len(rn)+len(sn))
	salt = append(salt, rn...)
	salt = append(salt, sn...)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, d.masterKey, salt, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive transfer key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
