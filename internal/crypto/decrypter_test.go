package crypto

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/abdm-integration-api/internal/config"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

var testMasterKey = bytes.Repeat([]byte{7}, 32)

func TestAESGCMDecrypter_RoundTrip(t *testing.T) {
	d, err := NewAESGCMDecrypter(testMasterKey)
	require.NoError(t, err)

	requesterNonce, err := GenerateNonce()
	require.NoError(t, err)
	senderNonce, err := GenerateNonce()
	require.NoError(t, err)

	bundle := []byte(`{"resourceType":"Bundle"}`)
	content, err := d.Seal(requesterNonce, senderNonce, bundle)
	require.NoError(t, err)

	fetch := &models.HealthRecordFetchRequest{KeyNonce: requesterNonce}
	km := &models.KeyMaterial{Nonce: senderNonce}
	plaintext, err := d.Decrypt(context.Background(), fetch, km, &models.HealthInfoEntry{Content: content})
	require.NoError(t, err)
	assert.Equal(t, bundle, plaintext)
}

func TestAESGCMDecrypter_Failures(t *testing.T) {
	d, err := NewAESGCMDecrypter(testMasterKey)
	require.NoError(t, err)

	requesterNonce, _ := GenerateNonce()
	senderNonce, _ := GenerateNonce()
	otherNonce, _ := GenerateNonce()
	content, err := d.Seal(requesterNonce, senderNonce, []byte(`{}`))
	require.NoError(t, err)

	fetch := &models.HealthRecordFetchRequest{KeyNonce: requesterNonce}

	tests := []struct {
		name  string
		km    *models.KeyMaterial
		entry *models.HealthInfoEntry
	}{
		{"no key material", nil, &models.HealthInfoEntry{Content: content}},
		{"wrong sender nonce", &models.KeyMaterial{Nonce: otherNonce}, &models.HealthInfoEntry{Content: content}},
		{"not base64", &models.KeyMaterial{Nonce: senderNonce}, &models.HealthInfoEntry{Content: "%%%"}},
		{"too short", &models.KeyMaterial{Nonce: senderNonce}, &models.HealthInfoEntry{Content: base64.StdEncoding.EncodeToString([]byte("abc"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decrypt(context.Background(), fetch, tt.km, tt.entry)
			assert.Error(t, err)
		})
	}
}

func TestNewAESGCMDecrypter_KeySize(t *testing.T) {
	_, err := NewAESGCMDecrypter([]byte("short"))
	assert.Error(t, err)
}

func TestPlaintextDecrypter(t *testing.T) {
	d := PlaintextDecrypter{}

	raw, err := d.Decrypt(context.Background(), nil, nil, &models.HealthInfoEntry{Content: ` {"resourceType":"Bundle"}`})
	require.NoError(t, err)
	assert.Equal(t, `{"resourceType":"Bundle"}`, string(raw))

	encoded := base64.StdEncoding.EncodeToString([]byte(`{"resourceType":"Bundle"}`))
	decoded, err := d.Decrypt(context.Background(), nil, nil, &models.HealthInfoEntry{Content: encoded})
	require.NoError(t, err)
	assert.Equal(t, `{"resourceType":"Bundle"}`, string(decoded))

	_, err = d.Decrypt(context.Background(), nil, nil, &models.HealthInfoEntry{Content: ""})
	assert.Error(t, err)
}

func TestVerifyChecksum(t *testing.T) {
	plaintext := []byte(`{"a":1}`)

	assert.NoError(t, VerifyChecksum(&models.HealthInfoEntry{}, plaintext))
	assert.NoError(t, VerifyChecksum(&models.HealthInfoEntry{Checksum: utils.Checksum(plaintext)}, plaintext))
	assert.ErrorIs(t, VerifyChecksum(&models.HealthInfoEntry{Checksum: utils.Checksum([]byte("x"))}, plaintext), ErrChecksumMismatch)
}

func TestNewFromConfig(t *testing.T) {
	d, err := NewFromConfig(&config.CryptoConfig{Scheme: config.CryptoSchemePlaintext})
	require.NoError(t, err)
	assert.IsType(t, PlaintextDecrypter{}, d)

	t.Setenv("TEST_HI_MASTER_KEY", base64.StdEncoding.EncodeToString(testMasterKey))
	d, err = NewFromConfig(&config.CryptoConfig{Scheme: config.CryptoSchemeAESGCM, MasterKeyRef: "env:TEST_HI_MASTER_KEY"})
	require.NoError(t, err)
	assert.IsType(t, &AESGCMDecrypter{}, d)

	_, err = NewFromConfig(&config.CryptoConfig{Scheme: "rot13"})
	assert.Error(t, err)
}
