package models

import (
	"strings"

	"github.com/wso2/abdm-integration-api/pkg/utils"
)

// ConsentCallback is the body of a consent notification from the network
type ConsentCallback struct {
	RequestID    string              `json:"requestId"`
	Timestamp    string              `json:"timestamp"`
	Notification ConsentNotification `json:"notification"`
}

// ConsentNotification carries the decision or status change for one consent request
type ConsentNotification struct {
	ConsentRequestID string          `json:"consentRequestId"`
	Status           string          `json:"status"`
	Reason           string          `json:"reason,omitempty"`
	ConsentArtefacts []ArtifactGrant `json:"consentArtefacts,omitempty"`
}

// ArtifactGrant is one consent artifact issued with a GRANTED decision
type ArtifactGrant struct {
	ID         string            `json:"id"`
	HIPID      string            `json:"hipId,omitempty"`
	Permission ConsentPermission `json:"permission"`
	GrantedAt  string            `json:"grantedAt,omitempty"`
	ExpiresAt  string            `json:"expiresAt,omitempty"`
}

// HealthInfoCallback is one delivery of health information entries from a data holder
type HealthInfoCallback struct {
	RequestID     string            `json:"requestId"`
	TransactionID string            `json:"transactionId"`
	HIPID         string            `json:"hipId,omitempty"`
	HIPName       string            `json:"hipName,omitempty"`
	TotalRecords  *int              `json:"totalRecords,omitempty"`
	Entries       []HealthInfoEntry `json:"entries"`
	KeyMaterial   *KeyMaterial      `json:"keyMaterial,omitempty"`
	Error         *CallbackError    `json:"error,omitempty"`
}

// IsHeartbeat reports whether the delivery carries nothing to apply
func (c *HealthInfoCallback) IsHeartbeat() bool {
	return len(c.Entries) == 0 && c.TotalRecords == nil && c.Error == nil
}

// HealthInfoEntry is one encrypted document bundle inside a delivery
type HealthInfoEntry struct {
	RecordID             string `json:"recordId,omitempty"`
	Content              string `json:"content"`
	Media                string `json:"media"`
	Checksum             string `json:"checksum,omitempty"`
	CareContextReference string `json:"careContextReference,omitempty"`
}

// ExternalRecordID identifies the entry across redeliveries. Without a record id it
// is a digest of the content, scoped by the care context reference when present;
// one care context can carry several documents.
func (e *HealthInfoEntry) ExternalRecordID() string {
	if id := strings.TrimSpace(e.RecordID); id != "" {
		return id
	}
	digest := "sha256:" + utils.Checksum([]byte(e.Content))
	if ref := strings.TrimSpace(e.CareContextReference); ref != "" {
		return ref + ":" + digest
	}
	return digest
}

// KeyMaterial is the sender's key exchange material for a delivery
type KeyMaterial struct {
	CryptoAlg   string      `json:"cryptoAlg"`
	Curve       string      `json:"curve,omitempty"`
	DHPublicKey DHPublicKey `json:"dhPublicKey"`
	Nonce       string      `json:"nonce"`
}

// DHPublicKey is a public key advertised in key material
type DHPublicKey struct {
	Expiry     string `json:"expiry,omitempty"`
	Parameters string `json:"parameters,omitempty"`
	KeyValue   string `json:"keyValue,omitempty"`
}

// CallbackError is a transfer failure reported by the network
type CallbackError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CallbackKind identifies which orchestrator handles an inbox entry
type CallbackKind string

const (
	CallbackKindConsent    CallbackKind = "CONSENT"
	CallbackKindHealthInfo CallbackKind = "HEALTH_INFO"
)

// CallbackStatus is the processing state of an inbox entry
type CallbackStatus string

const (
	CallbackPending    CallbackStatus = "PENDING"
	CallbackProcessing CallbackStatus = "PROCESSING"
	CallbackProcessed  CallbackStatus = "PROCESSED"
	CallbackFailed     CallbackStatus = "FAILED"
)

// CallbackInboxEntry represents the CALLBACK_INBOX table
type CallbackInboxEntry struct {
	CallbackID        string         `db:"CALLBACK_ID"`
	Kind              CallbackKind   `db:"KIND"`
	CallbackRequestID *string        `db:"CALLBACK_REQUEST_ID"`
	ExternalRequestID string         `db:"EXTERNAL_REQUEST_ID"`
	Payload           JSON           `db:"PAYLOAD"`
	Status            CallbackStatus `db:"STATUS"`
	Attempts          int            `db:"ATTEMPTS"`
	LastError         *string        `db:"LAST_ERROR"`
	ReceivedTime      int64          `db:"RECEIVED_TIME"`
	UpdatedTime       int64          `db:"UPDATED_TIME"`
	ProcessedTime     *int64         `db:"PROCESSED_TIME"`
}
