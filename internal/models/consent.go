package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ConsentRequestStatus is the lifecycle state of a consent request
type ConsentRequestStatus string

const (
	ConsentRequested ConsentRequestStatus = "REQUESTED"
	ConsentGranted   ConsentRequestStatus = "GRANTED"
	ConsentDenied    ConsentRequestStatus = "DENIED"
	ConsentRevoked   ConsentRequestStatus = "REVOKED"
	ConsentExpired   ConsentRequestStatus = "EXPIRED"
)

// consentTransitions lists the legal edges of the consent request state machine
var consentTransitions = map[ConsentRequestStatus][]ConsentRequestStatus{
	ConsentRequested: {ConsentGranted, ConsentDenied, ConsentExpired, ConsentRevoked},
	ConsentGranted:   {ConsentRevoked, ConsentExpired},
}

// IsTerminal reports whether no transition leaves this status
func (s ConsentRequestStatus) IsTerminal() bool {
	return s == ConsentDenied || s == ConsentRevoked || s == ConsentExpired
}

// IsValid reports whether the status is known
func (s ConsentRequestStatus) IsValid() bool {
	switch s {
	case ConsentRequested, ConsentGranted, ConsentDenied, ConsentRevoked, ConsentExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether from -> to is an edge of the state machine
func (s ConsentRequestStatus) CanTransitionTo(to ConsentRequestStatus) bool {
	for _, next := range consentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ArtifactStatus is the state of a granted consent artifact
type ArtifactStatus string

const (
	ArtifactActive  ArtifactStatus = "ACTIVE"
	ArtifactRevoked ArtifactStatus = "REVOKED"
	ArtifactExpired ArtifactStatus = "EXPIRED"
)

// ConsentRequest represents the CONSENT_REQUEST table
type ConsentRequest struct {
	ConsentRequestID  string               `db:"CONSENT_REQUEST_ID" json:"id"`
	PatientID         string               `db:"PATIENT_ID" json:"patientId"`
	DoctorID          string               `db:"DOCTOR_ID" json:"doctorId"`
	ExternalRequestID *string              `db:"EXTERNAL_REQUEST_ID" json:"externalRequestId,omitempty"`
	PurposeCode       string               `db:"PURPOSE_CODE" json:"purposeCode"`
	PurposeText       string               `db:"PURPOSE_TEXT" json:"purposeText"`
	HITypes           StringList           `db:"HI_TYPES" json:"hiTypes"`
	DateRangeFrom     int64                `db:"DATE_RANGE_FROM" json:"dateRangeFrom"`
	DateRangeTo       int64                `db:"DATE_RANGE_TO" json:"dateRangeTo"`
	ExpiryTime        int64                `db:"EXPIRY_TIME" json:"expiryTime"`
	HIPIDs            StringList           `db:"HIP_IDS" json:"hipIds,omitempty"`
	Status            ConsentRequestStatus `db:"STATUS" json:"status"`
	CallbackURL       string               `db:"CALLBACK_URL" json:"callbackUrl"`
	CreatedTime       int64                `db:"CREATED_TIME" json:"createdTime"`
	UpdatedTime       int64                `db:"UPDATED_TIME" json:"updatedTime"`
}

// ConsentPermission is the permission payload of a granted artifact
type ConsentPermission struct {
	AccessMode  string            `json:"accessMode"`
	DateRange   PermissionRange   `json:"dateRange"`
	DataEraseAt string            `json:"dataEraseAt,omitempty"`
	Frequency   *ConsentFrequency `json:"frequency,omitempty"`
}

// PermissionRange is the granted date range as sent by the network (ISO 8601)
type PermissionRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ConsentFrequency describes how often data may be fetched under a permission
type ConsentFrequency struct {
	Unit    string `json:"unit"`
	Value   int    `json:"value"`
	Repeats int    `json:"repeats"`
}

// Scan implements the sql.Scanner interface
func (p *ConsentPermission) Scan(value interface{}) error {
	if value == nil {
		*p = ConsentPermission{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type for permission: %T", value)
	}
	return json.Unmarshal(bytes, p)
}

// Value implements the driver.Valuer interface
func (p ConsentPermission) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ConsentArtifact represents the CONSENT_ARTIFACT table
type ConsentArtifact struct {
	ArtifactID         string            `db:"ARTIFACT_ID" json:"id"`
	ConsentRequestID   string            `db:"CONSENT_REQUEST_ID" json:"consentRequestId"`
	ExternalArtifactID string            `db:"EXTERNAL_ARTIFACT_ID" json:"externalArtifactId"`
	HIPID              *string           `db:"HIP_ID" json:"hipId,omitempty"`
	Permission         ConsentPermission `db:"PERMISSION" json:"permission"`
	Status             ArtifactStatus    `db:"STATUS" json:"status"`
	GrantedTime        int64             `db:"GRANTED_TIME" json:"grantedTime"`
	ExpiryTime         int64             `db:"EXPIRY_TIME" json:"expiryTime"`
	RevokedTime        *int64            `db:"REVOKED_TIME" json:"revokedTime,omitempty"`
	RevocationReason   *string           `db:"REVOCATION_REASON" json:"revocationReason,omitempty"`
	CreatedTime        int64             `db:"CREATED_TIME" json:"createdTime"`
	UpdatedTime        int64             `db:"UPDATED_TIME" json:"updatedTime"`
}

// IsActive reports whether the artifact is ACTIVE and unexpired at now
func (a *ConsentArtifact) IsActive(now time.Time) bool {
	return a.Status == ArtifactActive && now.UnixMilli() < a.ExpiryTime
}

// Audit actions
const (
	AuditConsentRequested    = "CONSENT_REQUESTED"
	AuditConsentSubmitted    = "CONSENT_SUBMITTED"
	AuditConsentGranted      = "CONSENT_GRANTED"
	AuditConsentDenied       = "CONSENT_DENIED"
	AuditConsentRevoked      = "CONSENT_REVOKED"
	AuditConsentExpired      = "CONSENT_EXPIRED"
	AuditArtifactReissued    = "ARTIFACT_REISSUED"
	AuditArtifactExpired     = "ARTIFACT_EXPIRED"
	AuditHealthInfoRequested = "HEALTH_INFO_REQUESTED"
)

// ConsentAuditLogEntry represents the CONSENT_AUDIT_LOG table
type ConsentAuditLogEntry struct {
	AuditID          string    `db:"AUDIT_ID" json:"id"`
	ConsentRequestID *string   `db:"CONSENT_REQUEST_ID" json:"consentRequestId,omitempty"`
	ArtifactID       *string   `db:"ARTIFACT_ID" json:"artifactId,omitempty"`
	Action           string    `db:"ACTION" json:"action"`
	ActorID          string    `db:"ACTOR_ID" json:"actorId"`
	ActorType        ActorType `db:"ACTOR_TYPE" json:"actorType"`
	PreviousStatus   *string   `db:"PREVIOUS_STATUS" json:"previousStatus,omitempty"`
	NewStatus        *string   `db:"NEW_STATUS" json:"newStatus,omitempty"`
	Details          JSON      `db:"DETAILS" json:"details,omitempty"`
	IPAddress        *string   `db:"IP_ADDRESS" json:"ipAddress,omitempty"`
	UserAgent        *string   `db:"USER_AGENT" json:"userAgent,omitempty"`
	CreatedTime      int64     `db:"CREATED_TIME" json:"createdTime"`
}

// ConsentRequestDetail is a consent request with its artifacts
type ConsentRequestDetail struct {
	ConsentRequest
	Artifacts []ConsentArtifact `json:"artifacts"`
}
