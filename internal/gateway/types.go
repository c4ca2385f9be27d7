package gateway

import "github.com/wso2/abdm-integration-api/internal/models"

type sessionRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type sessionResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
	TokenType   string `json:"tokenType,omitempty"`
}

// ConsentInitRequest is the outbound consent request envelope
type ConsentInitRequest struct {
	RequestID   string        `json:"requestId"`
	Timestamp   string        `json:"timestamp"`
	Consent     ConsentDetail `json:"consent"`
	CallbackURL string        `json:"callbackUrl,omitempty"`
}

// ConsentDetail describes the permission asked of the patient
type ConsentDetail struct {
	Purpose    Purpose                  `json:"purpose"`
	Patient    Reference                `json:"patient"`
	HIU        Reference                `json:"hiu"`
	HIPs       []Reference              `json:"hips,omitempty"`
	Requester  Requester                `json:"requester"`
	HITypes    []string                 `json:"hiTypes"`
	Permission models.ConsentPermission `json:"permission"`
}

// Purpose is the coded purpose of use
type Purpose struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// Reference identifies a network participant
type Reference struct {
	ID string `json:"id"`
}

// Requester identifies the requesting doctor
type Requester struct {
	Name       string     `json:"name,omitempty"`
	Identifier Identifier `json:"identifier"`
}

// Identifier is a typed identifier value
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// ConsentInitResponse is the gateway acknowledgement of a consent request
type ConsentInitResponse struct {
	RequestID      string     `json:"requestId"`
	ConsentRequest *Reference `json:"consentRequest,omitempty"`
	Error          *ErrorBody `json:"error,omitempty"`
}

// ConsentRevokeRequest is the outbound revocation envelope
type ConsentRevokeRequest struct {
	RequestID        string      `json:"requestId"`
	Timestamp        string      `json:"timestamp"`
	ConsentRequestID string      `json:"consentRequestId"`
	Consents         []Reference `json:"consents,omitempty"`
	Reason           string      `json:"reason"`
}

// HealthInfoRequest is the outbound health information request envelope
type HealthInfoRequest struct {
	RequestID string        `json:"requestId"`
	Timestamp string        `json:"timestamp"`
	HIRequest HIRequestBody `json:"hiRequest"`
}

// HIRequestBody scopes a fetch by artifact, date range and key material
type HIRequestBody struct {
	Consent     Reference              `json:"consent"`
	HITypes     []string               `json:"hiTypes,omitempty"`
	DateRange   models.PermissionRange `json:"dateRange"`
	DataPushURL string                 `json:"dataPushUrl"`
	KeyMaterial models.KeyMaterial     `json:"keyMaterial"`
}

// HealthInfoResponse is the gateway acknowledgement of a health information request
type HealthInfoResponse struct {
	RequestID string `json:"requestId"`
	HIRequest *struct {
		TransactionID string `json:"transactionId"`
		SessionStatus string `json:"sessionStatus,omitempty"`
	} `json:"hiRequest,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the gateway's error payload
type ErrorBody struct {
	Code    interface{} `json:"code"`
	Message string      `json:"message"`
}
