package models

// ConsentRequestCreateRequest is the body of POST /consent-requests
type ConsentRequestCreateRequest struct {
	PatientID   string    `json:"patientId" binding:"required"`
	DoctorID    string    `json:"doctorId" binding:"required"`
	PurposeCode string    `json:"purposeCode" binding:"required"`
	PurposeText string    `json:"purposeText"`
	HITypes     []string  `json:"hiTypes"`
	DateRange   DateRange `json:"dateRange"`
	// ExpiryTime in epoch millis; zero applies the configured default expiry
	ExpiryTime int64    `json:"expiryTime,omitempty"`
	HIPIDs     []string `json:"hipIds,omitempty"`
}

// ConsentRevokeRequest is the body of POST /consent-requests/{id}/revoke
type ConsentRevokeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// FetchHealthRecordsRequest is the body of POST /health-records/fetch
type FetchHealthRecordsRequest struct {
	ConsentArtifactID string     `json:"consentArtifactId" binding:"required"`
	HITypes           []string   `json:"hiTypes,omitempty"`
	DateRange         *DateRange `json:"dateRange,omitempty"`
}

// FetchCancelRequest is the body of POST /health-records/fetch/{id}/cancel
type FetchCancelRequest struct {
	Reason string `json:"reason"`
}

// CallbackAck is returned to the network for every accepted callback
type CallbackAck struct {
	Status     string `json:"status"`
	CallbackID string `json:"callbackId,omitempty"`
	Duplicate  bool   `json:"duplicate,omitempty"`
}
