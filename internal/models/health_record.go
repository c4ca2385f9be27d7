package models

// RecordSource is where a health record came from
type RecordSource string

const (
	RecordSourceABDM     RecordSource = "ABDM"
	RecordSourceLocal    RecordSource = "LOCAL"
	RecordSourceImported RecordSource = "IMPORTED"
)

// RecordStatus is the logical state of a health record
type RecordStatus string

const (
	RecordActive   RecordStatus = "ACTIVE"
	RecordArchived RecordStatus = "ARCHIVED"
	RecordDeleted  RecordStatus = "DELETED"
)

// CanTransitionTo reports whether the record may move to the given status.
// Records never return to ACTIVE.
func (s RecordStatus) CanTransitionTo(to RecordStatus) bool {
	switch s {
	case RecordActive:
		return to == RecordArchived || to == RecordDeleted
	case RecordArchived:
		return to == RecordDeleted
	}
	return false
}

// HealthRecord represents the HEALTH_RECORD table
type HealthRecord struct {
	RecordID         string       `db:"RECORD_ID" json:"id"`
	PatientID        string       `db:"PATIENT_ID" json:"patientId"`
	FetchRequestID   *string      `db:"FETCH_REQUEST_ID" json:"fetchRequestId,omitempty"`
	ExternalRecordID *string      `db:"EXTERNAL_RECORD_ID" json:"externalRecordId,omitempty"`
	ResourceID       string       `db:"RESOURCE_ID" json:"resourceId"`
	ResourceType     string       `db:"RESOURCE_TYPE" json:"resourceType"`
	RecordType       RecordType   `db:"RECORD_TYPE" json:"recordType"`
	RecordDate       int64        `db:"RECORD_DATE" json:"recordDate"`
	ProviderID       *string      `db:"PROVIDER_ID" json:"providerId,omitempty"`
	ProviderName     *string      `db:"PROVIDER_NAME" json:"providerName,omitempty"`
	ProviderType     *string      `db:"PROVIDER_TYPE" json:"providerType,omitempty"`
	FHIRResource     JSON         `db:"FHIR_RESOURCE" json:"fhirResource,omitempty"`
	Source           RecordSource `db:"SOURCE" json:"source"`
	Status           RecordStatus `db:"STATUS" json:"status"`
	Checksum         string       `db:"CHECKSUM" json:"checksum"`
	FetchedTime      *int64       `db:"FETCHED_TIME" json:"fetchedTime,omitempty"`
	IndexedTime      *int64       `db:"INDEXED_TIME" json:"indexedTime,omitempty"`
	CreatedTime      int64        `db:"CREATED_TIME" json:"createdTime"`
	UpdatedTime      int64        `db:"UPDATED_TIME" json:"updatedTime"`
}

// HealthRecordSummary is a list item without the clinical payload
type HealthRecordSummary struct {
	RecordID     string       `db:"RECORD_ID" json:"id"`
	PatientID    string       `db:"PATIENT_ID" json:"patientId"`
	ResourceType string       `db:"RESOURCE_TYPE" json:"resourceType"`
	RecordType   RecordType   `db:"RECORD_TYPE" json:"recordType"`
	RecordDate   int64        `db:"RECORD_DATE" json:"recordDate"`
	ProviderName *string      `db:"PROVIDER_NAME" json:"providerName,omitempty"`
	Source       RecordSource `db:"SOURCE" json:"source"`
	Status       RecordStatus `db:"STATUS" json:"status"`
	CreatedTime  int64        `db:"CREATED_TIME" json:"createdTime"`
}

// HealthRecordFilter selects health records for a patient
type HealthRecordFilter struct {
	PatientID  string
	RecordType RecordType
	From       int64
	To         int64
	Limit      int
	Offset     int
}

// HealthRecordDetail is a full record read with its integrity check result
type HealthRecordDetail struct {
	HealthRecord
	IntegrityVerified bool `json:"integrityVerified"`
}

// ProcessingStage is one step of the health information pipeline
type ProcessingStage string

const (
	StageFetch    ProcessingStage = "FETCH"
	StageDecrypt  ProcessingStage = "DECRYPT"
	StageParse    ProcessingStage = "PARSE"
	StageValidate ProcessingStage = "VALIDATE"
	StageStore    ProcessingStage = "STORE"
	StageIndex    ProcessingStage = "INDEX"
)

// ProcessingOutcome is the result of one stage attempt
type ProcessingOutcome string

const (
	OutcomeSuccess ProcessingOutcome = "SUCCESS"
	OutcomeFailed  ProcessingOutcome = "FAILED"
	OutcomeSkipped ProcessingOutcome = "SKIPPED"
	OutcomeRetry   ProcessingOutcome = "RETRY"
)

// HealthRecordProcessingLogEntry represents the HEALTH_RECORD_PROCESSING_LOG table
type HealthRecordProcessingLogEntry struct {
	LogID            string            `db:"LOG_ID" json:"id"`
	FetchRequestID   string            `db:"FETCH_REQUEST_ID" json:"fetchRequestId"`
	RecordID         *string           `db:"RECORD_ID" json:"recordId,omitempty"`
	ExternalRecordID *string           `db:"EXTERNAL_RECORD_ID" json:"externalRecordId,omitempty"`
	Stage            ProcessingStage   `db:"STAGE" json:"stage"`
	Outcome          ProcessingOutcome `db:"OUTCOME" json:"outcome"`
	ErrorMessage     *string           `db:"ERROR_MESSAGE" json:"errorMessage,omitempty"`
	DurationMillis   int64             `db:"DURATION_MS" json:"durationMs"`
	Details          JSON              `db:"DETAILS" json:"details,omitempty"`
	CreatedTime      int64             `db:"CREATED_TIME" json:"createdTime"`
}

// AccessAction is what was done to a health record
type AccessAction string

const (
	AccessView    AccessAction = "VIEW"
	AccessExport  AccessAction = "EXPORT"
	AccessArchive AccessAction = "ARCHIVE"
	AccessDelete  AccessAction = "DELETE"
)

// HealthRecordAccessLog represents the HEALTH_RECORD_ACCESS_LOG table
type HealthRecordAccessLog struct {
	AccessID    string       `db:"ACCESS_ID" json:"id"`
	RecordID    string       `db:"RECORD_ID" json:"recordId"`
	PatientID   string       `db:"PATIENT_ID" json:"patientId"`
	ActorID     string       `db:"ACTOR_ID" json:"actorId"`
	ActorType   ActorType    `db:"ACTOR_TYPE" json:"actorType"`
	Action      AccessAction `db:"ACTION" json:"action"`
	IPAddress   *string      `db:"IP_ADDRESS" json:"ipAddress,omitempty"`
	UserAgent   *string      `db:"USER_AGENT" json:"userAgent,omitempty"`
	CreatedTime int64        `db:"CREATED_TIME" json:"createdTime"`
}
