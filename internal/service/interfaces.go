package service

import (
	"context"

	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/models"
)

// The store interfaces below are satisfied by the DAOs in internal/dao.

// Transactor runs fn inside a database transaction
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(tx *database.Transaction) error) error
}

// ConsentRequestStore persists consent requests
type ConsentRequestStore interface {
	CreateWithTx(ctx context.Context, tx *database.Transaction, req *models.ConsentRequest) error
	GetByID(ctx context.Context, consentRequestID string) (*models.ConsentRequest, error)
	GetByIDForUpdate(ctx context.Context, tx *database.Transaction, consentRequestID string) (*models.ConsentRequest, error)
	GetByExternalRequestIDForUpdate(ctx context.Context, tx *database.Transaction, externalRequestID string) (*models.ConsentRequest, error)
	SetExternalRequestID(ctx context.Context, consentRequestID, externalRequestID string, updatedTime int64) error
	UpdateStatusWithTx(ctx context.Context, tx *database.Transaction, consentRequestID string, from, to models.ConsentRequestStatus, updatedTime int64) (bool, error)
	ListByPatient(ctx context.Context, patientID string, statuses []models.ConsentRequestStatus) ([]models.ConsentRequest, error)
	ListExpiredRequested(ctx context.Context, now int64, limit int) ([]models.ConsentRequest, error)
}

// ConsentArtifactStore persists consent artifacts
type ConsentArtifactStore interface {
	CreateWithTx(ctx context.Context, tx *database.Transaction, artifact *models.ConsentArtifact) error
	GetByID(ctx context.Context, artifactID string) (*models.ConsentArtifact, error)
	ListByConsentRequestID(ctx context.Context, consentRequestID string) ([]models.ConsentArtifact, error)
	ListByConsentRequestIDWithTx(ctx context.Context, tx *database.Transaction, consentRequestID string) ([]models.ConsentArtifact, error)
	ListByConsentRequestIDs(ctx context.Context, consentRequestIDs []string) ([]models.ConsentArtifact, error)
	UpdateStatusWithTx(ctx context.Context, tx *database.Transaction, artifactID string, from, to models.ArtifactStatus, updatedTime int64) (bool, error)
	RevokeActiveWithTx(ctx context.Context, tx *database.Transaction, consentRequestID, reason string, revokedTime int64) (int64, error)
	ExpireActiveWithTx(ctx context.Context, tx *database.Transaction, consentRequestID string, updatedTime int64) (int64, error)
	CountActiveWithTx(ctx context.Context, tx *database.Transaction, consentRequestID string, now int64) (int, error)
	ListExpiredActive(ctx context.Context, now int64, limit int) ([]models.ConsentArtifact, error)
}

// ConsentAuditStore persists the consent audit trail
type ConsentAuditStore interface {
	CreateWithTx(ctx context.Context, tx *database.Transaction, entry *models.ConsentAuditLogEntry) error
	ListByConsentRequestID(ctx context.Context, consentRequestID string) ([]models.ConsentAuditLogEntry, error)
}

// FetchRequestStore persists health record fetch requests
type FetchRequestStore interface {
	Create(ctx context.Context, req *models.HealthRecordFetchRequest) error
	GetByID(ctx context.Context, fetchRequestID string) (*models.HealthRecordFetchRequest, error)
	GetByExternalRequestID(ctx context.Context, externalRequestID string) (*models.HealthRecordFetchRequest, error)
	GetByIDForUpdate(ctx context.Context, tx *database.Transaction, fetchRequestID string) (*models.HealthRecordFetchRequest, error)
	SetExternalRequestID(ctx context.Context, fetchRequestID, externalRequestID string, updatedTime int64) error
	SetErrorMessage(ctx context.Context, fetchRequestID, message string, updatedTime int64) error
	UpdateProgressWithTx(ctx context.Context, tx *database.Transaction, req *models.HealthRecordFetchRequest) error
	ListStalled(ctx context.Context, before int64, limit int) ([]models.HealthRecordFetchRequest, error)
}

// HealthRecordStore persists health records
type HealthRecordStore interface {
	Create(ctx context.Context, record *models.HealthRecord) error
	ExistsByExternalRecordID(ctx context.Context, patientID, externalRecordID string) (bool, error)
	GetByID(ctx context.Context, recordID string) (*models.HealthRecord, error)
	Search(ctx context.Context, filter models.HealthRecordFilter) ([]models.HealthRecordSummary, int, error)
	UpdateStatus(ctx context.Context, recordID string, from, to models.RecordStatus, updatedTime int64) (bool, error)
	MarkIndexed(ctx context.Context, recordIDs []string, indexedTime int64) error
}

// ProcessingLogStore persists pipeline stage attempts
type ProcessingLogStore interface {
	Create(ctx context.Context, entry *models.HealthRecordProcessingLogEntry) error
	ListByFetchRequestID(ctx context.Context, fetchRequestID string) ([]models.HealthRecordProcessingLogEntry, error)
}

// AccessLogStore persists health record reads and changes
type AccessLogStore interface {
	Create(ctx context.Context, entry *models.HealthRecordAccessLog) error
	ListByRecordID(ctx context.Context, recordID string) ([]models.HealthRecordAccessLog, error)
}

// CallbackInboxStore persists accepted network callbacks until they are processed
type CallbackInboxStore interface {
	Create(ctx context.Context, entry *models.CallbackInboxEntry) error
	GetByID(ctx context.Context, callbackID string) (*models.CallbackInboxEntry, error)
	Claim(ctx context.Context, callbackID string, now, staleBefore int64) (bool, error)
	MarkProcessed(ctx context.Context, callbackID string, note *string, now int64) error
	MarkRetry(ctx context.Context, callbackID, lastError string, now int64) error
	MarkFailed(ctx context.Context, callbackID, lastError string, now int64) error
	ListRecoverable(ctx context.Context, pendingBefore, staleBefore int64, limit int) ([]models.CallbackInboxEntry, error)
}

// Gateway is the outbound side of the health information exchange network.
// *gateway.Client implements it.
type Gateway interface {
	RequestConsent(ctx context.Context, req *models.ConsentRequest) (string, error)
	RevokeConsent(ctx context.Context, req *models.ConsentRequest, artifactIDs []string, reason string) error
	RequestHealthInformation(ctx context.Context, fetch *models.HealthRecordFetchRequest, artifactExternalID string, keyMaterial models.KeyMaterial) (string, error)
}

// Indexer makes stored records available to downstream queries
type Indexer interface {
	Index(ctx context.Context, records []*models.HealthRecord) error
}
