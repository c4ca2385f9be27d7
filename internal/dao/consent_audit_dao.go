package dao

import (
	"context"
	"fmt"

	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/models"
)

// ConsentAuditDAO handles database operations for the consent audit log
type ConsentAuditDAO struct {
	db *database.DB
}

// NewConsentAuditDAO creates a new ConsentAuditDAO instance
func NewConsentAuditDAO(db *database.DB) *ConsentAuditDAO {
	return &ConsentAuditDAO{db: db}
}

// CreateWithTx appends an audit entry using a transaction
func (dao *ConsentAuditDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, entry *models.ConsentAuditLogEntry) error {
	query := `
		INSERT INTO CONSENT_AUDIT_LOG (
			AUDIT_ID, CONSENT_REQUEST_ID, ARTIFACT_ID, ACTION, ACTOR_ID, ACTOR_TYPE,
			PREVIOUS_STATUS, NEW_STATUS, DETAILS, IP_ADDRESS, USER_AGENT, CREATED_TIME
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(
		ctx,
		query,
		entry.AuditID,
		entry.ConsentRequestID,
		entry.ArtifactID,
		entry.Action,
		entry.ActorID,
		entry.ActorType,
		entry.PreviousStatus,
		entry.NewStatus,
		entry.Details,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create consent audit entry: %w", err)
	}

	return nil
}

// ListByConsentRequestID retrieves the audit trail of a consent request, oldest first
func (dao *ConsentAuditDAO) ListByConsentRequestID(ctx context.Context, consentRequestID string) ([]models.ConsentAuditLogEntry, error) {
	query := `
		SELECT AUDIT_ID, CONSENT_REQUEST_ID, ARTIFACT_ID, ACTION, ACTOR_ID, ACTOR_TYPE,
		       PREVIOUS_STATUS, NEW_STATUS, DETAILS, IP_ADDRESS, USER_AGENT, CREATED_TIME
		FROM CONSENT_AUDIT_LOG
		WHERE CONSENT_REQUEST_ID = ?
		ORDER BY CREATED_TIME ASC, AUDIT_SEQ ASC
	`

	entries := []models.ConsentAuditLogEntry{}
	if err := dao.db.SelectContext(ctx, &entries, query, consentRequestID); err != nil {
		return nil, fmt.Errorf("failed to get consent audit trail: %w", err)
	}

	return entries, nil
}
