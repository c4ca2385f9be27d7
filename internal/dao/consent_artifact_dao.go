package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/models"
)

const consentArtifactColumns = `
	ARTIFACT_ID, CONSENT_REQUEST_ID, EXTERNAL_ARTIFACT_ID, HIP_ID, PERMISSION, STATUS,
	GRANTED_TIME, EXPIRY_TIME, REVOKED_TIME, REVOCATION_REASON, CREATED_TIME, UPDATED_TIME`

// ConsentArtifactDAO handles database operations for consent artifacts
type ConsentArtifactDAO struct {
	db *database.DB
}

// NewConsentArtifactDAO creates a new ConsentArtifactDAO instance
func NewConsentArtifactDAO(db *database.DB) *ConsentArtifactDAO {
	return &ConsentArtifactDAO{db: db}
}

// CreateWithTx inserts a new consent artifact using a transaction
func (dao *ConsentArtifactDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, artifact *models.ConsentArtifact) error {
	query := `
		INSERT INTO CONSENT_ARTIFACT (` + consentArtifactColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(
		ctx,
		query,
		artifact.ArtifactID,
		artifact.ConsentRequestID,
		artifact.ExternalArtifactID,
		artifact.HIPID,
		artifact.Permission,
		artifact.Status,
		artifact.GrantedTime,
		artifact.ExpiryTime,
		artifact.RevokedTime,
		artifact.RevocationReason,
		artifact.CreatedTime,
		artifact.UpdatedTime,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("consent artifact %s: %w", artifact.ExternalArtifactID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create consent artifact: %w", err)
	}

	return nil
}

// GetByID retrieves a consent artifact by ID
func (dao *ConsentArtifactDAO) GetByID(ctx context.Context, artifactID string) (*models.ConsentArtifact, error) {
	query := `SELECT ` + consentArtifactColumns + ` FROM CONSENT_ARTIFACT WHERE ARTIFACT_ID = ?`

	var artifact models.ConsentArtifact
	if err := dao.db.GetContext(ctx, &artifact, query, artifactID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("consent artifact %s: %w", artifactID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get consent artifact: %w", err)
	}

	return &artifact, nil
}

// ListByConsentRequestID retrieves all artifacts owned by a consent request
func (dao *ConsentArtifactDAO) ListByConsentRequestID(ctx context.Context, consentRequestID string) ([]models.ConsentArtifact, error) {
	return dao.listByConsentRequestID(ctx, dao.db, consentRequestID)
}

// ListByConsentRequestIDWithTx retrieves all artifacts owned by a consent request using a transaction
func (dao *ConsentArtifactDAO) ListByConsentRequestIDWithTx(ctx context.Context, tx *database.Transaction, consentRequestID string) ([]models.ConsentArtifact, error) {
	return dao.listByConsentRequestID(ctx, tx, consentRequestID)
}

func (dao *ConsentArtifactDAO) listByConsentRequestID(ctx context.Context, q sqlx.QueryerContext, consentRequestID string) ([]models.ConsentArtifact, error) {
	query := `
		SELECT ` + consentArtifactColumns + `
		FROM CONSENT_ARTIFACT
		WHERE CONSENT_REQUEST_ID = ?
		ORDER BY GRANTED_TIME ASC
	`

	artifacts := []models.ConsentArtifact{}
	if err := sqlx.SelectContext(ctx, q, &artifacts, query, consentRequestID); err != nil {
		return nil, fmt.Errorf("failed to list consent artifacts: %w", err)
	}

	return artifacts, nil
}

// ListByConsentRequestIDs retrieves artifacts for several consent requests
func (dao *ConsentArtifactDAO) ListByConsentRequestIDs(ctx context.Context, consentRequestIDs []string) ([]models.ConsentArtifact, error) {
	if len(consentRequestIDs) == 0 {
		return []models.ConsentArtifact{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+consentArtifactColumns+`
		FROM CONSENT_ARTIFACT
		WHERE CONSENT_REQUEST_ID IN (?)
		ORDER BY GRANTED_TIME ASC
	`, consentRequestIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build artifact query: %w", err)
	}

	artifacts := []models.ConsentArtifact{}
	if err := dao.db.SelectContext(ctx, &artifacts, dao.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list consent artifacts: %w", err)
	}

	return artifacts, nil
}

// UpdateStatusWithTx moves one artifact from an expected status to a new one.
// It reports false when the row was not in the expected status.
func (dao *ConsentArtifactDAO) UpdateStatusWithTx(ctx context.Context, tx *database.Transaction, artifactID string, from, to models.ArtifactStatus, updatedTime int64) (bool, error) {
	query := `
		UPDATE CONSENT_ARTIFACT
		SET STATUS = ?, UPDATED_TIME = ?
		WHERE ARTIFACT_ID = ? AND STATUS = ?
	`

	result, err := tx.ExecContext(ctx, query, to, updatedTime, artifactID, from)
	if err != nil {
		return false, fmt.Errorf("failed to update consent artifact status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// RevokeActiveWithTx revokes every ACTIVE artifact of a consent request and returns the count
func (dao *ConsentArtifactDAO) RevokeActiveWithTx(ctx context.Context, tx *database.Transaction, consentRequestID, reason string, revokedTime int64) (int64, error) {
	query := `
		UPDATE CONSENT_ARTIFACT
		SET STATUS = ?, REVOKED_TIME = ?, REVOCATION_REASON = ?, UPDATED_TIME = ?
		WHERE CONSENT_REQUEST_ID = ? AND STATUS = ?
	`

	result, err := tx.ExecContext(ctx, query, models.ArtifactRevoked, revokedTime, reason, revokedTime, consentRequestID, models.ArtifactActive)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke consent artifacts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// ExpireActiveWithTx expires every ACTIVE artifact of a consent request and returns the count
func (dao *ConsentArtifactDAO) ExpireActiveWithTx(ctx context.Context, tx *database.Transaction, consentRequestID string, updatedTime int64) (int64, error) {
	query := `
		UPDATE CONSENT_ARTIFACT
		SET STATUS = ?, UPDATED_TIME = ?
		WHERE CONSENT_REQUEST_ID = ? AND STATUS = ?
	`

	result, err := tx.ExecContext(ctx, query, models.ArtifactExpired, updatedTime, consentRequestID, models.ArtifactActive)
	if err != nil {
		return 0, fmt.Errorf("failed to expire consent artifacts: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// CountActiveWithTx counts a consent request's ACTIVE artifacts that have not yet expired
func (dao *ConsentArtifactDAO) CountActiveWithTx(ctx context.Context, tx *database.Transaction, consentRequestID string, now int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM CONSENT_ARTIFACT
		WHERE CONSENT_REQUEST_ID = ? AND STATUS = ? AND EXPIRY_TIME > ?
	`

	var count int
	if err := tx.GetContext(ctx, &count, query, consentRequestID, models.ArtifactActive, now); err != nil {
		return 0, fmt.Errorf("failed to count active consent artifacts: %w", err)
	}

	return count, nil
}

// ListExpiredActive retrieves ACTIVE artifacts whose expiry has passed
func (dao *ConsentArtifactDAO) ListExpiredActive(ctx context.Context, now int64, limit int) ([]models.ConsentArtifact, error) {
	query := `
		SELECT ` + consentArtifactColumns + `
		FROM CONSENT_ARTIFACT
		WHERE STATUS = ? AND EXPIRY_TIME <= ?
		ORDER BY EXPIRY_TIME ASC
		LIMIT ?
	`

	artifacts := []models.ConsentArtifact{}
	if err := dao.db.SelectContext(ctx, &artifacts, query, models.ArtifactActive, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired consent artifacts: %w", err)
	}

	return artifacts, nil
}
