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

const consentRequestColumns = `
	CONSENT_REQUEST_ID, PATIENT_ID, DOCTOR_ID, EXTERNAL_REQUEST_ID, PURPOSE_CODE,
	PURPOSE_TEXT, HI_TYPES, DATE_RANGE_FROM, DATE_RANGE_TO, EXPIRY_TIME, HIP_IDS,
	STATUS, CALLBACK_URL, CREATED_TIME, UPDATED_TIME`

// ConsentRequestDAO handles database operations for consent requests
type ConsentRequestDAO struct {
	db *database.DB
}

// NewConsentRequestDAO creates a new ConsentRequestDAO instance
func NewConsentRequestDAO(db *database.DB) *ConsentRequestDAO {
	return &ConsentRequestDAO{db: db}
}

// CreateWithTx inserts a new consent request using a transaction
func (dao *ConsentRequestDAO) CreateWithTx(ctx context.Context, tx *database.Transaction, req *models.ConsentRequest) error {
	query := `
		INSERT INTO CONSENT_REQUEST (` + consentRequestColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(
		ctx,
		query,
		req.ConsentRequestID,
		req.PatientID,
		req.DoctorID,
		req.ExternalRequestID,
		req.PurposeCode,
		req.PurposeText,
		req.HITypes,
		req.DateRangeFrom,
		req.DateRangeTo,
		req.ExpiryTime,
		req.HIPIDs,
		req.Status,
		req.CallbackURL,
		req.CreatedTime,
		req.UpdatedTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create consent request: %w", err)
	}

	return nil
}

// GetByID retrieves a consent request by ID
func (dao *ConsentRequestDAO) GetByID(ctx context.Context, consentRequestID string) (*models.ConsentRequest, error) {
	query := `SELECT ` + consentRequestColumns + ` FROM CONSENT_REQUEST WHERE CONSENT_REQUEST_ID = ?`
	return dao.get(ctx, dao.db, query, consentRequestID)
}

// GetByIDForUpdate retrieves and row-locks a consent request inside a transaction
func (dao *ConsentRequestDAO) GetByIDForUpdate(ctx context.Context, tx *database.Transaction, consentRequestID string) (*models.ConsentRequest, error) {
	query := `SELECT ` + consentRequestColumns + ` FROM CONSENT_REQUEST WHERE CONSENT_REQUEST_ID = ? FOR UPDATE`
	return dao.get(ctx, tx, query, consentRequestID)
}

// GetByExternalRequestIDForUpdate retrieves and row-locks a consent request by the network's request ID
func (dao *ConsentRequestDAO) GetByExternalRequestIDForUpdate(ctx context.Context, tx *database.Transaction, externalRequestID string) (*models.ConsentRequest, error) {
	query := `SELECT ` + consentRequestColumns + ` FROM CONSENT_REQUEST WHERE EXTERNAL_REQUEST_ID = ? FOR UPDATE`
	return dao.get(ctx, tx, query, externalRequestID)
}

func (dao *ConsentRequestDAO) get(ctx context.Context, q sqlx.QueryerContext, query string, arg string) (*models.ConsentRequest, error) {
	var req models.ConsentRequest
	if err := sqlx.GetContext(ctx, q, &req, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("consent request %s: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get consent request: %w", err)
	}
	return &req, nil
}

// SetExternalRequestID records the network's request ID once the gateway acknowledges submission
func (dao *ConsentRequestDAO) SetExternalRequestID(ctx context.Context, consentRequestID, externalRequestID string, updatedTime int64) error {
	query := `
		UPDATE CONSENT_REQUEST
		SET EXTERNAL_REQUEST_ID = ?, UPDATED_TIME = ?
		WHERE CONSENT_REQUEST_ID = ? AND EXTERNAL_REQUEST_ID IS NULL
	`

	result, err := dao.db.ExecContext(ctx, query, externalRequestID, updatedTime, consentRequestID)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("external request ID %s: %w", externalRequestID, ErrDuplicate)
		}
		return fmt.Errorf("failed to set external request ID: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("consent request %s without external request ID: %w", consentRequestID, ErrNotFound)
	}

	return nil
}

// UpdateStatusWithTx moves a consent request from an expected status to a new one.
// It reports false when the row was not in the expected status.
func (dao *ConsentRequestDAO) UpdateStatusWithTx(ctx context.Context, tx *database.Transaction, consentRequestID string, from, to models.ConsentRequestStatus, updatedTime int64) (bool, error) {
	query := `
		UPDATE CONSENT_REQUEST
		SET STATUS = ?, UPDATED_TIME = ?
		WHERE CONSENT_REQUEST_ID = ? AND STATUS = ?
	`

	result, err := tx.ExecContext(ctx, query, to, updatedTime, consentRequestID, from)
	if err != nil {
		return false, fmt.Errorf("failed to update consent request status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListByPatient retrieves a patient's consent requests, optionally filtered by status
func (dao *ConsentRequestDAO) ListByPatient(ctx context.Context, patientID string, statuses []models.ConsentRequestStatus) ([]models.ConsentRequest, error) {
	query := `SELECT ` + consentRequestColumns + ` FROM CONSENT_REQUEST WHERE PATIENT_ID = ?`
	args := []interface{}{patientID}

	if len(statuses) > 0 {
		inQuery, inArgs, err := sqlx.In(` AND STATUS IN (?)`, statuses)
		if err != nil {
			return nil, fmt.Errorf("failed to build status filter: %w", err)
		}
		query += inQuery
		args = append(args, inArgs...)
	}
	query += ` ORDER BY CREATED_TIME DESC`

	requests := []models.ConsentRequest{}
	if err := dao.db.SelectContext(ctx, &requests, dao.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list consent requests by patient: %w", err)
	}

	return requests, nil
}

// ListExpiredRequested retrieves REQUESTED consent requests whose expiry has passed
func (dao *ConsentRequestDAO) ListExpiredRequested(ctx context.Context, now int64, limit int) ([]models.ConsentRequest, error) {
	query := `
		SELECT ` + consentRequestColumns + `
		FROM CONSENT_REQUEST
		WHERE STATUS = ? AND EXPIRY_TIME <= ?
		ORDER BY EXPIRY_TIME ASC
		LIMIT ?
	`

	requests := []models.ConsentRequest{}
	if err := dao.db.SelectContext(ctx, &requests, query, models.ConsentRequested, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired consent requests: %w", err)
	}

	return requests, nil
}
