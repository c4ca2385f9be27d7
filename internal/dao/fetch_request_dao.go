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

const fetchRequestColumns = `
	FETCH_REQUEST_ID, ARTIFACT_ID, CONSENT_REQUEST_ID, PATIENT_ID, DOCTOR_ID,
	EXTERNAL_REQUEST_ID, HI_TYPES, DATE_RANGE_FROM, DATE_RANGE_TO, STATUS,
	TOTAL_RECORDS, COMPLETED_RECORDS, FAILED_RECORDS, ERROR_MESSAGE, CALLBACK_URL,
	KEY_NONCE, REQUESTED_BY, CLIENT_IP, USER_AGENT, CREATED_TIME, UPDATED_TIME, COMPLETED_TIME`

// FetchRequestDAO handles database operations for health record fetch requests
type FetchRequestDAO struct {
	db *database.DB
}

// NewFetchRequestDAO creates a new FetchRequestDAO instance
func NewFetchRequestDAO(db *database.DB) *FetchRequestDAO {
	return &FetchRequestDAO{db: db}
}

// Create inserts a new fetch request
func (dao *FetchRequestDAO) Create(ctx context.Context, req *models.HealthRecordFetchRequest) error {
	query := `
		INSERT INTO HEALTH_RECORD_FETCH_REQUEST (` + fetchRequestColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := dao.db.ExecContext(
		ctx,
		query,
		req.FetchRequestID,
		req.ArtifactID,
		req.ConsentRequestID,
		req.PatientID,
		req.DoctorID,
		req.ExternalRequestID,
		req.HITypes,
		req.DateRangeFrom,
		req.DateRangeTo,
		req.Status,
		req.TotalRecords,
		req.CompletedRecords,
		req.FailedRecords,
		req.ErrorMessage,
		req.CallbackURL,
		req.KeyNonce,
		req.RequestedBy,
		req.ClientIP,
		req.UserAgent,
		req.CreatedTime,
		req.UpdatedTime,
		req.CompletedTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create fetch request: %w", err)
	}

	return nil
}

// GetByID retrieves a fetch request by ID
func (dao *FetchRequestDAO) GetByID(ctx context.Context, fetchRequestID string) (*models.HealthRecordFetchRequest, error) {
	query := `SELECT ` + fetchRequestColumns + ` FROM HEALTH_RECORD_FETCH_REQUEST WHERE FETCH_REQUEST_ID = ?`
	return dao.get(ctx, dao.db, query, fetchRequestID)
}

// GetByExternalRequestID retrieves a fetch request by the network's transaction ID
func (dao *FetchRequestDAO) GetByExternalRequestID(ctx context.Context, externalRequestID string) (*models.HealthRecordFetchRequest, error) {
	query := `SELECT ` + fetchRequestColumns + ` FROM HEALTH_RECORD_FETCH_REQUEST WHERE EXTERNAL_REQUEST_ID = ?`
	return dao.get(ctx, dao.db, query, externalRequestID)
}

// GetByIDForUpdate retrieves and row-locks a fetch request inside a transaction
func (dao *FetchRequestDAO) GetByIDForUpdate(ctx context.Context, tx *database.Transaction, fetchRequestID string) (*models.HealthRecordFetchRequest, error) {
	query := `SELECT ` + fetchRequestColumns + ` FROM HEALTH_RECORD_FETCH_REQUEST WHERE FETCH_REQUEST_ID = ? FOR UPDATE`
	return dao.get(ctx, tx, query, fetchRequestID)
}

func (dao *FetchRequestDAO) get(ctx context.Context, q sqlx.QueryerContext, query string, arg string) (*models.HealthRecordFetchRequest, error) {
	var req models.HealthRecordFetchRequest
	if err := sqlx.GetContext(ctx, q, &req, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("fetch request %s: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get fetch request: %w", err)
	}
	return &req, nil
}

// SetExternalRequestID records the network's transaction ID for a fetch request
func (dao *FetchRequestDAO) SetExternalRequestID(ctx context.Context, fetchRequestID, externalRequestID string, updatedTime int64) error {
	query := `
		UPDATE HEALTH_RECORD_FETCH_REQUEST
		SET EXTERNAL_REQUEST_ID = ?, UPDATED_TIME = ?
		WHERE FETCH_REQUEST_ID = ? AND EXTERNAL_REQUEST_ID IS NULL
	`

	result, err := dao.db.ExecContext(ctx, query, externalRequestID, updatedTime, fetchRequestID)
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
		return fmt.Errorf("fetch request %s without external request ID: %w", fetchRequestID, ErrNotFound)
	}

	return nil
}

// SetErrorMessage records the last outbound failure on a fetch request without changing its status
func (dao *FetchRequestDAO) SetErrorMessage(ctx context.Context, fetchRequestID, message string, updatedTime int64) error {
	query := `
		UPDATE HEALTH_RECORD_FETCH_REQUEST
		SET ERROR_MESSAGE = ?, UPDATED_TIME = ?
		WHERE FETCH_REQUEST_ID = ?
	`

	if _, err := dao.db.ExecContext(ctx, query, message, updatedTime, fetchRequestID); err != nil {
		return fmt.Errorf("failed to set fetch request error message: %w", err)
	}

	return nil
}

// UpdateProgressWithTx writes counters, status and error of a row-locked fetch request.
// The write is guarded on the PROCESSING status so a terminal row is never changed.
func (dao *FetchRequestDAO) UpdateProgressWithTx(ctx context.Context, tx *database.Transaction, req *models.HealthRecordFetchRequest) error {
	query := `
		UPDATE HEALTH_RECORD_FETCH_REQUEST
		SET STATUS = ?, TOTAL_RECORDS = ?, COMPLETED_RECORDS = ?, FAILED_RECORDS = ?,
		    ERROR_MESSAGE = ?, UPDATED_TIME = ?, COMPLETED_TIME = ?
		WHERE FETCH_REQUEST_ID = ? AND STATUS = ?
	`

	result, err := tx.ExecContext(
		ctx,
		query,
		req.Status,
		req.TotalRecords,
		req.CompletedRecords,
		req.FailedRecords,
		req.ErrorMessage,
		req.UpdatedTime,
		req.CompletedTime,
		req.FetchRequestID,
		models.FetchProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to update fetch request progress: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("processing fetch request %s: %w", req.FetchRequestID, ErrNotFound)
	}

	return nil
}

// ListStalled retrieves PROCESSING fetch requests not updated since before
func (dao *FetchRequestDAO) ListStalled(ctx context.Context, before int64, limit int) ([]models.HealthRecordFetchRequest, error) {
	query := `
		SELECT ` + fetchRequestColumns + `
		FROM HEALTH_RECORD_FETCH_REQUEST
		WHERE STATUS = ? AND UPDATED_TIME < ?
		ORDER BY UPDATED_TIME ASC
		LIMIT ?
	`

	requests := []models.HealthRecordFetchRequest{}
	if err := dao.db.SelectContext(ctx, &requests, query, models.FetchProcessing, before, limit); err != nil {
		return nil, fmt.Errorf("failed to list stalled fetch requests: %w", err)
	}

	return requests, nil
}
