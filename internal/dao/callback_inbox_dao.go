package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/models"
)

const callbackInboxColumns = `
	CALLBACK_ID, KIND, CALLBACK_REQUEST_ID, EXTERNAL_REQUEST_ID, PAYLOAD, STATUS,
	ATTEMPTS, LAST_ERROR, RECEIVED_TIME, UPDATED_TIME, PROCESSED_TIME`

// CallbackInboxDAO handles database operations for the durable callback inbox
type CallbackInboxDAO struct {
	db *database.DB
}

// NewCallbackInboxDAO creates a new CallbackInboxDAO instance
func NewCallbackInboxDAO(db *database.DB) *CallbackInboxDAO {
	return &CallbackInboxDAO{db: db}
}

// Create inserts a received callback. A repeated callback request ID returns ErrDuplicate.
func (dao *CallbackInboxDAO) Create(ctx context.Context, entry *models.CallbackInboxEntry) error {
	query := `
		INSERT INTO CALLBACK_INBOX (` + callbackInboxColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := dao.db.ExecContext(
		ctx,
		query,
		entry.CallbackID,
		entry.Kind,
		entry.CallbackRequestID,
		entry.ExternalRequestID,
		entry.Payload,
		entry.Status,
		entry.Attempts,
		entry.LastError,
		entry.ReceivedTime,
		entry.UpdatedTime,
		entry.ProcessedTime,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("callback %s: %w", derefString(entry.CallbackRequestID), ErrDuplicate)
		}
		return fmt.Errorf("failed to create callback inbox entry: %w", err)
	}

	return nil
}

// GetByID retrieves an inbox entry by ID
func (dao *CallbackInboxDAO) GetByID(ctx context.Context, callbackID string) (*models.CallbackInboxEntry, error) {
	query := `SELECT ` + callbackInboxColumns + ` FROM CALLBACK_INBOX WHERE CALLBACK_ID = ?`

	var entry models.CallbackInboxEntry
	if err := dao.db.GetContext(ctx, &entry, query, callbackID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("callback %s: %w", callbackID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get callback inbox entry: %w", err)
	}

	return &entry, nil
}

// Claim marks an entry PROCESSING for one worker. PENDING entries and PROCESSING
// entries not touched since staleBefore can be claimed; it reports false otherwise.
func (dao *CallbackInboxDAO) Claim(ctx context.Context, callbackID string, now, staleBefore int64) (bool, error) {
	query := `
		UPDATE CALLBACK_INBOX
		SET STATUS = ?, ATTEMPTS = ATTEMPTS + 1, UPDATED_TIME = ?
		WHERE CALLBACK_ID = ?
		  AND (STATUS = ? OR (STATUS = ? AND UPDATED_TIME < ?))
	`

	result, err := dao.db.ExecContext(ctx, query,
		models.CallbackProcessing, now, callbackID,
		models.CallbackPending, models.CallbackProcessing, staleBefore)
	if err != nil {
		return false, fmt.Errorf("failed to claim callback inbox entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// MarkProcessed finishes an entry
func (dao *CallbackInboxDAO) MarkProcessed(ctx context.Context, callbackID string, note *string, now int64) error {
	query := `
		UPDATE CALLBACK_INBOX
		SET STATUS = ?, LAST_ERROR = ?, UPDATED_TIME = ?, PROCESSED_TIME = ?
		WHERE CALLBACK_ID = ?
	`

	if _, err := dao.db.ExecContext(ctx, query, models.CallbackProcessed, note, now, now, callbackID); err != nil {
		return fmt.Errorf("failed to mark callback processed: %w", err)
	}

	return nil
}

// MarkRetry returns an entry to PENDING with the error of the last attempt
func (dao *CallbackInboxDAO) MarkRetry(ctx context.Context, callbackID, lastError string, now int64) error {
	query := `
		UPDATE CALLBACK_INBOX
		SET STATUS = ?, LAST_ERROR = ?, UPDATED_TIME = ?
		WHERE CALLBACK_ID = ?
	`

	if _, err := dao.db.ExecContext(ctx, query, models.CallbackPending, lastError, now, callbackID); err != nil {
		return fmt.Errorf("failed to mark callback for retry: %w", err)
	}

	return nil
}

// MarkFailed gives up on an entry
func (dao *CallbackInboxDAO) MarkFailed(ctx context.Context, callbackID, lastError string, now int64) error {
	query := `
		UPDATE CALLBACK_INBOX
		SET STATUS = ?, LAST_ERROR = ?, UPDATED_TIME = ?, PROCESSED_TIME = ?
		WHERE CALLBACK_ID = ?
	`

	if _, err := dao.db.ExecContext(ctx, query, models.CallbackFailed, lastError, now, now, callbackID); err != nil {
		return fmt.Errorf("failed to mark callback failed: %w", err)
	}

	return nil
}

// ListRecoverable retrieves PENDING entries last touched before pendingBefore and
// PROCESSING entries last touched before staleBefore, oldest first
func (dao *CallbackInboxDAO) ListRecoverable(ctx context.Context, pendingBefore, staleBefore int64, limit int) ([]models.CallbackInboxEntry, error) {
	query := `
		SELECT ` + callbackInboxColumns + `
		FROM CALLBACK_INBOX
		WHERE (STATUS = ? AND UPDATED_TIME < ?) OR (STATUS = ? AND UPDATED_TIME < ?)
		ORDER BY RECEIVED_TIME ASC
		LIMIT ?
	`

	entries := []models.CallbackInboxEntry{}
	if err := dao.db.SelectContext(ctx, &entries, query,
		models.CallbackPending, pendingBefore, models.CallbackProcessing, staleBefore, limit); err != nil {
		return nil, fmt.Errorf("failed to list recoverable callbacks: %w", err)
	}

	return entries, nil
}
