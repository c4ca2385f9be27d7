package dao

import (
	"context"
	"fmt"

	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/models"
)

// ProcessingLogDAO handles database operations for pipeline processing logs
type ProcessingLogDAO struct {
	db *database.DB
}

// NewProcessingLogDAO creates a new ProcessingLogDAO instance
func NewProcessingLogDAO(db *database.DB) *ProcessingLogDAO {
	return &ProcessingLogDAO{db: db}
}

// Create appends a processing log entry
func (dao *ProcessingLogDAO) Create(ctx context.Context, entry *models.HealthRecordProcessingLogEntry) error {
	query := `
		INSERT INTO HEALTH_RECORD_PROCESSING_LOG (
			LOG_ID, FETCH_REQUEST_ID, RECORD_ID, EXTERNAL_RECORD_ID, STAGE, OUTCOME,
			ERROR_MESSAGE, DURATION_MS, DETAILS, CREATED_TIME
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := dao.db.ExecContext(
		ctx,
		query,
		entry.LogID,
		entry.FetchRequestID,
		entry.RecordID,
		entry.ExternalRecordID,
		entry.Stage,
		entry.Outcome,
		entry.ErrorMessage,
		entry.DurationMillis,
		entry.Details,
		entry.CreatedTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create processing log entry: %w", err)
	}

	return nil
}

// ListByFetchRequestID retrieves the processing log of a fetch request, oldest first
func (dao *ProcessingLogDAO) ListByFetchRequestID(ctx context.Context, fetchRequestID string) ([]models.HealthRecordProcessingLogEntry, error) {
	query := `
		SELECT LOG_ID, FETCH_REQUEST_ID, RECORD_ID, EXTERNAL_RECORD_ID, STAGE, OUTCOME,
		       ERROR_MESSAGE, DURATION_MS, DETAILS, CREATED_TIME
		FROM HEALTH_RECORD_PROCESSING_LOG
		WHERE FETCH_REQUEST_ID = ?
		ORDER BY CREATED_TIME ASC, LOG_SEQ ASC
	`

	entries := []models.HealthRecordProcessingLogEntry{}
	if err := dao.db.SelectContext(ctx, &entries, query, fetchRequestID); err != nil {
		return nil, fmt.Errorf("failed to list processing log entries: %w", err)
	}

	return entries, nil
}
