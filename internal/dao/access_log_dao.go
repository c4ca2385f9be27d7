package dao

import (
	"context"
	"fmt"

	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/models"
)

// AccessLogDAO handles database operations for health record access logs
type AccessLogDAO struct {
	db *database.DB
}

// NewAccessLogDAO creates a new AccessLogDAO instance
func NewAccessLogDAO(db *database.DB) *AccessLogDAO {
	return &AccessLogDAO{db: db}
}

// Create appends an access log entry
func (dao *AccessLogDAO) Create(ctx context.Context, entry *models.HealthRecordAccessLog) error {
	query := `
		INSERT INTO HEALTH_RECORD_ACCESS_LOG (
			ACCESS_ID, RECORD_ID, PATIENT_ID, ACTOR_ID, ACTOR_TYPE, ACTION,
			IP_ADDRESS, USER_AGENT, CREATED_TIME
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := dao.db.ExecContext(
		ctx,
		query,
		entry.AccessID,
		entry.RecordID,
		entry.PatientID,
		entry.ActorID,
		entry.ActorType,
		entry.Action,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedTime,
	)
	if err != nil {
		return fmt.Errorf("failed to create access log entry: %w", err)
	}

	return nil
}

// ListByRecordID retrieves the access history of a record, newest first
func (dao *AccessLogDAO) ListByRecordID(ctx context.Context, recordID string) ([]models.HealthRecordAccessLog, error) {
	query := `
		SELECT ACCESS_ID, RECORD_ID, PATIENT_ID, ACTOR_ID, ACTOR_TYPE, ACTION,
		       IP_ADDRESS, USER_AGENT, CREATED_TIME
		FROM HEALTH_RECORD_ACCESS_LOG
		WHERE RECORD_ID = ?
		ORDER BY CREATED_TIME DESC
	`

	entries := []models.HealthRecordAccessLog{}
	if err := dao.db.SelectContext(ctx, &entries, query, recordID); err != nil {
		return nil, fmt.Errorf("failed to list access log entries: %w", err)
	}

	return entries, nil
}
