package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/models"
)

const healthRecordColumns = `
	RECORD_ID, PATIENT_ID, FETCH_REQUEST_ID, EXTERNAL_RECORD_ID, RESOURCE_ID, RESOURCE_TYPE,
	RECORD_TYPE, RECORD_DATE, PROVIDER_ID, PROVIDER_NAME, PROVIDER_TYPE, FHIR_RESOURCE,
	SOURCE, STATUS, CHECKSUM, FETCHED_TIME, INDEXED_TIME, CREATED_TIME, UPDATED_TIME`

const healthRecordSummaryColumns = `
	RECORD_ID, PATIENT_ID, RESOURCE_TYPE, RECORD_TYPE, RECORD_DATE, PROVIDER_NAME,
	SOURCE, STATUS, CREATED_TIME`

// HealthRecordDAO handles database operations for health records
type HealthRecordDAO struct {
	db *database.DB
}

// NewHealthRecordDAO creates a new HealthRecordDAO instance
func NewHealthRecordDAO(db *database.DB) *HealthRecordDAO {
	return &HealthRecordDAO{db: db}
}

// Create inserts a new health record. A second resource with the same
// external record ID and resource ID returns ErrDuplicate.
func (dao *HealthRecordDAO) Create(ctx context.Context, record *models.HealthRecord) error {
	query := `
		INSERT INTO HEALTH_RECORD (` + healthRecordColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := dao.db.ExecContext(
		ctx,
		query,
		record.RecordID,
		record.PatientID,
		record.FetchRequestID,
		record.ExternalRecordID,
		record.ResourceID,
		record.ResourceType,
		record.RecordType,
		record.RecordDate,
		record.ProviderID,
		record.ProviderName,
		record.ProviderType,
		record.FHIRResource,
		record.Source,
		record.Status,
		record.Checksum,
		record.FetchedTime,
		record.IndexedTime,
		record.CreatedTime,
		record.UpdatedTime,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("health record %s/%s: %w", derefString(record.ExternalRecordID), record.ResourceID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create health record: %w", err)
	}

	return nil
}

// ExistsByExternalRecordID reports whether any record of the patient came from the given external record
func (dao *HealthRecordDAO) ExistsByExternalRecordID(ctx context.Context, patientID, externalRecordID string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM HEALTH_RECORD
		WHERE PATIENT_ID = ? AND EXTERNAL_RECORD_ID = ?
	`

	var count int
	if err := dao.db.GetContext(ctx, &count, query, patientID, externalRecordID); err != nil {
		return false, fmt.Errorf("failed to check health record existence: %w", err)
	}

	return count > 0, nil
}

// GetByID retrieves a health record by ID
func (dao *HealthRecordDAO) GetByID(ctx context.Context, recordID string) (*models.HealthRecord, error) {
	query := `SELECT ` + healthRecordColumns + ` FROM HEALTH_RECORD WHERE RECORD_ID = ?`

	var record models.HealthRecord
	if err := dao.db.GetContext(ctx, &record, query, recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("health record %s: %w", recordID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get health record: %w", err)
	}

	return &record, nil
}

// Search retrieves ACTIVE record summaries of a patient with the total match count
func (dao *HealthRecordDAO) Search(ctx context.Context, filter models.HealthRecordFilter) ([]models.HealthRecordSummary, int, error) {
	conditions := []string{"PATIENT_ID = ?", "STATUS = ?"}
	args := []interface{}{filter.PatientID, models.RecordActive}

	if filter.RecordType != "" {
		conditions = append(conditions, "RECORD_TYPE = ?")
		args = append(args, filter.RecordType)
	}
	if filter.From > 0 {
		conditions = append(conditions, "RECORD_DATE >= ?")
		args = append(args, filter.From)
	}
	if filter.To > 0 {
		conditions = append(conditions, "RECORD_DATE <= ?")
		args = append(args, filter.To)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM HEALTH_RECORD` + where
	if err := dao.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count health records: %w", err)
	}

	query := `SELECT ` + healthRecordSummaryColumns + ` FROM HEALTH_RECORD` + where +
		` ORDER BY RECORD_DATE DESC, RECORD_ID ASC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	summaries := []models.HealthRecordSummary{}
	if err := dao.db.SelectContext(ctx, &summaries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to search health records: %w", err)
	}

	return summaries, total, nil
}

// UpdateStatus moves a record from an expected status to a new one.
// It reports false when the row was not in the expected status.
func (dao *HealthRecordDAO) UpdateStatus(ctx context.Context, recordID string, from, to models.RecordStatus, updatedTime int64) (bool, error) {
	query := `
		UPDATE HEALTH_RECORD
		SET STATUS = ?, UPDATED_TIME = ?
		WHERE RECORD_ID = ? AND STATUS = ?
	`

	result, err := dao.db.ExecContext(ctx, query, to, updatedTime, recordID, from)
	if err != nil {
		return false, fmt.Errorf("failed to update health record status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// MarkIndexed stamps the index time on the given records
func (dao *HealthRecordDAO) MarkIndexed(ctx context.Context, recordIDs []string, indexedTime int64) error {
	if len(recordIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`
		UPDATE HEALTH_RECORD
		SET INDEXED_TIME = ?, UPDATED_TIME = ?
		WHERE RECORD_ID IN (?)
	`, indexedTime, indexedTime, recordIDs)
	if err != nil {
		return fmt.Errorf("failed to build index query: %w", err)
	}

	if _, err := dao.db.ExecContext(ctx, dao.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to mark health records indexed: %w", err)
	}

	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
