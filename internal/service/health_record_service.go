package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

// HealthRecordSearchParams are the query parameters of a health record search
type HealthRecordSearchParams struct {
	PatientID string
	Type      string
	From      string
	To        string
	Limit     int
	Offset    int
}

// HealthRecordService serves stored health records and records every access to them
type HealthRecordService struct {
	recordStore HealthRecordStore
	accessStore AccessLogStore
	clock       utils.Clock
	logger      *logrus.Logger
}

// NewHealthRecordService creates a new health record service instance
func NewHealthRecordService(recordStore HealthRecordStore, accessStore AccessLogStore, clock utils.Clock, logger *logrus.Logger) *HealthRecordService {
	return &HealthRecordService{
		recordStore: recordStore,
		accessStore: accessStore,
		clock:       clock,
		logger:      logger,
	}
}

// SearchRecords lists a patient's ACTIVE records, newest first
func (s *HealthRecordService) SearchRecords(ctx context.Context, params HealthRecordSearchParams) ([]models.HealthRecordSummary, int, models.HealthRecordFilter, error) {
	filter := models.HealthRecordFilter{
		PatientID: params.PatientID,
		Limit:     utils.ValidateLimit(params.Limit),
		Offset:    utils.ValidateOffset(params.Offset),
	}

	if err := utils.ValidateRequired("patientId", params.PatientID); err != nil {
		return nil, 0, filter, &ValidationError{Message: err.Error()}
	}

	if params.Type != "" {
		recordType, ok := models.ParseRecordType(params.Type)
		if !ok {
			return nil, 0, filter, validationErrorf("unknown record type: %s", params.Type)
		}
		filter.RecordType = recordType
	}

	if params.From != "" {
		from, err := utils.ParseTimeParam(params.From)
		if err != nil {
			return nil, 0, filter, validationErrorf("invalid from: %v", err)
		}
		filter.From = from
	}
	if params.To != "" {
		to, err := utils.ParseTimeParam(params.To)
		if err != nil {
			return nil, 0, filter, validationErrorf("invalid to: %v", err)
		}
		filter.To = to
	}
	if filter.From > 0 && filter.To > 0 && filter.From > filter.To {
		return nil, 0, filter, validationErrorf("from must not be after to")
	}

	records, total, err := s.recordStore.Search(ctx, filter)
	if err != nil {
		return nil, 0, filter, fmt.Errorf("failed to search health records: %w", err)
	}
	if records == nil {
		records = []models.HealthRecordSummary{}
	}
	return records, total, filter, nil
}

// GetRecord returns a record with its integrity check and logs a VIEW access.
// A read is refused when the access cannot be logged.
func (s *HealthRecordService) GetRecord(ctx context.Context, recordID string, actor models.Actor) (*models.HealthRecordDetail, error) {
	if err := utils.ValidateID("record ID", recordID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	record, err := s.recordStore.GetByID(ctx, recordID)
	if err != nil {
		return nil, notFoundOr(err, "health record", recordID, "get health record")
	}
	if record.Status == models.RecordDeleted {
		return nil, &NotFoundError{Entity: "health record", ID: recordID}
	}

	if err := s.logAccess(ctx, record, actor, models.AccessView); err != nil {
		return nil, err
	}

	verified := utils.VerifyChecksum([]byte(record.FHIRResource), record.Checksum)
	if !verified {
		s.logger.WithField("record_id", recordID).Warn("Health record checksum mismatch")
	}

	return &models.HealthRecordDetail{HealthRecord: *record, IntegrityVerified: verified}, nil
}

// ArchiveRecord moves an ACTIVE record to ARCHIVED
func (s *HealthRecordService) ArchiveRecord(ctx context.Context, recordID string, actor models.Actor) (*models.HealthRecord, error) {
	return s.transition(ctx, recordID, models.RecordArchived, models.AccessArchive, actor)
}

// DeleteRecord logically deletes an ACTIVE or ARCHIVED record
func (s *HealthRecordService) DeleteRecord(ctx context.Context, recordID string, actor models.Actor) (*models.HealthRecord, error) {
	return s.transition(ctx, recordID, models.RecordDeleted, models.AccessDelete, actor)
}

// GetAccessLog returns the access history of a record, newest first
func (s *HealthRecordService) GetAccessLog(ctx context.Context, recordID string) ([]models.HealthRecordAccessLog, error) {
	if err := utils.ValidateID("record ID", recordID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if _, err := s.recordStore.GetByID(ctx, recordID); err != nil {
		return nil, notFoundOr(err, "health record", recordID, "get health record")
	}

	entries, err := s.accessStore.ListByRecordID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list access log: %w", err)
	}
	if entries == nil {
		entries = []models.HealthRecordAccessLog{}
	}
	return entries, nil
}

func (s *HealthRecordService) transition(ctx context.Context, recordID string, to models.RecordStatus, action models.AccessAction, actor models.Actor) (*models.HealthRecord, error) {
	if err := utils.ValidateID("record ID", recordID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	record, err := s.recordStore.GetByID(ctx, recordID)
	if err != nil {
		return nil, notFoundOr(err, "health record", recordID, "get health record")
	}
	if !record.Status.CanTransitionTo(to) {
		return nil, &InvalidStateError{Entity: "health record", ID: recordID, Status: string(record.Status), Message: fmt.Sprintf("cannot move to %s", to)}
	}

	now := s.clock.Now().UnixMilli()
	ok, err := s.recordStore.UpdateStatus(ctx, recordID, record.Status, to, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update health record status: %w", err)
	}
	if !ok {
		return nil, &InvalidStateError{Entity: "health record", ID: recordID, Status: string(record.Status), Message: "status changed concurrently"}
	}

	if err := s.logAccess(ctx, record, actor, action); err != nil {
		s.logger.WithField("record_id", recordID).WithError(err).Error("Failed to log health record access")
	}

	s.logger.WithFields(logrus.Fields{
		"record_id":       recordID,
		"previous_status": record.Status,
		"status":          to,
		"actor_id":        actor.ID,
	}).Info("Health record status changed")

	record.Status = to
	record.UpdatedTime = now
	return record, nil
}

func (s *HealthRecordService) logAccess(ctx context.Context, record *models.HealthRecord, actor models.Actor, action models.AccessAction) error {
	entry := &models.HealthRecordAccessLog{
		AccessID:    utils.GenerateAccessLogID(),
		RecordID:    record.RecordID,
		PatientID:   record.PatientID,
		ActorID:     actor.ID,
		ActorType:   actor.Type,
		Action:      action,
		IPAddress:   optionalString(actor.IPAddress),
		UserAgent:   optionalString(actor.UserAgent),
		CreatedTime: s.clock.Now().UnixMilli(),
	}
	if err := s.accessStore.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to log health record access: %w", err)
	}
	return nil
}

// RecordIndexer marks stored records as indexed. It stands in for a search index write.
type RecordIndexer struct {
	recordStore HealthRecordStore
	clock       utils.Clock
}

// NewRecordIndexer creates an indexer over the health record store
func NewRecordIndexer(recordStore HealthRecordStore, clock utils.Clock) *RecordIndexer {
	return &RecordIndexer{recordStore: recordStore, clock: clock}
}

// Index marks the records as indexed
func (i *RecordIndexer) Index(ctx context.Context, records []*models.HealthRecord) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.RecordID)
	}
	now := i.clock.Now().UnixMilli()
	if err := i.recordStore.MarkIndexed(ctx, ids, now); err != nil {
		return fmt.Errorf("failed to mark records indexed: %w", err)
	}
	for _, r := range records {
		r.IndexedTime = &now
	}
	return nil
}
