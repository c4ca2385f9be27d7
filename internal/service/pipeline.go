package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wso2/abdm-integration-api/internal/crypto"
	"github.com/wso2/abdm-integration-api/internal/dao"
	"github.com/wso2/abdm-integration-api/internal/fhir"
	"github.com/wso2/abdm-integration-api/internal/metrics"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

const providerTypeHIP = "HIP"

// EntryOutcome is how one health information entry left the pipeline
type EntryOutcome int

const (
	// EntryStored means at least one resource of the entry was stored
	EntryStored EntryOutcome = iota
	// EntryFailed means the entry failed terminally at some stage
	EntryFailed
	// EntrySkipped means the entry was stored by an earlier delivery
	EntrySkipped
)

// DeliveryResult counts entry outcomes of one delivery
type DeliveryResult struct {
	Completed int
	Failed    int
	Skipped   int
}

// Pipeline drives health information entries through DECRYPT, PARSE, VALIDATE, STORE
// and INDEX. Every stage attempt writes one processing log entry.
type Pipeline struct {
	recordStore HealthRecordStore
	logStore    ProcessingLogStore
	decrypter   crypto.Decrypter
	indexer     Indexer
	clock       utils.Clock
	logger      *logrus.Logger
}

// NewPipeline creates a new health information pipeline
func NewPipeline(recordStore HealthRecordStore, logStore ProcessingLogStore, decrypter crypto.Decrypter, indexer Indexer, clock utils.Clock, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		recordStore: recordStore,
		logStore:    logStore,
		decrypter:   decrypter,
		indexer:     indexer,
		clock:       clock,
		logger:      logger,
	}
}

// ProcessDelivery processes every entry independently. A failing entry never stops
// its siblings.
func (p *Pipeline) ProcessDelivery(ctx context.Context, fetch *models.HealthRecordFetchRequest, callback *models.HealthInfoCallback) DeliveryResult {
	var result DeliveryResult
	for i := range callback.Entries {
		switch p.ProcessEntry(ctx, fetch, callback, &callback.Entries[i]) {
		case EntryStored:
			result.Completed++
		case EntryFailed:
			result.Failed++
		case EntrySkipped:
			result.Skipped++
		}
	}
	return result
}

// ProcessEntry runs one entry through the pipeline
func (p *Pipeline) ProcessEntry(ctx context.Context, fetch *models.HealthRecordFetchRequest, callback *models.HealthInfoCallback, entry *models.HealthInfoEntry) EntryOutcome {
	externalID := entry.ExternalRecordID()
	logger := p.logger.WithFields(logrus.Fields{
		"fetch_request_id":   fetch.FetchRequestID,
		"external_record_id": externalID,
	})

	// Decrypt
	started := p.clock.Now()
	plaintext, err := p.decrypt(ctx, fetch, callback, entry)
	if err != nil {
		p.fail(ctx, logger, fetch, externalID, DecryptError(err), started)
		return EntryFailed
	}
	p.logStage(ctx, fetch, &externalID, nil, models.StageDecrypt, models.OutcomeSuccess, nil, started, nil)

	// Parse
	started = p.clock.Now()
	bundle, err := fhir.Parse(plaintext)
	if err != nil {
		p.fail(ctx, logger, fetch, externalID, ParseError(err), started)
		return EntryFailed
	}
	p.logStage(ctx, fetch, &externalID, nil, models.StageParse, models.OutcomeSuccess, nil, started, map[string]interface{}{
		"resources": len(bundle.Resources),
	})

	// Validate
	started = p.clock.Now()
	if err := bundle.Validate(fetch.PatientID); err != nil {
		p.fail(ctx, logger, fetch, externalID, ValidateError(err), started)
		return EntryFailed
	}
	p.logStage(ctx, fetch, &externalID, nil, models.StageValidate, models.OutcomeSuccess, nil, started, nil)

	// Store
	started = p.clock.Now()
	exists, err := p.recordStore.ExistsByExternalRecordID(ctx, fetch.PatientID, externalID)
	if err != nil {
		p.fail(ctx, logger, fetch, externalID, StoreError(err), started)
		return EntryFailed
	}
	if exists {
		p.skipDuplicate(ctx, logger, fetch, externalID, started)
		return EntrySkipped
	}

	stored, duplicates, failures := p.store(ctx, fetch, callback, bundle, externalID)
	if len(stored) == 0 {
		if duplicates > 0 && len(failures) == 0 {
			p.skipDuplicate(ctx, logger, fetch, externalID, started)
			return EntrySkipped
		}
		err := StoreError(fmt.Errorf("no resource of the bundle could be stored"))
		p.logStage(ctx, fetch, &externalID, nil, models.StageStore, models.OutcomeFailed, err, started, map[string]interface{}{
			"failedResources": failures,
		})
		logger.WithError(err).Warn("Health information entry failed")
		return EntryFailed
	}

	ids := make([]string, 0, len(stored))
	for _, r := range stored {
		ids = append(ids, r.RecordID)
	}
	details := map[string]interface{}{"records": ids}
	if len(failures) > 0 {
		details["failedResources"] = failures
		logger.WithField("failed_resources", len(failures)).Warn("Some resources of the bundle could not be stored")
	}
	p.logStage(ctx, fetch, &externalID, &ids[0], models.StageStore, models.OutcomeSuccess, nil, started, details)

	// Index failures leave the records stored; they are recorded and the entry still counts
	started = p.clock.Now()
	if err := p.indexer.Index(ctx, stored); err != nil {
		p.logStage(ctx, fetch, &externalID, &ids[0], models.StageIndex, models.OutcomeFailed, err, started, nil)
		logger.WithError(err).Warn("Failed to index health records")
	} else {
		p.logStage(ctx, fetch, &externalID, &ids[0], models.StageIndex, models.OutcomeSuccess, nil, started, nil)
	}

	logger.WithField("records", len(stored)).Debug("Health information entry stored")
	return EntryStored
}

func (p *Pipeline) decrypt(ctx context.Context, fetch *models.HealthRecordFetchRequest, callback *models.HealthInfoCallback, entry *models.HealthInfoEntry) ([]byte, error) {
	plaintext, err := p.decrypter.Decrypt(ctx, fetch, callback.KeyMaterial, entry)
	if err != nil {
		return nil, err
	}
	if err := crypto.VerifyChecksum(entry, plaintext); err != nil {
		return nil, err
	}
	return plaintext, nil
}

type resourceFailure struct {
	ResourceID string `json:"resourceId"`
	Error      string `json:"error"`
}

// store creates one health record per clinical resource of the bundle
func (p *Pipeline) store(ctx context.Context, fetch *models.HealthRecordFetchRequest, callback *models.HealthInfoCallback, bundle *fhir.ParsedBundle, externalID string) ([]*models.HealthRecord, int, []resourceFailure) {
	now := p.clock.Now().UnixMilli()
	recordType := bundle.RecordType(fetch.HITypes)

	providerID, providerName := callback.HIPID, callback.HIPName
	if id, name, ok := bundle.Provider(); ok {
		if id != "" {
			providerID = id
		}
		if name != "" {
			providerName = name
		}
	}

	defaultDate := bundle.CompositionDate()
	if defaultDate == 0 {
		defaultDate = now
	}

	var stored []*models.HealthRecord
	var failures []resourceFailure
	duplicates := 0

	for i, resource := range bundle.ClinicalResources() {
		resourceID := resource.ResourceType + "/" + resource.ID
		if resource.ID == "" {
			resourceID = fmt.Sprintf("%s/%d", resource.ResourceType, i)
		}

		recordDate := resource.Date
		if recordDate == 0 {
			recordDate = defaultDate
		}

		payload := append([]byte(nil), resource.Raw...)
		extID := externalID
		fetchID := fetch.FetchRequestID
		fetched := now
		record := &models.HealthRecord{
			RecordID:         utils.GenerateHealthRecordID(),
			PatientID:        fetch.PatientID,
			FetchRequestID:   &fetchID,
			ExternalRecordID: &extID,
			ResourceID:       resourceID,
			ResourceType:     resource.ResourceType,
			RecordType:       recordType,
			RecordDate:       recordDate,
			ProviderID:       optionalString(providerID),
			ProviderName:     optionalString(providerName),
			FHIRResource:     models.JSON(payload),
			Source:           models.RecordSourceABDM,
			Status:           models.RecordActive,
			Checksum:         utils.Checksum(payload),
			FetchedTime:      &fetched,
			CreatedTime:      now,
			UpdatedTime:      now,
		}
		if record.ProviderID != nil || record.ProviderName != nil {
			providerType := providerTypeHIP
			record.ProviderType = &providerType
		}

		if err := p.recordStore.Create(ctx, record); err != nil {
			if errors.Is(err, dao.ErrDuplicate) {
				duplicates++
				continue
			}
			failures = append(failures, resourceFailure{ResourceID: resourceID, Error: err.Error()})
			continue
		}
		stored = append(stored, record)
	}
	return stored, duplicates, failures
}

func (p *Pipeline) skipDuplicate(ctx context.Context, logger *logrus.Entry, fetch *models.HealthRecordFetchRequest, externalID string, started time.Time) {
	p.logStage(ctx, fetch, &externalID, nil, models.StageStore, models.OutcomeSkipped, nil, started, map[string]interface{}{
		"reason": "external record id already stored",
	})
	logger.Info("Health information entry already stored, skipped")
}

func (p *Pipeline) fail(ctx context.Context, logger *logrus.Entry, fetch *models.HealthRecordFetchRequest, externalID string, err *PipelineError, started time.Time) {
	p.logStage(ctx, fetch, &externalID, nil, err.Stage, models.OutcomeFailed, err.Err, started, nil)
	logger.WithField("stage", err.Stage).WithError(err.Err).Warn("Health information entry failed")
}

// logStage writes one processing log entry and the matching stage metrics. A log write
// failure is reported but never fails the entry.
func (p *Pipeline) logStage(ctx context.Context, fetch *models.HealthRecordFetchRequest, externalID, recordID *string, stage models.ProcessingStage, outcome models.ProcessingOutcome, stageErr error, started time.Time, details interface{}) {
	now := p.clock.Now()
	duration := now.Sub(started)
	if duration < 0 {
		duration = 0
	}

	entry := &models.HealthRecordProcessingLogEntry{
		LogID:            utils.GenerateProcessingLogID(),
		FetchRequestID:   fetch.FetchRequestID,
		RecordID:         recordID,
		ExternalRecordID: externalID,
		Stage:            stage,
		Outcome:          outcome,
		DurationMillis:   duration.Milliseconds(),
		CreatedTime:      now.UnixMilli(),
	}
	if stageErr != nil {
		msg := stageErr.Error()
		entry.ErrorMessage = &msg
	}
	if details != nil {
		entry.Details = models.MustJSON(details)
	}

	metrics.PipelineStages.WithLabelValues(string(stage), string(outcome)).Inc()
	metrics.PipelineStageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())

	if err := p.logStore.Create(ctx, entry); err != nil {
		p.logger.WithFields(logrus.Fields{
			"fetch_request_id": fetch.FetchRequestID,
			"stage":            stage,
			"outcome":          outcome,
		}).WithError(err).Error("Failed to write processing log entry")
	}
}
