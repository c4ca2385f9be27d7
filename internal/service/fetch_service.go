package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wso2/abdm-integration-api/internal/config"
	"github.com/wso2/abdm-integration-api/internal/crypto"
	"github.com/wso2/abdm-integration-api/internal/dao"
	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/metrics"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

const stalledListLimit = 500

// FetchService drives health record fetch requests and applies health information deliveries
type FetchService struct {
	fetchStore    FetchRequestStore
	artifactStore ConsentArtifactStore
	requestStore  ConsentRequestStore
	auditStore    ConsentAuditStore
	logStore      ProcessingLogStore
	db            Transactor
	gateway       Gateway
	pipeline      *Pipeline
	clock         utils.Clock
	config        *config.FetchConfig
	callbackURL   string
	logger        *logrus.Logger
}

// NewFetchService creates a new fetch service instance
func NewFetchService(
	fetchStore FetchRequestStore,
	artifactStore ConsentArtifactStore,
	requestStore ConsentRequestStore,
	auditStore ConsentAuditStore,
	logStore ProcessingLogStore,
	db Transactor,
	gateway Gateway,
	pipeline *Pipeline,
	clock utils.Clock,
	cfg *config.FetchConfig,
	callbackURL string,
	logger *logrus.Logger,
) *FetchService {
	return &FetchService{
		fetchStore:    fetchStore,
		artifactStore: artifactStore,
		requestStore:  requestStore,
		auditStore:    auditStore,
		logStore:      logStore,
		db:            db,
		gateway:       gateway,
		pipeline:      pipeline,
		clock:         clock,
		config:        cfg,
		callbackURL:   callbackURL,
		logger:        logger,
	}
}

// FetchHealthRecords creates a PROCESSING fetch request under an active consent artifact
// and asks the network to push the matching health information. Documents arrive later
// through the health information callback.
func (s *FetchService) FetchHealthRecords(ctx context.Context, request *models.FetchHealthRecordsRequest, actor models.Actor) (*models.HealthRecordFetchRequest, error) {
	if request == nil {
		return nil, validationErrorf("request body is required")
	}
	if err := utils.ValidateID("consentArtifactId", request.ConsentArtifactID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	now := s.clock.Now()

	artifact, err := s.artifactStore.GetByID(ctx, request.ConsentArtifactID)
	if err != nil {
		return nil, notFoundOr(err, "consent artifact", request.ConsentArtifactID, "get consent artifact")
	}
	if !artifact.IsActive(now) {
		status := string(artifact.Status)
		if artifact.Status == models.ArtifactActive {
			status = string(models.ArtifactExpired)
		}
		return nil, &InvalidStateError{Entity: "consent artifact", ID: artifact.ArtifactID, Status: status, Message: "health records can only be fetched under an active consent artifact"}
	}

	consentRequest, err := s.requestStore.GetByID(ctx, artifact.ConsentRequestID)
	if err != nil {
		return nil, notFoundOr(err, "consent request", artifact.ConsentRequestID, "get consent request")
	}
	if consentRequest.Status != models.ConsentGranted {
		return nil, &InvalidStateError{Entity: "consent request", ID: consentRequest.ConsentRequestID, Status: string(consentRequest.Status), Message: "consent request is not granted"}
	}

	hiTypes, err := scopeHITypes(request.HITypes, consentRequest.HITypes)
	if err != nil {
		return nil, err
	}
	dateRange, err := scopeDateRange(request.DateRange, consentRequest)
	if err != nil {
		return nil, err
	}

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key material: %w", err)
	}

	nowMillis := now.UnixMilli()
	fetch := &models.HealthRecordFetchRequest{
		FetchRequestID:   utils.GenerateFetchRequestID(),
		ArtifactID:       artifact.ArtifactID,
		ConsentRequestID: consentRequest.ConsentRequestID,
		PatientID:        consentRequest.PatientID,
		DoctorID:         consentRequest.DoctorID,
		HITypes:          hiTypes,
		DateRangeFrom:    dateRange.From,
		DateRangeTo:      dateRange.To,
		Status:           models.FetchProcessing,
		CallbackURL:      s.callbackURL,
		KeyNonce:         nonce,
		RequestedBy:      actor.ID,
		ClientIP:         optionalString(actor.IPAddress),
		UserAgent:        optionalString(actor.UserAgent),
		CreatedTime:      nowMillis,
		UpdatedTime:      nowMillis,
	}
	if fetch.RequestedBy == "" {
		fetch.RequestedBy = consentRequest.DoctorID
	}

	if err := s.fetchStore.Create(ctx, fetch); err != nil {
		return nil, fmt.Errorf("failed to create fetch request: %w", err)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"fetch_request_id":   fetch.FetchRequestID,
		"consent_request_id": fetch.ConsentRequestID,
		"artifact_id":        fetch.ArtifactID,
	})
	logger.Info("Fetch request created")

	keyMaterial := models.KeyMaterial{
		CryptoAlg: s.pipeline.decrypter.Algorithm(),
		DHPublicKey: models.DHPublicKey{
			Expiry: utils.FormatMillis(artifact.ExpiryTime),
		},
		Nonce: nonce,
	}

	started := s.clock.Now()
	externalID, err := s.gateway.RequestHealthInformation(ctx, fetch, artifact.ExternalArtifactID, keyMaterial)
	if err != nil {
		logger.WithError(err).Error("Failed to request health information from gateway")
		s.pipeline.logStage(ctx, fetch, nil, nil, models.StageFetch, models.OutcomeFailed, err, started, nil)
		if msgErr := s.fetchStore.SetErrorMessage(ctx, fetch.FetchRequestID, err.Error(), s.clock.Now().UnixMilli()); msgErr != nil {
			logger.WithError(msgErr).Error("Failed to record fetch request error")
		}
		return fetch, err
	}

	if err := s.fetchStore.SetExternalRequestID(ctx, fetch.FetchRequestID, externalID, s.clock.Now().UnixMilli()); err != nil {
		if errors.Is(err, dao.ErrDuplicate) {
			return fetch, &InvalidStateError{Entity: "fetch request", ID: fetch.FetchRequestID, Status: string(fetch.Status), Message: "external request id already bound to another fetch request"}
		}
		return fetch, fmt.Errorf("failed to record external request id: %w", err)
	}
	fetch.ExternalRequestID = &externalID
	s.pipeline.logStage(ctx, fetch, nil, nil, models.StageFetch, models.OutcomeSuccess, nil, started, map[string]interface{}{
		"externalRequestId": externalID,
	})

	err = s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		artifactID := artifact.ArtifactID
		audit := newAudit(consentRequest.ConsentRequestID, &artifactID, models.AuditHealthInfoRequested, actor, "", "", map[string]interface{}{
			"fetchRequestId":    fetch.FetchRequestID,
			"externalRequestId": externalID,
			"hiTypes":           fetch.HITypes,
		}, nowMillis)
		return s.auditStore.CreateWithTx(ctx, tx, audit)
	})
	if err != nil {
		logger.WithError(err).Error("Failed to create health information request audit record")
	}

	logger.WithField("external_request_id", externalID).Info("Health information requested")
	return fetch, nil
}

// GetFetchStatus returns the polling view of a fetch request
func (s *FetchService) GetFetchStatus(ctx context.Context, fetchRequestID string) (*models.FetchStatusView, error) {
	if err := utils.ValidateID("fetch request ID", fetchRequestID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	fetch, err := s.fetchStore.GetByID(ctx, fetchRequestID)
	if err != nil {
		return nil, notFoundOr(err, "fetch request", fetchRequestID, "get fetch request")
	}
	return fetch.StatusView(), nil
}

// GetProcessingLog returns the pipeline stage attempts of a fetch request, oldest first
func (s *FetchService) GetProcessingLog(ctx context.Context, fetchRequestID string) ([]models.HealthRecordProcessingLogEntry, error) {
	if err := utils.ValidateID("fetch request ID", fetchRequestID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if _, err := s.fetchStore.GetByID(ctx, fetchRequestID); err != nil {
		return nil, notFoundOr(err, "fetch request", fetchRequestID, "get fetch request")
	}

	entries, err := s.logStore.ListByFetchRequestID(ctx, fetchRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing log: %w", err)
	}
	if entries == nil {
		entries = []models.HealthRecordProcessingLogEntry{}
	}
	return entries, nil
}

// CancelFetchRequest cancels a PROCESSING fetch request. Later deliveries are still
// processed and logged but no longer change its counters or status.
func (s *FetchService) CancelFetchRequest(ctx context.Context, fetchRequestID, reason string, actor models.Actor) (*models.HealthRecordFetchRequest, error) {
	if err := utils.ValidateID("fetch request ID", fetchRequestID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	reason = utils.SanitizeString(reason)
	if err := utils.ValidateMaxLength("reason", reason, maxRevokeReason); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	var cancelled *models.HealthRecordFetchRequest
	err := s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		fetch, err := s.fetchStore.GetByIDForUpdate(ctx, tx, fetchRequestID)
		if err != nil {
			return notFoundOr(err, "fetch request", fetchRequestID, "get fetch request")
		}
		if fetch.Status.IsTerminal() {
			return &InvalidStateError{Entity: "fetch request", ID: fetchRequestID, Status: string(fetch.Status), Message: "only PROCESSING fetch requests can be cancelled"}
		}

		now := s.clock.Now().UnixMilli()
		if reason != "" {
			fetch.ErrorMessage = &reason
		}
		fetch.Status = models.FetchCancelled
		fetch.UpdatedTime = now
		fetch.CompletedTime = &now

		if err := s.fetchStore.UpdateProgressWithTx(ctx, tx, fetch); err != nil {
			return fmt.Errorf("failed to cancel fetch request: %w", err)
		}
		cancelled = fetch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"fetch_request_id": fetchRequestID,
		"actor_id":         actor.ID,
	}).Info("Fetch request cancelled")
	return cancelled, nil
}

// HandleHealthInfoCallback runs every entry of one delivery through the pipeline and then
// applies the delivery's counters to the fetch request under a row lock
func (s *FetchService) HandleHealthInfoCallback(ctx context.Context, callback *models.HealthInfoCallback) error {
	externalID := strings.TrimSpace(callback.TransactionID)
	if externalID == "" {
		return validationErrorf("health information delivery has no transaction id")
	}

	fetch, err := s.fetchStore.GetByExternalRequestID(ctx, externalID)
	if err != nil {
		return notFoundOr(err, "fetch request", externalID, "get fetch request")
	}

	logger := s.logger.WithFields(logrus.Fields{
		"fetch_request_id":    fetch.FetchRequestID,
		"external_request_id": externalID,
	})

	if callback.IsHeartbeat() {
		logger.Debug("Empty health information delivery ignored")
		return nil
	}

	result := s.pipeline.ProcessDelivery(ctx, fetch, callback)

	progress := models.FetchProgress{
		Completed: result.Completed,
		Failed:    result.Failed,
	}
	if callback.TotalRecords != nil {
		progress.Total = *callback.TotalRecords
	}
	if callback.Error != nil {
		progress.FatalError = fmt.Sprintf("%s: %s", callback.Error.Code, callback.Error.Message)
	}

	applied := false
	var status models.FetchStatus
	err = s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		locked, err := s.fetchStore.GetByIDForUpdate(ctx, tx, fetch.FetchRequestID)
		if err != nil {
			return notFoundOr(err, "fetch request", fetch.FetchRequestID, "get fetch request")
		}
		status = locked.Status
		if !locked.ApplyProgress(progress, s.clock.Now().UnixMilli()) {
			return nil
		}
		if err := s.fetchStore.UpdateProgressWithTx(ctx, tx, locked); err != nil {
			return fmt.Errorf("failed to update fetch request progress: %w", err)
		}
		status = locked.Status
		applied = true
		return nil
	})
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"completed": result.Completed,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"status":    status,
	}
	if !applied {
		logger.WithFields(fields).Info("Fetch request is terminal, delivery counters not applied")
		return nil
	}
	logger.WithFields(fields).Info("Health information delivery applied")
	return nil
}

// ReportStalled logs PROCESSING fetch requests without progress within the stall timeout.
// Their status is left unchanged.
func (s *FetchService) ReportStalled(ctx context.Context) (int, error) {
	if s.config == nil || s.config.StallTimeout <= 0 {
		return 0, nil
	}

	before := s.clock.Now().Add(-s.config.StallTimeout).UnixMilli()
	stalled, err := s.fetchStore.ListStalled(ctx, before, stalledListLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stalled fetch requests: %w", err)
	}

	for _, f := range stalled {
		s.logger.WithFields(logrus.Fields{
			"fetch_request_id": f.FetchRequestID,
			"updated_time":     f.UpdatedTime,
			"completed":        f.CompletedRecords,
			"failed":           f.FailedRecords,
			"total":            f.TotalRecords,
		}).Warn("Fetch request has made no progress within the stall timeout")
	}
	metrics.FetchStalled.Set(float64(len(stalled)))
	return len(stalled), nil
}

// scopeHITypes defaults to the consent's HI types and rejects types outside them
func scopeHITypes(requested []string, granted models.StringList) (models.StringList, error) {
	types := cleanList(requested)
	if len(types) == 0 {
		return append(models.StringList{}, granted...), nil
	}
	for _, t := range types {
		if !granted.Contains(t) {
			return nil, validationErrorf("health information type %s is not covered by the consent", t)
		}
	}
	return models.StringList(types), nil
}

// scopeDateRange defaults to the consent's date range and rejects ranges outside it
func scopeDateRange(requested *models.DateRange, consentRequest *models.ConsentRequest) (models.DateRange, error) {
	granted := models.DateRange{From: consentRequest.DateRangeFrom, To: consentRequest.DateRangeTo}
	if requested == nil || (requested.From == 0 && requested.To == 0) {
		return granted, nil
	}
	if err := utils.ValidateDateRange(requested.From, requested.To); err != nil {
		return models.DateRange{}, &ValidationError{Message: err.Error()}
	}
	if requested.From < granted.From || requested.To > granted.To {
		return models.DateRange{}, validationErrorf("date range is outside the consented range")
	}
	return *requested, nil
}
