package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wso2/abdm-integration-api/internal/config"
	"github.com/wso2/abdm-integration-api/internal/dao"
	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/metrics"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

const (
	maxPurposeTextLength = 1024
	maxRevokeReason      = 1024
)

// ConsentService drives the consent request state machine
type ConsentService struct {
	requestStore  ConsentRequestStore
	artifactStore ConsentArtifactStore
	auditStore    ConsentAuditStore
	db            Transactor
	gateway       Gateway
	clock         utils.Clock
	config        *config.ConsentConfig
	callbackURL   string
	logger        *logrus.Logger
}

// NewConsentService creates a new consent service instance
func NewConsentService(
	requestStore ConsentRequestStore,
	artifactStore ConsentArtifactStore,
	auditStore ConsentAuditStore,
	db Transactor,
	gateway Gateway,
	clock utils.Clock,
	cfg *config.ConsentConfig,
	callbackURL string,
	logger *logrus.Logger,
) *ConsentService {
	return &ConsentService{
		requestStore:  requestStore,
		artifactStore: artifactStore,
		auditStore:    auditStore,
		db:            db,
		gateway:       gateway,
		clock:         clock,
		config:        cfg,
		callbackURL:   callbackURL,
		logger:        logger,
	}
}

// CreateConsentRequest persists a REQUESTED consent request and submits it to the network.
// When submission fails the persisted request is returned together with the error so
// the caller can resubmit it later.
func (s *ConsentService) CreateConsentRequest(ctx context.Context, request *models.ConsentRequestCreateRequest, actor models.Actor) (*models.ConsentRequest, error) {
	now := s.clock.Now()

	hiTypes, err := s.validateCreateRequest(request, now)
	if err != nil {
		return nil, err
	}

	expiry := request.ExpiryTime
	if expiry == 0 {
		expiry = now.Add(s.config.DefaultExpiry).UnixMilli()
	}

	doctorID := strings.TrimSpace(request.DoctorID)
	if actor.ID == "" {
		actor.ID = doctorID
		actor.Type = models.ActorTypeDoctor
	}

	nowMillis := now.UnixMilli()
	consentRequest := &models.ConsentRequest{
		ConsentRequestID: utils.GenerateConsentRequestID(),
		PatientID:        strings.TrimSpace(request.PatientID),
		DoctorID:         doctorID,
		PurposeCode:      strings.TrimSpace(request.PurposeCode),
		PurposeText:      utils.SanitizeString(request.PurposeText),
		HITypes:          hiTypes,
		DateRangeFrom:    request.DateRange.From,
		DateRangeTo:      request.DateRange.To,
		ExpiryTime:       expiry,
		HIPIDs:           cleanList(request.HIPIDs),
		Status:           models.ConsentRequested,
		CallbackURL:      s.callbackURL,
		CreatedTime:      nowMillis,
		UpdatedTime:      nowMillis,
	}

	err = s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		if err := s.requestStore.CreateWithTx(ctx, tx, consentRequest); err != nil {
			return fmt.Errorf("failed to create consent request: %w", err)
		}
		audit := newAudit(consentRequest.ConsentRequestID, nil, models.AuditConsentRequested, actor, "", string(models.ConsentRequested), map[string]interface{}{
			"purposeCode": consentRequest.PurposeCode,
			"hiTypes":     consentRequest.HITypes,
		}, nowMillis)
		if err := s.auditStore.CreateWithTx(ctx, tx, audit); err != nil {
			return fmt.Errorf("failed to create audit record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"consent_request_id": consentRequest.ConsentRequestID,
		"patient_id":         consentRequest.PatientID,
		"doctor_id":          consentRequest.DoctorID,
	}).Info("Consent request created")

	if err := s.submit(ctx, consentRequest, actor); err != nil {
		return consentRequest, err
	}
	return consentRequest, nil
}

// ResubmitConsentRequest retries outward submission of a REQUESTED consent request
// that never reached the network
func (s *ConsentService) ResubmitConsentRequest(ctx context.Context, consentRequestID string, actor models.Actor) (*models.ConsentRequest, error) {
	if err := utils.ValidateID("consent request ID", consentRequestID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	consentRequest, err := s.requestStore.GetByID(ctx, consentRequestID)
	if err != nil {
		return nil, notFoundOr(err, "consent request", consentRequestID, "get consent request")
	}

	if consentRequest.Status != models.ConsentRequested {
		return nil, &InvalidStateError{Entity: "consent request", ID: consentRequestID, Status: string(consentRequest.Status), Message: "only REQUESTED consent requests can be resubmitted"}
	}
	if consentRequest.ExternalRequestID != nil {
		return nil, &InvalidStateError{Entity: "consent request", ID: consentRequestID, Status: string(consentRequest.Status), Message: "consent request was already submitted"}
	}
	if utils.IsExpiredAt(consentRequest.ExpiryTime, s.clock.Now()) {
		return nil, &InvalidStateError{Entity: "consent request", ID: consentRequestID, Status: string(consentRequest.Status), Message: "consent request has expired"}
	}

	if err := s.submit(ctx, consentRequest, actor); err != nil {
		return consentRequest, err
	}
	return consentRequest, nil
}

// submit sends the consent request to the network and records the external id
func (s *ConsentService) submit(ctx context.Context, consentRequest *models.ConsentRequest, actor models.Actor) error {
	logger := s.logger.WithField("consent_request_id", consentRequest.ConsentRequestID)

	externalID, err := s.gateway.RequestConsent(ctx, consentRequest)
	if err != nil {
		logger.WithError(err).Error("Failed to submit consent request to gateway")
		return err
	}

	now := s.clock.Now().UnixMilli()
	if err := s.requestStore.SetExternalRequestID(ctx, consentRequest.ConsentRequestID, externalID, now); err != nil {
		if errors.Is(err, dao.ErrDuplicate) {
			return &InvalidStateError{Entity: "consent request", ID: consentRequest.ConsentRequestID, Status: string(consentRequest.Status), Message: "external request id already bound to another consent request"}
		}
		return fmt.Errorf("failed to record external request id: %w", err)
	}
	consentRequest.ExternalRequestID = &externalID
	consentRequest.UpdatedTime = now

	err = s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		audit := newAudit(consentRequest.ConsentRequestID, nil, models.AuditConsentSubmitted, actor, "", "", map[string]interface{}{
			"externalRequestId": externalID,
		}, now)
		return s.auditStore.CreateWithTx(ctx, tx, audit)
	})
	if err != nil {
		// The submission itself succeeded, so the request is left as is
		logger.WithError(err).Error("Failed to create submission audit record")
	}

	logger.WithField("external_request_id", externalID).Info("Consent request submitted to gateway")
	return nil
}

// HandleConsentDecision applies a consent notification from the network. Repeated
// notifications for a request that already reached the notified state are no-ops.
func (s *ConsentService) HandleConsentDecision(ctx context.Context, callback *models.ConsentCallback) error {
	externalID := strings.TrimSpace(callback.Notification.ConsentRequestID)
	if externalID == "" {
		return validationErrorf("consent notification has no consent request id")
	}

	decision := models.ConsentRequestStatus(strings.ToUpper(strings.TrimSpace(callback.Notification.Status)))
	if !decision.IsValid() || decision == models.ConsentRequested {
		return validationErrorf("unsupported consent decision: %s", callback.Notification.Status)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"external_request_id": externalID,
		"decision":            decision,
	})

	var from models.ConsentRequestStatus
	changed := false

	err := s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		consentRequest, err := s.requestStore.GetByExternalRequestIDForUpdate(ctx, tx, externalID)
		if err != nil {
			return notFoundOr(err, "consent request", externalID, "get consent request")
		}
		from = consentRequest.Status
		logger = logger.WithField("consent_request_id", consentRequest.ConsentRequestID)

		if consentRequest.Status.IsTerminal() {
			logger.WithField("status", consentRequest.Status).Info("Consent request already terminal, notification ignored")
			return nil
		}

		now := s.clock.Now().UnixMilli()

		if decision == models.ConsentGranted && consentRequest.Status == models.ConsentGranted {
			added, err := s.addArtifacts(ctx, tx, consentRequest, callback.Notification.ConsentArtefacts, now)
			if err != nil {
				return err
			}
			if len(added) == 0 {
				logger.Info("Consent request already granted, notification ignored")
				return nil
			}
			audit := newAudit(consentRequest.ConsentRequestID, nil, models.AuditArtifactReissued, models.NetworkActor, "", "", map[string]interface{}{
				"artifactIds": added,
			}, now)
			return s.auditStore.CreateWithTx(ctx, tx, audit)
		}

		if !consentRequest.Status.CanTransitionTo(decision) {
			return &InvalidStateError{Entity: "consent request", ID: consentRequest.ConsentRequestID, Status: string(consentRequest.Status), Message: fmt.Sprintf("cannot transition to %s", decision)}
		}

		ok, err := s.requestStore.UpdateStatusWithTx(ctx, tx, consentRequest.ConsentRequestID, consentRequest.Status, decision, now)
		if err != nil {
			return fmt.Errorf("failed to update consent request status: %w", err)
		}
		if !ok {
			return &InvalidStateError{Entity: "consent request", ID: consentRequest.ConsentRequestID, Status: string(consentRequest.Status), Message: "status changed concurrently"}
		}

		var action string
		actor := models.NetworkActor
		details := map[string]interface{}{}
		if reason := callback.Notification.Reason; reason != "" {
			details["reason"] = reason
		}

		switch decision {
		case models.ConsentGranted:
			action = models.AuditConsentGranted
			added, err := s.addArtifacts(ctx, tx, consentRequest, callback.Notification.ConsentArtefacts, now)
			if err != nil {
				return err
			}
			if len(added) == 0 {
				logger.Warn("Consent granted without artifacts")
			}
			details["artifactIds"] = added
		case models.ConsentDenied:
			action = models.AuditConsentDenied
		case models.ConsentRevoked:
			action = models.AuditConsentRevoked
			actor = models.Actor{ID: consentRequest.PatientID, Type: models.ActorTypePatient}
			reason := callback.Notification.Reason
			if reason == "" {
				reason = "revoked through the network"
			}
			revoked, err := s.artifactStore.RevokeActiveWithTx(ctx, tx, consentRequest.ConsentRequestID, reason, now)
			if err != nil {
				return fmt.Errorf("failed to revoke artifacts: %w", err)
			}
			details["revokedArtifacts"] = revoked
		case models.ConsentExpired:
			action = models.AuditConsentExpired
			expired, err := s.artifactStore.ExpireActiveWithTx(ctx, tx, consentRequest.ConsentRequestID, now)
			if err != nil {
				return fmt.Errorf("failed to expire artifacts: %w", err)
			}
			details["expiredArtifacts"] = expired
		}

		audit := newAudit(consentRequest.ConsentRequestID, nil, action, actor, string(consentRequest.Status), string(decision), details, now)
		if err := s.auditStore.CreateWithTx(ctx, tx, audit); err != nil {
			return fmt.Errorf("failed to create audit record: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}

	if changed {
		metrics.ConsentTransitions.WithLabelValues(string(from), string(decision)).Inc()
		logger.WithField("previous_status", from).Info("Consent decision applied")
	}
	return nil
}

// addArtifacts creates artifacts for grants not seen before and returns their local ids
func (s *ConsentService) addArtifacts(ctx context.Context, tx *database.Transaction, consentRequest *models.ConsentRequest, grants []models.ArtifactGrant, now int64) ([]string, error) {
	existing, err := s.artifactStore.ListByConsentRequestIDWithTx(ctx, tx, consentRequest.ConsentRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consent artifacts: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a.ExternalArtifactID] = true
	}

	added := []string{}
	for _, grant := range grants {
		externalID := strings.TrimSpace(grant.ID)
		if externalID == "" {
			return nil, validationErrorf("consent artifact without id")
		}
		if seen[externalID] {
			continue
		}
		seen[externalID] = true

		artifact := &models.ConsentArtifact{
			ArtifactID:         utils.GenerateArtifactID(),
			ConsentRequestID:   consentRequest.ConsentRequestID,
			ExternalArtifactID: externalID,
			HIPID:              optionalString(grant.HIPID),
			Permission:         grant.Permission,
			Status:             models.ArtifactActive,
			GrantedTime:        parseNetworkTime(grant.GrantedAt, now),
			ExpiryTime:         artifactExpiry(grant, consentRequest.ExpiryTime),
			CreatedTime:        now,
			UpdatedTime:        now,
		}
		if err := s.artifactStore.CreateWithTx(ctx, tx, artifact); err != nil {
			if errors.Is(err, dao.ErrDuplicate) {
				return nil, &InvalidStateError{Entity: "consent artifact", ID: externalID, Status: string(models.ArtifactActive), Message: "artifact belongs to another consent request"}
			}
			return nil, fmt.Errorf("failed to create consent artifact: %w", err)
		}
		added = append(added, artifact.ArtifactID)
	}
	return added, nil
}

// RevokeConsent revokes a REQUESTED or GRANTED consent request and its active artifacts.
// The network is notified first so a gateway failure leaves local state unchanged.
func (s *ConsentService) RevokeConsent(ctx context.Context, consentRequestID, reason string, actor models.Actor) (*models.ConsentRequest, error) {
	if err := utils.ValidateID("consent request ID", consentRequestID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	reason = utils.SanitizeString(reason)
	if err := utils.ValidateRequired("reason", reason); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if err := utils.ValidateMaxLength("reason", reason, maxRevokeReason); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	consentRequest, err := s.requestStore.GetByID(ctx, consentRequestID)
	if err != nil {
		return nil, notFoundOr(err, "consent request", consentRequestID, "get consent request")
	}
	if !consentRequest.Status.CanTransitionTo(models.ConsentRevoked) {
		return nil, &InvalidStateError{Entity: "consent request", ID: consentRequestID, Status: string(consentRequest.Status), Message: "only REQUESTED or GRANTED consent requests can be revoked"}
	}

	logger := s.logger.WithField("consent_request_id", consentRequestID)

	if consentRequest.ExternalRequestID != nil {
		artifacts, err := s.artifactStore.ListByConsentRequestID(ctx, consentRequestID)
		if err != nil {
			return nil, fmt.Errorf("failed to list consent artifacts: %w", err)
		}
		var externalIDs []string
		for _, a := range artifacts {
			if a.Status == models.ArtifactActive {
				externalIDs = append(externalIDs, a.ExternalArtifactID)
			}
		}
		if err := s.gateway.RevokeConsent(ctx, consentRequest, externalIDs, reason); err != nil {
			logger.WithError(err).Error("Failed to notify gateway of revocation")
			return nil, err
		}
	}

	var from models.ConsentRequestStatus
	var revoked int64
	err = s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		current, err := s.requestStore.GetByIDForUpdate(ctx, tx, consentRequestID)
		if err != nil {
			return notFoundOr(err, "consent request", consentRequestID, "get consent request")
		}
		if !current.Status.CanTransitionTo(models.ConsentRevoked) {
			return &InvalidStateError{Entity: "consent request", ID: consentRequestID, Status: string(current.Status), Message: "only REQUESTED or GRANTED consent requests can be revoked"}
		}
		from = current.Status

		now := s.clock.Now().UnixMilli()
		ok, err := s.requestStore.UpdateStatusWithTx(ctx, tx, consentRequestID, current.Status, models.ConsentRevoked, now)
		if err != nil {
			return fmt.Errorf("failed to update consent request status: %w", err)
		}
		if !ok {
			return &InvalidStateError{Entity: "consent request", ID: consentRequestID, Status: string(current.Status), Message: "status changed concurrently"}
		}

		revoked, err = s.artifactStore.RevokeActiveWithTx(ctx, tx, consentRequestID, reason, now)
		if err != nil {
			return fmt.Errorf("failed to revoke artifacts: %w", err)
		}

		audit := newAudit(consentRequestID, nil, models.AuditConsentRevoked, actor, string(current.Status), string(models.ConsentRevoked), map[string]interface{}{
			"reason":           reason,
			"revokedArtifacts": revoked,
		}, now)
		if err := s.auditStore.CreateWithTx(ctx, tx, audit); err != nil {
			return fmt.Errorf("failed to create audit record: %w", err)
		}

		current.Status = models.ConsentRevoked
		current.UpdatedTime = now
		consentRequest = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ConsentTransitions.WithLabelValues(string(from), string(models.ConsentRevoked)).Inc()
	logger.WithFields(logrus.Fields{
		"previous_status":   from,
		"revoked_artifacts": revoked,
		"actor_id":          actor.ID,
	}).Info("Consent request revoked")

	return consentRequest, nil
}

// GetConsentRequest returns a consent request with its artifacts
func (s *ConsentService) GetConsentRequest(ctx context.Context, consentRequestID string) (*models.ConsentRequestDetail, error) {
	if err := utils.ValidateID("consent request ID", consentRequestID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	consentRequest, err := s.requestStore.GetByID(ctx, consentRequestID)
	if err != nil {
		return nil, notFoundOr(err, "consent request", consentRequestID, "get consent request")
	}

	artifacts, err := s.artifactStore.ListByConsentRequestID(ctx, consentRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consent artifacts: %w", err)
	}
	if artifacts == nil {
		artifacts = []models.ConsentArtifact{}
	}

	return &models.ConsentRequestDetail{ConsentRequest: *consentRequest, Artifacts: artifacts}, nil
}

// ListActiveConsents lists a patient's consent requests with their artifacts.
// Only REQUESTED and GRANTED requests are returned unless includeAll is set.
func (s *ConsentService) ListActiveConsents(ctx context.Context, patientID string, includeAll bool) ([]models.ConsentRequestDetail, error) {
	if err := utils.ValidateRequired("patientId", patientID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	var statuses []models.ConsentRequestStatus
	if !includeAll {
		statuses = []models.ConsentRequestStatus{models.ConsentRequested, models.ConsentGranted}
	}

	requests, err := s.requestStore.ListByPatient(ctx, patientID, statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to list consent requests: %w", err)
	}

	ids := make([]string, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.ConsentRequestID)
	}
	artifacts, err := s.artifactStore.ListByConsentRequestIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list consent artifacts: %w", err)
	}

	byRequest := make(map[string][]models.ConsentArtifact, len(requests))
	for _, a := range artifacts {
		byRequest[a.ConsentRequestID] = append(byRequest[a.ConsentRequestID], a)
	}

	details := make([]models.ConsentRequestDetail, 0, len(requests))
	for _, r := range requests {
		list := byRequest[r.ConsentRequestID]
		if list == nil {
			list = []models.ConsentArtifact{}
		}
		details = append(details, models.ConsentRequestDetail{ConsentRequest: r, Artifacts: list})
	}
	return details, nil
}

// GetAuditTrail returns the audit entries of a consent request, oldest first
func (s *ConsentService) GetAuditTrail(ctx context.Context, consentRequestID string) ([]models.ConsentAuditLogEntry, error) {
	if err := utils.ValidateID("consent request ID", consentRequestID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	if _, err := s.requestStore.GetByID(ctx, consentRequestID); err != nil {
		return nil, notFoundOr(err, "consent request", consentRequestID, "get consent request")
	}

	entries, err := s.auditStore.ListByConsentRequestID(ctx, consentRequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	if entries == nil {
		entries = []models.ConsentAuditLogEntry{}
	}
	return entries, nil
}

// SweepResult counts the transitions made by one expiry sweep
type SweepResult struct {
	RequestsExpired  int `json:"requestsExpired"`
	ArtifactsExpired int `json:"artifactsExpired"`
	ConsentsExpired  int `json:"consentsExpired"`
}

// SweepExpired expires REQUESTED consent requests past their expiry and ACTIVE artifacts
// past theirs. A granted request whose last artifact expires becomes EXPIRED as well.
// Every update is conditional on the prior status, so concurrent sweeps from several
// instances only apply each transition once.
func (s *ConsentService) SweepExpired(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}
	now := s.clock.Now().UnixMilli()
	batch := s.config.SweepBatchSize
	if batch <= 0 {
		batch = 200
	}

	requests, err := s.requestStore.ListExpiredRequested(ctx, now, batch)
	if err != nil {
		return result, fmt.Errorf("failed to list expired consent requests: %w", err)
	}
	for _, r := range requests {
		expired, err := s.expireRequest(ctx, r.ConsentRequestID, models.ConsentRequested, now)
		if err != nil {
			return result, err
		}
		if expired {
			result.RequestsExpired++
		}
	}

	artifacts, err := s.artifactStore.ListExpiredActive(ctx, now, batch)
	if err != nil {
		return result, fmt.Errorf("failed to list expired artifacts: %w", err)
	}
	for _, a := range artifacts {
		artifactExpired, consentExpired, err := s.expireArtifact(ctx, &a, now)
		if err != nil {
			return result, err
		}
		if artifactExpired {
			result.ArtifactsExpired++
		}
		if consentExpired {
			result.ConsentsExpired++
		}
	}

	metrics.SweepExpirations.WithLabelValues("consent_request").Add(float64(result.RequestsExpired + result.ConsentsExpired))
	metrics.SweepExpirations.WithLabelValues("consent_artifact").Add(float64(result.ArtifactsExpired))

	if result.RequestsExpired+result.ArtifactsExpired+result.ConsentsExpired > 0 {
		s.logger.WithFields(logrus.Fields{
			"requests_expired":  result.RequestsExpired,
			"artifacts_expired": result.ArtifactsExpired,
			"consents_expired":  result.ConsentsExpired,
		}).Info("Expiry sweep completed")
	}
	return result, nil
}

func (s *ConsentService) expireRequest(ctx context.Context, consentRequestID string, from models.ConsentRequestStatus, now int64) (bool, error) {
	expired := false
	err := s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		ok, err := s.requestStore.UpdateStatusWithTx(ctx, tx, consentRequestID, from, models.ConsentExpired, now)
		if err != nil {
			return fmt.Errorf("failed to expire consent request: %w", err)
		}
		if !ok {
			return nil
		}
		count, err := s.artifactStore.ExpireActiveWithTx(ctx, tx, consentRequestID, now)
		if err != nil {
			return fmt.Errorf("failed to expire artifacts: %w", err)
		}
		audit := newAudit(consentRequestID, nil, models.AuditConsentExpired, models.SystemActor, string(from), string(models.ConsentExpired), map[string]interface{}{
			"expiredArtifacts": count,
		}, now)
		if err := s.auditStore.CreateWithTx(ctx, tx, audit); err != nil {
			return fmt.Errorf("failed to create audit record: %w", err)
		}
		expired = true
		return nil
	})
	if err == nil && expired {
		metrics.ConsentTransitions.WithLabelValues(string(from), string(models.ConsentExpired)).Inc()
	}
	return expired, err
}

func (s *ConsentService) expireArtifact(ctx context.Context, artifact *models.ConsentArtifact, now int64) (bool, bool, error) {
	artifactExpired, consentExpired := false, false
	err := s.db.WithTransaction(ctx, func(tx *database.Transaction) error {
		ok, err := s.artifactStore.UpdateStatusWithTx(ctx, tx, artifact.ArtifactID, models.ArtifactActive, models.ArtifactExpired, now)
		if err != nil {
			return fmt.Errorf("failed to expire artifact: %w", err)
		}
		if !ok {
			return nil
		}
		artifactID := artifact.ArtifactID
		audit := newAudit(artifact.ConsentRequestID, &artifactID, models.AuditArtifactExpired, models.SystemActor, string(models.ArtifactActive), string(models.ArtifactExpired), nil, now)
		if err := s.auditStore.CreateWithTx(ctx, tx, audit); err != nil {
			return fmt.Errorf("failed to create audit record: %w", err)
		}
		artifactExpired = true

		remaining, err := s.artifactStore.CountActiveWithTx(ctx, tx, artifact.ConsentRequestID, now)
		if err != nil {
			return fmt.Errorf("failed to count active artifacts: %w", err)
		}
		if remaining > 0 {
			return nil
		}

		ok, err = s.requestStore.UpdateStatusWithTx(ctx, tx, artifact.ConsentRequestID, models.ConsentGranted, models.ConsentExpired, now)
		if err != nil {
			return fmt.Errorf("failed to expire consent request: %w", err)
		}
		if !ok {
			return nil
		}
		count, err := s.artifactStore.ExpireActiveWithTx(ctx, tx, artifact.ConsentRequestID, now)
		if err != nil {
			return fmt.Errorf("failed to expire artifacts: %w", err)
		}
		audit = newAudit(artifact.ConsentRequestID, nil, models.AuditConsentExpired, models.SystemActor, string(models.ConsentGranted), string(models.ConsentExpired), map[string]interface{}{
			"expiredArtifacts": count + 1,
		}, now)
		if err := s.auditStore.CreateWithTx(ctx, tx, audit); err != nil {
			return fmt.Errorf("failed to create audit record: %w", err)
		}
		consentExpired = true
		return nil
	})
	if err == nil && consentExpired {
		metrics.ConsentTransitions.WithLabelValues(string(models.ConsentGranted), string(models.ConsentExpired)).Inc()
	}
	return artifactExpired, consentExpired, err
}

// validateCreateRequest validates a create request and returns its normalized HI types
func (s *ConsentService) validateCreateRequest(request *models.ConsentRequestCreateRequest, now time.Time) ([]string, error) {
	if request == nil {
		return nil, validationErrorf("request body is required")
	}
	if err := utils.ValidateID("patientId", request.PatientID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if err := utils.ValidateID("doctorId", request.DoctorID); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if err := utils.ValidateRequired("purposeCode", request.PurposeCode); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if err := utils.ValidateMaxLength("purposeText", request.PurposeText, maxPurposeTextLength); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	hiTypes := cleanList(request.HITypes)
	if len(hiTypes) == 0 {
		return nil, validationErrorf("hiTypes must contain at least one health information type")
	}
	for _, t := range hiTypes {
		if !models.IsRecognizedHIType(t) {
			return nil, validationErrorf("unrecognized health information type: %s", t)
		}
	}

	if err := utils.ValidateDateRange(request.DateRange.From, request.DateRange.To); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	if request.ExpiryTime != 0 && request.ExpiryTime <= now.UnixMilli() {
		return nil, validationErrorf("expiryTime must be in the future")
	}

	return hiTypes, nil
}

func newAudit(consentRequestID string, artifactID *string, action string, actor models.Actor, previous, next string, details interface{}, now int64) *models.ConsentAuditLogEntry {
	entry := &models.ConsentAuditLogEntry{
		AuditID:        utils.GenerateAuditID(),
		ArtifactID:     artifactID,
		Action:         action,
		ActorID:        actor.ID,
		ActorType:      actor.Type,
		PreviousStatus: optionalString(previous),
		NewStatus:      optionalString(next),
		IPAddress:      optionalString(actor.IPAddress),
		UserAgent:      optionalString(actor.UserAgent),
		CreatedTime:    now,
	}
	if consentRequestID != "" {
		id := consentRequestID
		entry.ConsentRequestID = &id
	}
	if details != nil {
		entry.Details = models.MustJSON(details)
	}
	return entry
}

// artifactExpiry is the grant's expiry, else the permission's erase time, else the
// consent request's own expiry
func artifactExpiry(grant models.ArtifactGrant, fallback int64) int64 {
	if t := parseNetworkTime(grant.ExpiresAt, 0); t > 0 {
		return t
	}
	if t := parseNetworkTime(grant.Permission.DataEraseAt, 0); t > 0 {
		return t
	}
	return fallback
}

func parseNetworkTime(value string, fallback int64) int64 {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	if millis, err := utils.ParseTimeParam(strings.TrimSpace(value)); err == nil {
		return millis
	}
	// The network sends local date-times without an offset
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", strings.TrimSpace(value)); err == nil {
		return t.UnixMilli()
	}
	return fallback
}

func cleanList(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := []string{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
