package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"github.com/wso2/abdm-integration-api/internal/config"
	"github.com/wso2/abdm-integration-api/internal/dao"
	"github.com/wso2/abdm-integration-api/internal/metrics"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

// claimLease is how long a PROCESSING inbox row is owned before recovery may reclaim it
const claimLease = 5 * time.Minute

// ConsentDecisionHandler applies consent notifications
type ConsentDecisionHandler interface {
	HandleConsentDecision(ctx context.Context, callback *models.ConsentCallback) error
}

// HealthInfoHandler applies health information deliveries
type HealthInfoHandler interface {
	HandleHealthInfoCallback(ctx context.Context, callback *models.HealthInfoCallback) error
}

// Enqueuer hands accepted callbacks to the dispatcher
type Enqueuer interface {
	Enqueue(entry *models.CallbackInboxEntry) bool
}

// CallbackReceiver is the accept boundary for network callbacks. Bodies are persisted
// to the inbox before they are acknowledged.
type CallbackReceiver struct {
	inboxStore CallbackInboxStore
	dispatcher Enqueuer
	seen       *expirable.LRU[string, string]
	clock      utils.Clock
	logger     *logrus.Logger
}

// NewCallbackReceiver creates a new callback receiver
func NewCallbackReceiver(inboxStore CallbackInboxStore, dispatcher Enqueuer, cfg *config.CallbackConfig, clock utils.Clock, logger *logrus.Logger) *CallbackReceiver {
	size := cfg.DedupeCacheSize
	if size <= 0 {
		size = 10000
	}
	return &CallbackReceiver{
		inboxStore: inboxStore,
		dispatcher: dispatcher,
		seen:       expirable.NewLRU[string, string](size, nil, cfg.DedupeTTL),
		clock:      clock,
		logger:     logger,
	}
}

// Accept persists a callback body and queues it for processing. Only a body that is not
// JSON is rejected; everything else is acknowledged and problems surface in processing.
func (r *CallbackReceiver) Accept(ctx context.Context, kind models.CallbackKind, body []byte) (*models.CallbackAck, error) {
	if !json.Valid(body) {
		metrics.Callbacks.WithLabelValues(string(kind), "rejected").Inc()
		return nil, validationErrorf("callback body is not valid JSON")
	}

	requestID, externalID := callbackIdentity(kind, body)
	logger := r.logger.WithFields(logrus.Fields{
		"kind":                kind,
		"callback_request_id": requestID,
		"external_request_id": externalID,
	})

	var dedupeKey string
	if requestID != "" {
		dedupeKey = string(kind) + ":" + requestID
		if callbackID, ok := r.seen.Get(dedupeKey); ok {
			metrics.Callbacks.WithLabelValues(string(kind), "duplicate").Inc()
			logger.Debug("Duplicate callback acknowledged")
			return &models.CallbackAck{Status: "ACCEPTED", CallbackID: callbackID, Duplicate: true}, nil
		}
	}

	now := r.clock.Now().UnixMilli()
	entry := &models.CallbackInboxEntry{
		CallbackID:        utils.GenerateCallbackID(),
		Kind:              kind,
		CallbackRequestID: optionalString(requestID),
		ExternalRequestID: externalID,
		Payload:           models.JSON(append([]byte(nil), body...)),
		Status:            models.CallbackPending,
		ReceivedTime:      now,
		UpdatedTime:       now,
	}

	if err := r.inboxStore.Create(ctx, entry); err != nil {
		if errors.Is(err, dao.ErrDuplicate) {
			metrics.Callbacks.WithLabelValues(string(kind), "duplicate").Inc()
			logger.Debug("Duplicate callback acknowledged")
			return &models.CallbackAck{Status: "ACCEPTED", Duplicate: true}, nil
		}
		metrics.Callbacks.WithLabelValues(string(kind), "error").Inc()
		return nil, fmt.Errorf("failed to store callback: %w", err)
	}

	if dedupeKey != "" {
		r.seen.Add(dedupeKey, entry.CallbackID)
	}

	if !r.dispatcher.Enqueue(entry) {
		logger.Warn("Callback queue full, left for recovery")
	}

	metrics.Callbacks.WithLabelValues(string(kind), "accepted").Inc()
	logger.WithField("callback_id", entry.CallbackID).Info("Callback accepted")
	return &models.CallbackAck{Status: "ACCEPTED", CallbackID: entry.CallbackID}, nil
}

// callbackIdentity extracts the callback request id and the external request id.
// A body of the wrong shape yields empty ids.
func callbackIdentity(kind models.CallbackKind, body []byte) (string, string) {
	switch kind {
	case models.CallbackKindConsent:
		var cb models.ConsentCallback
		if err := json.Unmarshal(body, &cb); err != nil {
			return "", ""
		}
		return strings.TrimSpace(cb.RequestID), strings.TrimSpace(cb.Notification.ConsentRequestID)
	case models.CallbackKindHealthInfo:
		var cb models.HealthInfoCallback
		if err := json.Unmarshal(body, &cb); err != nil {
			return "", ""
		}
		return strings.TrimSpace(cb.RequestID), strings.TrimSpace(cb.TransactionID)
	}
	return "", ""
}

// CallbackDispatcher processes inbox entries on a fixed set of shard workers. Entries
// with the same external request id always land on the same shard, so they are
// processed one at a time in arrival order.
type CallbackDispatcher struct {
	inboxStore CallbackInboxStore
	consents   ConsentDecisionHandler
	healthInfo HealthInfoHandler
	shards     []chan *models.CallbackInboxEntry
	config     *config.CallbackConfig
	clock      utils.Clock
	logger     *logrus.Logger
}

// NewCallbackDispatcher creates a dispatcher with one queue per worker
func NewCallbackDispatcher(inboxStore CallbackInboxStore, consents ConsentDecisionHandler, healthInfo HealthInfoHandler, cfg *config.CallbackConfig, clock utils.Clock, logger *logrus.Logger) *CallbackDispatcher {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}

	shards := make([]chan *models.CallbackInboxEntry, workers)
	for i := range shards {
		shards[i] = make(chan *models.CallbackInboxEntry, queueSize)
	}

	return &CallbackDispatcher{
		inboxStore: inboxStore,
		consents:   consents,
		healthInfo: healthInfo,
		shards:     shards,
		config:     cfg,
		clock:      clock,
		logger:     logger,
	}
}

// Enqueue queues an entry on its shard without blocking. It reports false when the shard
// is full; the entry stays PENDING and the recovery loop picks it up.
func (d *CallbackDispatcher) Enqueue(entry *models.CallbackInboxEntry) bool {
	select {
	case d.shards[d.shardFor(entry.ExternalRequestID)] <- entry:
		return true
	default:
		return false
	}
}

func (d *CallbackDispatcher) shardFor(externalID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(externalID))
	return int(h.Sum32() % uint32(len(d.shards)))
}

// Run starts the shard workers and the recovery loop and blocks until ctx is done
func (d *CallbackDispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, queue := range d.shards {
		wg.Add(1)
		go func(queue <-chan *models.CallbackInboxEntry) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case entry := <-queue:
					d.Process(ctx, entry)
				}
			}
		}(queue)
	}

	d.logger.WithField("workers", len(d.shards)).Info("Callback dispatcher started")

	// Everything left PENDING by a previous process is picked up at start
	if _, err := d.recoverBefore(ctx, d.clock.Now()); err != nil {
		d.logger.WithError(err).Error("Callback recovery failed")
	}

	interval := d.config.RecoveryInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.logger.Info("Callback dispatcher stopped")
			return nil
		case <-ticker.C:
			if _, err := d.Recover(ctx); err != nil {
				d.logger.WithError(err).Error("Callback recovery failed")
			}
		}
	}
}

// Recover re-enqueues PENDING entries older than the recovery interval and PROCESSING
// entries whose claim has lapsed
func (d *CallbackDispatcher) Recover(ctx context.Context) (int, error) {
	interval := d.config.RecoveryInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return d.recoverBefore(ctx, d.clock.Now().Add(-interval))
}

func (d *CallbackDispatcher) recoverBefore(ctx context.Context, pendingBefore time.Time) (int, error) {
	limit := d.config.QueueSize
	if limit < 1 {
		limit = 100
	}

	staleBefore := d.clock.Now().Add(-claimLease)
	entries, err := d.inboxStore.ListRecoverable(ctx, pendingBefore.UnixMilli(), staleBefore.UnixMilli(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list recoverable callbacks: %w", err)
	}

	queued := 0
	for i := range entries {
		if d.Enqueue(&entries[i]) {
			queued++
		}
	}
	if queued > 0 {
		d.logger.WithField("count", queued).Info("Recovered pending callbacks")
	}
	return queued, nil
}

// Process claims an entry and hands it to its orchestrator. It returns the status the
// entry was left in, or the entry's current status when another worker owns it.
func (d *CallbackDispatcher) Process(ctx context.Context, entry *models.CallbackInboxEntry) models.CallbackStatus {
	logger := d.logger.WithFields(logrus.Fields{
		"callback_id":         entry.CallbackID,
		"kind":                entry.Kind,
		"external_request_id": entry.ExternalRequestID,
	})

	now := d.clock.Now()
	claimed, err := d.inboxStore.Claim(ctx, entry.CallbackID, now.UnixMilli(), now.Add(-claimLease).UnixMilli())
	if err != nil {
		logger.WithError(err).Error("Failed to claim callback")
		return entry.Status
	}
	if !claimed {
		return entry.Status
	}
	attempts := entry.Attempts + 1

	err = d.handle(ctx, entry)
	doneAt := d.clock.Now().UnixMilli()

	var status models.CallbackStatus
	var markErr error
	switch {
	case err == nil:
		status = models.CallbackProcessed
		markErr = d.inboxStore.MarkProcessed(ctx, entry.CallbackID, nil, doneAt)
	case IsValidationError(err) || IsInvalidStateError(err):
		status = models.CallbackFailed
		markErr = d.inboxStore.MarkFailed(ctx, entry.CallbackID, err.Error(), doneAt)
		logger.WithError(err).Warn("Callback rejected")
	case attempts >= d.maxAttempts():
		status = models.CallbackFailed
		markErr = d.inboxStore.MarkFailed(ctx, entry.CallbackID, err.Error(), doneAt)
		logger.WithError(err).WithField("attempts", attempts).Error("Callback failed after retries")
	default:
		// A decision can arrive before the external id of its request is recorded,
		// so NotFound is retried like a transient error
		status = models.CallbackPending
		markErr = d.inboxStore.MarkRetry(ctx, entry.CallbackID, err.Error(), doneAt)
		logger.WithError(err).WithField("attempts", attempts).Warn("Callback processing failed, will retry")
	}
	if markErr != nil {
		logger.WithError(markErr).Error("Failed to update callback status")
	}

	metrics.Callbacks.WithLabelValues(string(entry.Kind), strings.ToLower(string(status))).Inc()
	return status
}

func (d *CallbackDispatcher) maxAttempts() int {
	if d.config.MaxAttempts < 1 {
		return 1
	}
	return d.config.MaxAttempts
}

func (d *CallbackDispatcher) handle(ctx context.Context, entry *models.CallbackInboxEntry) error {
	switch entry.Kind {
	case models.CallbackKindConsent:
		var cb models.ConsentCallback
		if err := json.Unmarshal(entry.Payload, &cb); err != nil {
			return validationErrorf("malformed consent notification: %v", err)
		}
		return d.consents.HandleConsentDecision(ctx, &cb)
	case models.CallbackKindHealthInfo:
		var cb models.HealthInfoCallback
		if err := json.Unmarshal(entry.Payload, &cb); err != nil {
			return validationErrorf("malformed health information delivery: %v", err)
		}
		return d.healthInfo.HandleHealthInfoCallback(ctx, &cb)
	}
	return validationErrorf("unknown callback kind: %s", entry.Kind)
}
