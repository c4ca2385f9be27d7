package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wso2/abdm-integration-api/internal/dao"
	"github.com/wso2/abdm-integration-api/internal/database"
	"github.com/wso2/abdm-integration-api/internal/models"
)

// In-memory stores with the same conditional-update semantics as the DAOs.

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memTx runs one transaction at a time, standing in for the row lock taken by
// GetByIDForUpdate.
type memTx struct {
	mu        sync.Mutex
	committed int
}

func (m *memTx) WithTransaction(_ context.Context, fn func(tx *database.Transaction) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := fn(nil); err != nil {
		return err
	}
	m.committed++
	return nil
}

func (m *memTx) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, dao.ErrNotFound)
}

type memConsentRequests struct {
	mu   sync.Mutex
	rows map[string]*models.ConsentRequest
}

func newMemConsentRequests() *memConsentRequests {
	return &memConsentRequests{rows: map[string]*models.ConsentRequest{}}
}

func (m *memConsentRequests) put(req models.ConsentRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[req.ConsentRequestID] = &req
}

func (m *memConsentRequests) CreateWithTx(_ context.Context, _ *database.Transaction, req *models.ConsentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[req.ConsentRequestID]; ok {
		return dao.ErrDuplicate
	}
	copied := *req
	m.rows[req.ConsentRequestID] = &copied
	return nil
}

func (m *memConsentRequests) GetByID(_ context.Context, id string) (*models.ConsentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, notFound("consent request", id)
	}
	copied := *row
	return &copied, nil
}

func (m *memConsentRequests) GetByIDForUpdate(ctx context.Context, _ *database.Transaction, id string) (*models.ConsentRequest, error) {
	return m.GetByID(ctx, id)
}

func (m *memConsentRequests) GetByExternalRequestIDForUpdate(_ context.Context, _ *database.Transaction, externalID string) (*models.ConsentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ExternalRequestID != nil && *row.ExternalRequestID == externalID {
			copied := *row
			return &copied, nil
		}
	}
	return nil, notFound("consent request", externalID)
}

func (m *memConsentRequests) SetExternalRequestID(_ context.Context, id, externalID string, updated int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for otherID, row := range m.rows {
		if otherID != id && row.ExternalRequestID != nil && *row.ExternalRequestID == externalID {
			return dao.ErrDuplicate
		}
	}
	row, ok := m.rows[id]
	if !ok || row.ExternalRequestID != nil {
		return notFound("consent request", id)
	}
	ext := externalID
	row.ExternalRequestID = &ext
	row.UpdatedTime = updated
	return nil
}

func (m *memConsentRequests) UpdateStatusWithTx(_ context.Context, _ *database.Transaction, id string, from, to models.ConsentRequestStatus, updated int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != from {
		return false, nil
	}
	row.Status = to
	row.UpdatedTime = updated
	return true, nil
}

func (m *memConsentRequests) ListByPatient(_ context.Context, patientID string, statuses []models.ConsentRequestStatus) ([]models.ConsentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ConsentRequest{}
	for _, row := range m.rows {
		if row.PatientID != patientID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, row.Status) {
			continue
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTime > out[j].CreatedTime })
	return out, nil
}

func (m *memConsentRequests) ListExpiredRequested(_ context.Context, now int64, limit int) ([]models.ConsentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ConsentRequest{}
	for _, row := range m.rows {
		if row.Status == models.ConsentRequested && row.ExpiryTime <= now && len(out) < limit {
			out = append(out, *row)
		}
	}
	return out, nil
}

func containsStatus(statuses []models.ConsentRequestStatus, s models.ConsentRequestStatus) bool {
	for _, status := range statuses {
		if status == s {
			return true
		}
	}
	return false
}

type memArtifacts struct {
	mu   sync.Mutex
	rows []*models.ConsentArtifact
}

func (m *memArtifacts) put(a models.ConsentArtifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, &a)
}

func (m *memArtifacts) CreateWithTx(_ context.Context, _ *database.Transaction, artifact *models.ConsentArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ExternalArtifactID == artifact.ExternalArtifactID {
			return dao.ErrDuplicate
		}
	}
	copied := *artifact
	m.rows = append(m.rows, &copied)
	return nil
}

func (m *memArtifacts) GetByID(_ context.Context, id string) (*models.ConsentArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ArtifactID == id {
			copied := *row
			return &copied, nil
		}
	}
	return nil, notFound("consent artifact", id)
}

func (m *memArtifacts) ListByConsentRequestID(_ context.Context, consentRequestID string) ([]models.ConsentArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ConsentArtifact{}
	for _, row := range m.rows {
		if row.ConsentRequestID == consentRequestID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memArtifacts) ListByConsentRequestIDWithTx(ctx context.Context, _ *database.Transaction, consentRequestID string) ([]models.ConsentArtifact, error) {
	return m.ListByConsentRequestID(ctx, consentRequestID)
}

func (m *memArtifacts) ListByConsentRequestIDs(ctx context.Context, ids []string) ([]models.ConsentArtifact, error) {
	out := []models.ConsentArtifact{}
	for _, id := range ids {
		list, _ := m.ListByConsentRequestID(ctx, id)
		out = append(out, list...)
	}
	return out, nil
}

func (m *memArtifacts) UpdateStatusWithTx(_ context.Context, _ *database.Transaction, id string, from, to models.ArtifactStatus, updated int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ArtifactID == id && row.Status == from {
			row.Status = to
			row.UpdatedTime = updated
			return true, nil
		}
	}
	return false, nil
}

func (m *memArtifacts) RevokeActiveWithTx(_ context.Context, _ *database.Transaction, consentRequestID, reason string, revoked int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.ConsentRequestID == consentRequestID && row.Status == models.ArtifactActive {
			r, t := reason, revoked
			row.Status = models.ArtifactRevoked
			row.RevocationReason = &r
			row.RevokedTime = &t
			row.UpdatedTime = revoked
			n++
		}
	}
	return n, nil
}

func (m *memArtifacts) ExpireActiveWithTx(_ context.Context, _ *database.Transaction, consentRequestID string, updated int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.ConsentRequestID == consentRequestID && row.Status == models.ArtifactActive {
			row.Status = models.ArtifactExpired
			row.UpdatedTime = updated
			n++
		}
	}
	return n, nil
}

func (m *memArtifacts) CountActiveWithTx(_ context.Context, _ *database.Transaction, consentRequestID string, now int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.ConsentRequestID == consentRequestID && row.Status == models.ArtifactActive && row.ExpiryTime > now {
			n++
		}
	}
	return n, nil
}

func (m *memArtifacts) ListExpiredActive(_ context.Context, now int64, limit int) ([]models.ConsentArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ConsentArtifact{}
	for _, row := range m.rows {
		if row.Status == models.ArtifactActive && row.ExpiryTime <= now && len(out) < limit {
			out = append(out, *row)
		}
	}
	return out, nil
}

type memAudits struct {
	mu      sync.Mutex
	entries []models.ConsentAuditLogEntry
}

func (m *memAudits) CreateWithTx(_ context.Context, _ *database.Transaction, entry *models.ConsentAuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memAudits) ListByConsentRequestID(_ context.Context, consentRequestID string) ([]models.ConsentAuditLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ConsentAuditLogEntry{}
	for _, e := range m.entries {
		if e.ConsentRequestID != nil && *e.ConsentRequestID == consentRequestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAudits) actions(consentRequestID string) []string {
	entries, _ := m.ListByConsentRequestID(context.Background(), consentRequestID)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}

type memFetches struct {
	mu   sync.Mutex
	rows map[string]*models.HealthRecordFetchRequest
}

func newMemFetches() *memFetches {
	return &memFetches{rows: map[string]*models.HealthRecordFetchRequest{}}
}

func (m *memFetches) put(f models.HealthRecordFetchRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[f.FetchRequestID] = &f
}

func (m *memFetches) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memFetches) Create(_ context.Context, req *models.HealthRecordFetchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *req
	m.rows[req.FetchRequestID] = &copied
	return nil
}

func (m *memFetches) GetByID(_ context.Context, id string) (*models.HealthRecordFetchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, notFound("fetch request", id)
	}
	copied := *row
	return &copied, nil
}

func (m *memFetches) GetByExternalRequestID(_ context.Context, externalID string) (*models.HealthRecordFetchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ExternalRequestID != nil && *row.ExternalRequestID == externalID {
			copied := *row
			return &copied, nil
		}
	}
	return nil, notFound("fetch request", externalID)
}

func (m *memFetches) GetByIDForUpdate(ctx context.Context, _ *database.Transaction, id string) (*models.HealthRecordFetchRequest, error) {
	return m.GetByID(ctx, id)
}

func (m *memFetches) SetExternalRequestID(_ context.Context, id, externalID string, updated int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.ExternalRequestID != nil {
		return notFound("fetch request", id)
	}
	ext := externalID
	row.ExternalRequestID = &ext
	row.UpdatedTime = updated
	return nil
}

func (m *memFetches) SetErrorMessage(_ context.Context, id, message string, updated int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return notFound("fetch request", id)
	}
	msg := message
	row.ErrorMessage = &msg
	row.UpdatedTime = updated
	return nil
}

func (m *memFetches) UpdateProgressWithTx(_ context.Context, _ *database.Transaction, req *models.HealthRecordFetchRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[req.FetchRequestID]
	if !ok || row.Status != models.FetchProcessing {
		return notFound("fetch request", req.FetchRequestID)
	}
	copied := *req
	m.rows[req.FetchRequestID] = &copied
	return nil
}

func (m *memFetches) ListStalled(_ context.Context, before int64, limit int) ([]models.HealthRecordFetchRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.HealthRecordFetchRequest{}
	for _, row := range m.rows {
		if row.Status == models.FetchProcessing && row.UpdatedTime < before && len(out) < limit {
			out = append(out, *row)
		}
	}
	return out, nil
}

type memRecords struct {
	mu        sync.Mutex
	rows      []*models.HealthRecord
	createErr error
	indexed   []string
}

func (m *memRecords) Create(_ context.Context, record *models.HealthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, row := range m.rows {
		if row.ExternalRecordID != nil && record.ExternalRecordID != nil &&
			*row.ExternalRecordID == *record.ExternalRecordID && row.ResourceID == record.ResourceID {
			return dao.ErrDuplicate
		}
	}
	copied := *record
	m.rows = append(m.rows, &copied)
	return nil
}

func (m *memRecords) ExistsByExternalRecordID(_ context.Context, patientID, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.PatientID == patientID && row.ExternalRecordID != nil && *row.ExternalRecordID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRecords) GetByID(_ context.Context, id string) (*models.HealthRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.RecordID == id {
			copied := *row
			return &copied, nil
		}
	}
	return nil, notFound("health record", id)
}

func (m *memRecords) Search(_ context.Context, filter models.HealthRecordFilter) ([]models.HealthRecordSummary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.HealthRecordSummary
	for _, row := range m.rows {
		if row.PatientID != filter.PatientID || row.Status != models.RecordActive {
			continue
		}
		if filter.RecordType != "" && row.RecordType != filter.RecordType {
			continue
		}
		if filter.From > 0 && row.RecordDate < filter.From {
			continue
		}
		if filter.To > 0 && row.RecordDate > filter.To {
			continue
		}
		matched = append(matched, models.HealthRecordSummary{
			RecordID:     row.RecordID,
			PatientID:    row.PatientID,
			ResourceType: row.ResourceType,
			RecordType:   row.RecordType,
			RecordDate:   row.RecordDate,
			ProviderName: row.ProviderName,
			Source:       row.Source,
			Status:       row.Status,
			CreatedTime:  row.CreatedTime,
		})
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].RecordDate > matched[j].RecordDate })
	total := len(matched)
	start := filter.Offset
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *memRecords) UpdateStatus(_ context.Context, id string, from, to models.RecordStatus, updated int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.RecordID == id && row.Status == from {
			row.Status = to
			row.UpdatedTime = updated
			return true, nil
		}
	}
	return false, nil
}

func (m *memRecords) MarkIndexed(_ context.Context, ids []string, indexed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed = append(m.indexed, ids...)
	for _, row := range m.rows {
		for _, id := range ids {
			if row.RecordID == id {
				t := indexed
				row.IndexedTime = &t
			}
		}
	}
	return nil
}

func (m *memRecords) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memLogs struct {
	mu      sync.Mutex
	entries []models.HealthRecordProcessingLogEntry
}

func (m *memLogs) Create(_ context.Context, entry *models.HealthRecordProcessingLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memLogs) ListByFetchRequestID(_ context.Context, fetchRequestID string) ([]models.HealthRecordProcessingLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.HealthRecordProcessingLogEntry{}
	for _, e := range m.entries {
		if e.FetchRequestID == fetchRequestID {
			out = append(out, e)
		}
	}
	return out, nil
}

// count returns the number of entries with the given stage and outcome
func (m *memLogs) count(stage models.ProcessingStage, outcome models.ProcessingOutcome) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Stage == stage && e.Outcome == outcome {
			n++
		}
	}
	return n
}

type memAccess struct {
	mu        sync.Mutex
	entries   []models.HealthRecordAccessLog
	createErr error
}

func (m *memAccess) Create(_ context.Context, entry *models.HealthRecordAccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memAccess) ListByRecordID(_ context.Context, recordID string) ([]models.HealthRecordAccessLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.HealthRecordAccessLog{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].RecordID == recordID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

type memInbox struct {
	mu   sync.Mutex
	rows map[string]*models.CallbackInboxEntry
}

func newMemInbox() *memInbox {
	return &memInbox{rows: map[string]*models.CallbackInboxEntry{}}
}

func (m *memInbox) Create(_ context.Context, entry *models.CallbackInboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CallbackRequestID != nil {
		for _, row := range m.rows {
			if row.CallbackRequestID != nil && *row.CallbackRequestID == *entry.CallbackRequestID {
				return dao.ErrDuplicate
			}
		}
	}
	copied := *entry
	m.rows[entry.CallbackID] = &copied
	return nil
}

func (m *memInbox) GetByID(_ context.Context, id string) (*models.CallbackInboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, notFound("callback", id)
	}
	copied := *row
	return &copied, nil
}

func (m *memInbox) Claim(_ context.Context, id string, now, staleBefore int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	if row.Status == models.CallbackPending || (row.Status == models.CallbackProcessing && row.UpdatedTime < staleBefore) {
		row.Status = models.CallbackProcessing
		row.Attempts++
		row.UpdatedTime = now
		return true, nil
	}
	return false, nil
}

func (m *memInbox) mark(id string, status models.CallbackStatus, lastError *string, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return notFound("callback", id)
	}
	row.Status = status
	row.LastError = lastError
	row.UpdatedTime = now
	if status == models.CallbackProcessed || status == models.CallbackFailed {
		t := now
		row.ProcessedTime = &t
	}
	return nil
}

func (m *memInbox) MarkProcessed(_ context.Context, id string, note *string, now int64) error {
	return m.mark(id, models.CallbackProcessed, note, now)
}

func (m *memInbox) MarkRetry(_ context.Context, id, lastError string, now int64) error {
	return m.mark(id, models.CallbackPending, &lastError, now)
}

func (m *memInbox) MarkFailed(_ context.Context, id, lastError string, now int64) error {
	return m.mark(id, models.CallbackFailed, &lastError, now)
}

func (m *memInbox) ListRecoverable(_ context.Context, pendingBefore, staleBefore int64, limit int) ([]models.CallbackInboxEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.CallbackInboxEntry{}
	for _, row := range m.rows {
		if len(out) >= limit {
			break
		}
		if (row.Status == models.CallbackPending && row.UpdatedTime < pendingBefore) ||
			(row.Status == models.CallbackProcessing && row.UpdatedTime < staleBefore) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedTime < out[j].ReceivedTime })
	return out, nil
}
