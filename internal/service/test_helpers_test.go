package service

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wso2/abdm-integration-api/internal/config"
	"github.com/wso2/abdm-integration-api/internal/crypto"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/internal/service/mocks"
)

const (
	testCallbackURL        = "https://hiu.example.org/callbacks/health-information"
	testConsentCallbackURL = "https://hiu.example.org/callbacks/consent"
)

// testEnv wires every service over in-memory stores and a mock gateway
type testEnv struct {
	clock     *testClock
	logger    *logrus.Logger
	requests  *memConsentRequests
	artifacts *memArtifacts
	audits    *memAudits
	fetches   *memFetches
	records   *memRecords
	logs      *memLogs
	access    *memAccess
	inbox     *memInbox
	tx        *memTx
	gateway   *mocks.MockGateway

	consents      *ConsentService
	fetch         *FetchService
	pipeline      *Pipeline
	healthRecords *HealthRecordService
}

func newTestEnv() *testEnv {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		clock:     newTestClock(),
		logger:    logger,
		requests:  newMemConsentRequests(),
		artifacts: &memArtifacts{},
		audits:    &memAudits{},
		fetches:   newMemFetches(),
		records:   &memRecords{},
		logs:      &memLogs{},
		access:    &memAccess{},
		inbox:     newMemInbox(),
		tx:        &memTx{},
		gateway:   &mocks.MockGateway{},
	}

	env.pipeline = NewPipeline(env.records, env.logs, crypto.PlaintextDecrypter{}, NewRecordIndexer(env.records, env.clock), env.clock, logger)
	env.consents = NewConsentService(env.requests, env.artifacts, env.audits, env.tx, env.gateway, env.clock,
		&config.ConsentConfig{DefaultExpiry: 30 * 24 * time.Hour, SweepBatchSize: 100}, testConsentCallbackURL, logger)
	env.fetch = NewFetchService(env.fetches, env.artifacts, env.requests, env.audits, env.logs, env.tx, env.gateway, env.pipeline, env.clock,
		&config.FetchConfig{StallTimeout: time.Hour}, testCallbackURL, logger)
	env.healthRecords = NewHealthRecordService(env.records, env.access, env.clock, logger)
	return env
}

func (e *testEnv) nowMillis() int64 {
	return e.clock.Now().UnixMilli()
}

var doctor = models.Actor{ID: "doc-1", Type: models.ActorTypeDoctor, IPAddress: "10.0.0.1", UserAgent: "test"}

func validCreateRequest(now time.Time) *models.ConsentRequestCreateRequest {
	return &models.ConsentRequestCreateRequest{
		PatientID:   "patient@sbx",
		DoctorID:    "doc-1",
		PurposeCode: "CAREMGT",
		PurposeText: "Care Management",
		HITypes:     []string{models.HITypePrescription},
		DateRange: models.DateRange{
			From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
			To:   time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC).UnixMilli(),
		},
		ExpiryTime: now.AddDate(1, 0, 0).UnixMilli(),
	}
}

// grantedConsent stores a GRANTED consent request with one ACTIVE artifact
func (e *testEnv) grantedConsent() (models.ConsentRequest, models.ConsentArtifact) {
	now := e.nowMillis()
	ext := "ext-cr-1"
	req := models.ConsentRequest{
		ConsentRequestID:  "cr-1",
		PatientID:         "patient@sbx",
		DoctorID:          "doc-1",
		ExternalRequestID: &ext,
		PurposeCode:       "CAREMGT",
		HITypes:           models.StringList{models.HITypePrescription, models.HITypeDiagnosticReport},
		DateRangeFrom:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		DateRangeTo:       time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC).UnixMilli(),
		ExpiryTime:        e.clock.Now().AddDate(1, 0, 0).UnixMilli(),
		Status:            models.ConsentGranted,
		CreatedTime:       now,
		UpdatedTime:       now,
	}
	artifact := models.ConsentArtifact{
		ArtifactID:         "ca-1",
		ConsentRequestID:   req.ConsentRequestID,
		ExternalArtifactID: "ext-ca-1",
		Status:             models.ArtifactActive,
		GrantedTime:        now,
		ExpiryTime:         e.clock.Now().AddDate(0, 6, 0).UnixMilli(),
		CreatedTime:        now,
		UpdatedTime:        now,
	}
	e.requests.put(req)
	e.artifacts.put(artifact)
	return req, artifact
}

// processingFetch stores a PROCESSING fetch request bound to externalID
func (e *testEnv) processingFetch(externalID string) models.HealthRecordFetchRequest {
	now := e.nowMillis()
	ext := externalID
	fetch := models.HealthRecordFetchRequest{
		FetchRequestID:    "fr-1",
		ArtifactID:        "ca-1",
		ConsentRequestID:  "cr-1",
		PatientID:         "patient@sbx",
		DoctorID:          "doc-1",
		ExternalRequestID: &ext,
		HITypes:           models.StringList{models.HITypePrescription},
		Status:            models.FetchProcessing,
		CallbackURL:       testCallbackURL,
		RequestedBy:       "doc-1",
		CreatedTime:       now,
		UpdatedTime:       now,
	}
	e.fetches.put(fetch)
	return fetch
}

// bundleJSON is a prescription bundle for patientID with one medication request
func bundleJSON(patientID, medicationID string) string {
	return fmt.Sprintf(`{
  "resourceType": "Bundle",
  "id": "bundle-%[2]s",
  "type": "document",
  "entry": [
    {"fullUrl": "Composition/comp-%[2]s", "resource": {
      "resourceType": "Composition", "id": "comp-%[2]s", "status": "final",
      "type": {"coding": [{"system": "http://snomed.info/sct", "code": "440545006", "display": "Prescription record"}]},
      "subject": {"reference": "Patient/pat-1"}, "date": "2024-03-01T09:30:00+05:30", "title": "Prescription"}},
    {"fullUrl": "Patient/pat-1", "resource": {
      "resourceType": "Patient", "id": "pat-1", "identifier": [{"value": "%[1]s"}]}},
    {"fullUrl": "MedicationRequest/%[2]s", "resource": {
      "resourceType": "MedicationRequest", "id": "%[2]s", "status": "active",
      "subject": {"reference": "Patient/pat-1"}, "authoredOn": "2024-03-01"}}
  ]
}`, patientID, medicationID)
}

func entry(recordID, content string) models.HealthInfoEntry {
	return models.HealthInfoEntry{RecordID: recordID, Content: content, Media: "application/fhir+json"}
}

func intPtr(i int) *int {
	return &i
}
