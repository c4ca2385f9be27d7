package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/internal/service"
)

type mockConsentService struct {
	mock.Mock
}

func (m *mockConsentService) CreateConsentRequest(ctx context.Context, request *models.ConsentRequestCreateRequest, actor models.Actor) (*models.ConsentRequest, error) {
	args := m.Called(ctx, request, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsentRequest), args.Error(1)
}

func (m *mockConsentService) ResubmitConsentRequest(ctx context.Context, consentRequestID string, actor models.Actor) (*models.ConsentRequest, error) {
	args := m.Called(ctx, consentRequestID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsentRequest), args.Error(1)
}

func (m *mockConsentService) GetConsentRequest(ctx context.Context, consentRequestID string) (*models.ConsentRequestDetail, error) {
	args := m.Called(ctx, consentRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsentRequestDetail), args.Error(1)
}

func (m *mockConsentService) ListActiveConsents(ctx context.Context, patientID string, includeAll bool) ([]models.ConsentRequestDetail, error) {
	args := m.Called(ctx, patientID, includeAll)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConsentRequestDetail), args.Error(1)
}

func (m *mockConsentService) RevokeConsent(ctx context.Context, consentRequestID, reason string, actor models.Actor) (*models.ConsentRequest, error) {
	args := m.Called(ctx, consentRequestID, reason, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConsentRequest), args.Error(1)
}

func (m *mockConsentService) GetAuditTrail(ctx context.Context, consentRequestID string) ([]models.ConsentAuditLogEntry, error) {
	args := m.Called(ctx, consentRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ConsentAuditLogEntry), args.Error(1)
}

type mockFetchService struct {
	mock.Mock
}

func (m *mockFetchService) FetchHealthRecords(ctx context.Context, request *models.FetchHealthRecordsRequest, actor models.Actor) (*models.HealthRecordFetchRequest, error) {
	args := m.Called(ctx, request, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HealthRecordFetchRequest), args.Error(1)
}

func (m *mockFetchService) GetFetchStatus(ctx context.Context, fetchRequestID string) (*models.FetchStatusView, error) {
	args := m.Called(ctx, fetchRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FetchStatusView), args.Error(1)
}

func (m *mockFetchService) GetProcessingLog(ctx context.Context, fetchRequestID string) ([]models.HealthRecordProcessingLogEntry, error) {
	args := m.Called(ctx, fetchRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HealthRecordProcessingLogEntry), args.Error(1)
}

func (m *mockFetchService) CancelFetchRequest(ctx context.Context, fetchRequestID, reason string, actor models.Actor) (*models.HealthRecordFetchRequest, error) {
	args := m.Called(ctx, fetchRequestID, reason, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HealthRecordFetchRequest), args.Error(1)
}

type mockRecordService struct {
	mock.Mock
}

func (m *mockRecordService) SearchRecords(ctx context.Context, params service.HealthRecordSearchParams) ([]models.HealthRecordSummary, int, models.HealthRecordFilter, error) {
	args := m.Called(ctx, params)
	records, _ := args.Get(0).([]models.HealthRecordSummary)
	return records, args.Int(1), args.Get(2).(models.HealthRecordFilter), args.Error(3)
}

func (m *mockRecordService) GetRecord(ctx context.Context, recordID string, actor models.Actor) (*models.HealthRecordDetail, error) {
	args := m.Called(ctx, recordID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HealthRecordDetail), args.Error(1)
}

func (m *mockRecordService) ArchiveRecord(ctx context.Context, recordID string, actor models.Actor) (*models.HealthRecord, error) {
	args := m.Called(ctx, recordID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HealthRecord), args.Error(1)
}

func (m *mockRecordService) DeleteRecord(ctx context.Context, recordID string, actor models.Actor) (*models.HealthRecord, error) {
	args := m.Called(ctx, recordID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HealthRecord), args.Error(1)
}

func (m *mockRecordService) GetAccessLog(ctx context.Context, recordID string) ([]models.HealthRecordAccessLog, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.HealthRecordAccessLog), args.Error(1)
}

type mockReceiver struct {
	mock.Mock
}

func (m *mockReceiver) Accept(ctx context.Context, kind models.CallbackKind, body []byte) (*models.CallbackAck, error) {
	args := m.Called(ctx, kind, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CallbackAck), args.Error(1)
}
