package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/wso2/abdm-integration-api/internal/models"
)

// MockIndexer is a mock implementation of Indexer
type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) Index(ctx context.Context, records []*models.HealthRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

// MockConsentDecisionHandler is a mock implementation of ConsentDecisionHandler
type MockConsentDecisionHandler struct {
	mock.Mock
}

func (m *MockConsentDecisionHandler) HandleConsentDecision(ctx context.Context, callback *models.ConsentCallback) error {
	args := m.Called(ctx, callback)
	return args.Error(0)
}

// MockHealthInfoHandler is a mock implementation of HealthInfoHandler
type MockHealthInfoHandler struct {
	mock.Mock
}

func (m *MockHealthInfoHandler) HandleHealthInfoCallback(ctx context.Context, callback *models.HealthInfoCallback) error {
	args := m.Called(ctx, callback)
	return args.Error(0)
}

// MockEnqueuer is a mock implementation of Enqueuer
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(entry *models.CallbackInboxEntry) bool {
	args := m.Called(entry)
	return args.Bool(0)
}
