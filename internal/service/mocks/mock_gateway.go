package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/wso2/abdm-integration-api/internal/models"
)

// MockGateway is a mock implementation of the gateway client
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) RequestConsent(ctx context.Context, req *models.ConsentRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) RevokeConsent(ctx context.Context, req *models.ConsentRequest, artifactIDs []string, reason string) error {
	args := m.Called(ctx, req, artifactIDs, reason)
	return args.Error(0)
}

func (m *MockGateway) RequestHealthInformation(ctx context.Context, fetch *models.HealthRecordFetchRequest, artifactExternalID string, keyMaterial models.KeyMaterial) (string, error) {
	args := m.Called(ctx, fetch, artifactExternalID, keyMaterial)
	return args.String(0), args.Error(1)
}
