package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/wso2/abdm-integration-api/internal/models"
)

// MockCallbackInboxStore is a mock implementation of CallbackInboxDAO
type MockCallbackInboxStore struct {
	mock.Mock
}

func (m *MockCallbackInboxStore) Create(ctx context.Context, entry *models.CallbackInboxEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockCallbackInboxStore) GetByID(ctx context.Context, callbackID string) (*models.CallbackInboxEntry, error) {
	args := m.Called(ctx, callbackID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CallbackInboxEntry), args.Error(1)
}

func (m *MockCallbackInboxStore) Claim(ctx context.Context, callbackID string, now, staleBefore int64) (bool, error) {
	args := m.Called(ctx, callbackID, now, staleBefore)
	return args.Bool(0), args.Error(1)
}

func (m *MockCallbackInboxStore) MarkProcessed(ctx context.Context, callbackID string, note *string, now int64) error {
	args := m.Called(ctx, callbackID, note, now)
	return args.Error(0)
}

func (m *MockCallbackInboxStore) MarkRetry(ctx context.Context, callbackID, lastError string, now int64) error {
	args := m.Called(ctx, callbackID, lastError, now)
	return args.Error(0)
}

func (m *MockCallbackInboxStore) MarkFailed(ctx context.Context, callbackID, lastError string, now int64) error {
	args := m.Called(ctx, callbackID, lastError, now)
	return args.Error(0)
}

func (m *MockCallbackInboxStore) ListRecoverable(ctx context.Context, pendingBefore, staleBefore int64, limit int) ([]models.CallbackInboxEntry, error) {
	args := m.Called(ctx, pendingBefore, staleBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CallbackInboxEntry), args.Error(1)
}
