package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveFetchStatus(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		completed int
		failed    int
		expected  FetchStatus
	}{
		{name: "Total unknown", total: 0, completed: 5, failed: 1, expected: FetchProcessing},
		{name: "In progress", total: 3, completed: 1, failed: 0, expected: FetchProcessing},
		{name: "All succeeded", total: 3, completed: 3, failed: 0, expected: FetchCompleted},
		{name: "Mixed", total: 3, completed: 2, failed: 1, expected: FetchPartial},
		{name: "All failed", total: 3, completed: 0, failed: 3, expected: FetchFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveFetchStatus(tt.total, tt.completed, tt.failed))
		})
	}
}

func TestApplyProgress_PartialScenario(t *testing.T) {
	f := &HealthRecordFetchRequest{Status: FetchProcessing}

	applied := f.ApplyProgress(FetchProgress{Completed: 2, Failed: 1, Total: 3}, 1000)

	assert.True(t, applied)
	assert.Equal(t, 3, f.TotalRecords)
	assert.Equal(t, 2, f.CompletedRecords)
	assert.Equal(t, 1, f.FailedRecords)
	assert.Equal(t, FetchPartial, f.Status)
	assert.NotNil(t, f.CompletedTime)
}

func TestApplyProgress_AccumulatesWithoutTotal(t *testing.T) {
	f := &HealthRecordFetchRequest{Status: FetchProcessing}

	f.ApplyProgress(FetchProgress{Completed: 2}, 1000)
	assert.Equal(t, FetchProcessing, f.Status)

	f.ApplyProgress(FetchProgress{Completed: 1, Total: 3}, 2000)
	assert.Equal(t, FetchCompleted, f.Status)
	assert.Equal(t, int64(2000), f.UpdatedTime)
}

func TestApplyProgress_NeverExceedsTotal(t *testing.T) {
	f := &HealthRecordFetchRequest{Status: FetchProcessing, TotalRecords: 2}

	f.ApplyProgress(FetchProgress{Completed: 3}, 1000)

	assert.LessOrEqual(t, f.CompletedRecords+f.FailedRecords, f.TotalRecords)
	assert.Equal(t, FetchCompleted, f.Status)
}

func TestApplyProgress_SkipsTerminal(t *testing.T) {
	f := &HealthRecordFetchRequest{Status: FetchCancelled, CompletedRecords: 1}

	applied := f.ApplyProgress(FetchProgress{Completed: 2, Total: 3}, 1000)

	assert.False(t, applied)
	assert.Equal(t, FetchCancelled, f.Status)
	assert.Equal(t, 1, f.CompletedRecords)
	assert.Equal(t, 0, f.TotalRecords)
}

func TestApplyProgress_FatalError(t *testing.T) {
	f := &HealthRecordFetchRequest{Status: FetchProcessing}
	f.ApplyProgress(FetchProgress{FatalError: "HIP unreachable"}, 1000)
	assert.Equal(t, FetchFailed, f.Status)
	assert.Equal(t, "HIP unreachable", *f.ErrorMessage)

	g := &HealthRecordFetchRequest{Status: FetchProcessing, CompletedRecords: 1}
	g.ApplyProgress(FetchProgress{FatalError: "transfer aborted"}, 1000)
	assert.Equal(t, FetchPartial, g.Status)
	assert.Equal(t, 1, g.TotalRecords)
}

func TestHealthInfoEntry_ExternalRecordID(t *testing.T) {
	assert.Equal(t, "rec-1", (&HealthInfoEntry{RecordID: "rec-1", CareContextReference: "cc-1"}).ExternalRecordID())

	first := (&HealthInfoEntry{CareContextReference: "cc-1", Content: "doc-a"}).ExternalRecordID()
	second := (&HealthInfoEntry{CareContextReference: "cc-1", Content: "doc-b"}).ExternalRecordID()
	assert.True(t, strings.HasPrefix(first, "cc-1:sha256:"))
	assert.NotEqual(t, first, second)
	assert.Equal(t, first, (&HealthInfoEntry{CareContextReference: "cc-1", Content: "doc-a"}).ExternalRecordID())

	a := (&HealthInfoEntry{Content: "abc"}).ExternalRecordID()
	b := (&HealthInfoEntry{Content: "abc"}).ExternalRecordID()
	assert.Equal(t, a, b)
	assert.Contains(t, a, "sha256:")
}

func TestHealthInfoCallback_IsHeartbeat(t *testing.T) {
	assert.True(t, (&HealthInfoCallback{TransactionID: "tx"}).IsHeartbeat())
	total := 2
	assert.False(t, (&HealthInfoCallback{TransactionID: "tx", TotalRecords: &total}).IsHeartbeat())
	assert.False(t, (&HealthInfoCallback{Entries: []HealthInfoEntry{{Content: "x"}}}).IsHeartbeat())
}

func TestRecordStatus_Transitions(t *testing.T) {
	assert.True(t, RecordActive.CanTransitionTo(RecordArchived))
	assert.True(t, RecordActive.CanTransitionTo(RecordDeleted))
	assert.True(t, RecordArchived.CanTransitionTo(RecordDeleted))
	assert.False(t, RecordArchived.CanTransitionTo(RecordActive))
	assert.False(t, RecordDeleted.CanTransitionTo(RecordActive))
	assert.False(t, RecordDeleted.CanTransitionTo(RecordArchived))
}
