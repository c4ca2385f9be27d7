package utils

import (
	"github.com/google/uuid"
)

// GenerateID generates a new UUID
func GenerateID() string {
	return uuid.New().String()
}

// GenerateConsentRequestID generates a unique consent request ID
func GenerateConsentRequestID() string {
	return "CR-" + uuid.New().String()
}

// GenerateArtifactID generates a unique consent artifact ID
func GenerateArtifactID() string {
	return "CA-" + uuid.New().String()
}

// GenerateAuditID generates a unique consent audit log ID
func GenerateAuditID() string {
	return "AUDIT-" + uuid.New().String()
}

// GenerateFetchRequestID generates a unique health record fetch request ID
func GenerateFetchRequestID() string {
	return "HFR-" + uuid.New().String()
}

// GenerateHealthRecordID generates a unique health record ID
func GenerateHealthRecordID() string {
	return "HR-" + uuid.New().String()
}

// GenerateProcessingLogID generates a unique processing log ID
func GenerateProcessingLogID() string {
	return "PLOG-" + uuid.New().String()
}

// GenerateAccessLogID generates a unique access log ID
func GenerateAccessLogID() string {
	return "ALOG-" + uuid.New().String()
}

// GenerateCallbackID generates a unique callback inbox ID
func GenerateCallbackID() string {
	return "CB-" + uuid.New().String()
}

// IsValidUUID checks if a string is a valid UUID
func IsValidUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
