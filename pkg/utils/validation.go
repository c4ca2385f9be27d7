package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateID validates an entity ID of the given kind
func ValidateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if len(id) > 255 {
		return fmt.Errorf("%s too long (max 255 characters)", kind)
	}
	return nil
}

// ValidateDateRange validates that from is not after to
func ValidateDateRange(from, to int64) error {
	if from <= 0 || to <= 0 {
		return fmt.Errorf("date range from and to are required")
	}
	if from > to {
		return fmt.Errorf("date range from must not be after to")
	}
	return nil
}

// ValidateURL validates an absolute http(s) URL
func ValidateURL(fieldName, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL", fieldName)
	}
	return nil
}

// SanitizeString removes dangerous characters from user input
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// ValidateOffset validates pagination offset
func ValidateOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// ValidateRequired validates that a field is not empty
func ValidateRequired(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateMaxLength validates maximum string length
func ValidateMaxLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%s exceeds maximum length of %d characters", fieldName, maxLength)
	}
	return nil
}
