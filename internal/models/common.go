package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message, details string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Common error codes
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeValidationError = "VALIDATION_ERROR"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeGatewayError    = "GATEWAY_ERROR"
	ErrCodeBodyTooLarge    = "BODY_TOO_LARGE"
)

// HTTPStatusForErrorCode returns the appropriate HTTP status code for an error code
func HTTPStatusForErrorCode(code string) int {
	switch code {
	case ErrCodeBadRequest, ErrCodeValidationError:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeInvalidState:
		return http.StatusConflict
	case ErrCodeGatewayError:
		return http.StatusBadGateway
	case ErrCodeBodyTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// JSON type for handling JSON fields in MySQL
type JSON json.RawMessage

// Scan implements the sql.Scanner interface for JSON
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSON: %T", value)
	}

	if !json.Valid(bytes) {
		return fmt.Errorf("invalid JSON data")
	}

	*j = JSON(append([]byte(nil), bytes...))
	return nil
}

// Value implements the driver.Valuer interface for JSON
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// MarshalJSON implements json.Marshaler
func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = JSON(append([]byte(nil), data...))
	return nil
}

// MustJSON marshals v, returning nil on failure. Used for free-form detail columns.
func MustJSON(v interface{}) JSON {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return JSON(data)
}

// StringList is a string slice stored as a JSON array column
type StringList []string

// Scan implements the sql.Scanner interface
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported type for string list: %T", value)
	}

	var list []string
	if err := json.Unmarshal(bytes, &list); err != nil {
		return fmt.Errorf("invalid string list: %w", err)
	}
	*s = list
	return nil
}

// Value implements the driver.Valuer interface
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Contains reports whether v is in the list
func (s StringList) Contains(v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// ActorType identifies who performed an audited action
type ActorType string

const (
	ActorTypeDoctor  ActorType = "DOCTOR"
	ActorTypePatient ActorType = "PATIENT"
	ActorTypeSystem  ActorType = "SYSTEM"
	ActorTypeNetwork ActorType = "NETWORK"
)

// IsValid reports whether the actor type is known
func (a ActorType) IsValid() bool {
	switch a {
	case ActorTypeDoctor, ActorTypePatient, ActorTypeSystem, ActorTypeNetwork:
		return true
	}
	return false
}

// Actor identifies the caller of an operation
type Actor struct {
	ID        string
	Type      ActorType
	IPAddress string
	UserAgent string
}

// SystemActor is used by scheduled jobs
var SystemActor = Actor{ID: "system", Type: ActorTypeSystem}

// NetworkActor is used for unattributed network callbacks
var NetworkActor = Actor{ID: "abdm-gateway", Type: ActorTypeNetwork}

// DateRange is an inclusive range of epoch millis
type DateRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}
