package service

import (
	"errors"
	"fmt"

	"github.com/wso2/abdm-integration-api/internal/dao"
	"github.com/wso2/abdm-integration-api/internal/models"
)

// ValidationError is malformed caller input, rejected before any persistence or outward call
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError is a referenced entity that does not exist
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// InvalidStateError is an operation that is illegal for the entity's current status
type InvalidStateError struct {
	Entity  string
	ID      string
	Status  string
	Message string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s is %s: %s", e.Entity, e.ID, e.Status, e.Message)
}

// PipelineError is a failure of one health information entry at one stage.
// It never escapes the pipeline; it is recorded in the processing log.
type PipelineError struct {
	Stage models.ProcessingStage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// DecryptError wraps a DECRYPT stage failure
func DecryptError(err error) *PipelineError {
	return &PipelineError{Stage: models.StageDecrypt, Err: err}
}

// ParseError wraps a PARSE stage failure
func ParseError(err error) *PipelineError {
	return &PipelineError{Stage: models.StageParse, Err: err}
}

// ValidateError wraps a VALIDATE stage failure
func ValidateError(err error) *PipelineError {
	return &PipelineError{Stage: models.StageValidate, Err: err}
}

// StoreError wraps a STORE stage failure
func StoreError(err error) *PipelineError {
	return &PipelineError{Stage: models.StageStore, Err: err}
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// notFoundOr converts a dao.ErrNotFound into a NotFoundError and wraps anything else
func notFoundOr(err error, entity, id, action string) error {
	if errors.Is(err, dao.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// IsValidationError reports whether err is a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFoundError reports whether err is a NotFoundError
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInvalidStateError reports whether err is an InvalidStateError
func IsInvalidStateError(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}
