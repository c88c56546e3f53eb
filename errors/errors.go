package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping and per-file batch reporting.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindCapabilityDisabled
	KindNotFound
	KindConflict
	KindTransient
	KindConfiguration
)

// User-facing messages. The exact wording is part of the API contract; the
// internal cause is logged server-side and never returned to callers.
const (
	MsgFileNotFoundForDeletion = "File not found. Cannot perform deletion."
	MsgRecordModified          = "File record was modified or deleted by another process and is unavailable."
	MsgDuplicateUpload         = "A file with this name is already pending or uploaded for this message."
	MsgUnexpectedFailure       = "Failed due to unexpected error."
)

type AppError struct {
	kind    Kind
	message string
	cause   error
}

func New(kind Kind, message string) *AppError {
	return &AppError{kind: kind, message: message}
}

func Newf(kind Kind, format string, args ...any) *AppError {
	return &AppError{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap keeps cause reachable through errors.Is/As while exposing only message.
func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{kind: kind, message: message, cause: cause}
}

func (e *AppError) Error() string { return e.message }

func (e *AppError) Unwrap() error { return e.cause }

func (e *AppError) Kind() Kind { return e.kind }

// KindOf resolves the kind of any error; non-AppError values are unexpected.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.kind
	}
	return KindUnexpected
}

var (
	ErrMultimodalDisabled      = New(KindCapabilityDisabled, "Multimodal capability is not enabled for this use case.")
	ErrMultimodalConfiguration = New(KindConfiguration, "Multimodal configuration could not be resolved for this deployment.")
)

// Internal builds the generic boundary error carrying a support reference.
func Internal(traceID string) *AppError {
	return Newf(KindUnexpected, "Internal Error - Please contact support and quote the following trace id: %s", traceID)
}
