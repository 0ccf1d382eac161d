package dataset

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for transport mapping. Every error surfaced by the
// control plane belongs to exactly one kind.
type Kind int

// Error kinds, mapped by the HTTP layer to 404/409/400/500-class responses.
const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalidInput
	KindUpstream
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindInvalidInput:
		return "InvalidInput"
	case KindUpstream:
		return "UpstreamFailure"
	default:
		return "Internal"
	}
}

// Stable machine-readable error codes carried on Error values.
const (
	CodeDatasetNotFound       = "DATASET_NOT_FOUND"
	CodeDatasetExists         = "DATASET_EXISTS"
	CodeDatasetOutdated       = "DATASET_OUTDATED"
	CodeDatasetNotDraft       = "DATASET_NOT_IN_DRAFT_STATE"
	CodeInvalidTransition     = "DATASET_INVALID_STATE_TRANSITION"
	CodeDatasetInUse          = "DATASET_IN_USE"
	CodeDuplicateDenormKey    = "DATASET_DUPLICATE_DENORM_KEY"
	CodeDuplicateFieldKey     = "DATASET_DUPLICATE_FIELD_KEY"
	CodeDuplicateConnector    = "DATASET_DUPLICATE_CONNECTOR"
	CodeSelfReferencingMaster = "DATASET_SELF_REFERENCING_DENORM"
	CodeMasterNotLive         = "DEPENDENT_MASTER_DATA_NOT_LIVE"
	CodeTimestampNotFound     = "DATASET_TIMESTAMP_NOT_FOUND"
	CodeConfigsInvalid        = "DATASET_CONFIGS_INVALID"
	CodeInvalidInput          = "DATASET_INPUT_INVALID"
	CodePartitionAllocFailed  = "CACHE_PARTITION_ALLOC_FAILED"
	CodeCommandFailed         = "COMMAND_SERVICE_FAILURE"
	CodeInternalError         = "INTERNAL_ERROR"
)

// Error is the typed error surfaced by the dataset control plane. It carries a
// stable machine code, a kind for transport mapping, a human message and an
// optional cause.
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds a KindNotFound error.
func NotFound(code, format string, args ...any) *Error {
	return &Error{Code: code, Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(code, format string, args ...any) *Error {
	return &Error{Code: code, Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(code, format string, args ...any) *Error {
	return &Error{Code: code, Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a collaborator failure as a KindUpstream error.
func Upstream(code string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

// Internal wraps an unexpected failure as a KindInternal error.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Code: CodeInternalError, Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of err, defaulting to KindInternal for errors that
// did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// CodeOf extracts the stable code of err, defaulting to CodeInternalError.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return CodeInternalError
}
