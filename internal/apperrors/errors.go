// Package apperrors classifies failures by kind rather than type, so the
// FSM, Cascade Coordinator, and Recording Pipeline can decide "reprompt",
// "retry", or "terminate" without inspecting concrete error values.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error identifier.
type Code string

const (
	CodeMalformedInput  Code = "MALFORMED_INPUT"
	CodeEmptyTranscript Code = "EMPTY_TRANSCRIPT"

	CodeWorkerNotFound Code = "WORKER_NOT_FOUND"
	CodeShiftNotFound  Code = "SHIFT_NOT_FOUND"
	CodePinNotFound    Code = "PIN_NOT_FOUND"

	CodeCatalogTimeout  Code = "CATALOG_TIMEOUT"
	CodeQueueUnavailable Code = "QUEUE_UNAVAILABLE"
	CodeGatewayTimeout  Code = "GATEWAY_TIMEOUT"
	CodeCircuitOpen     Code = "CIRCUIT_OPEN"

	CodeCatalogRejected Code = "CATALOG_REJECTED"

	CodeMalformedFrame Code = "MALFORMED_FRAME"
	CodeUnknownEvent   Code = "UNKNOWN_EVENT"

	CodeInvariantViolation Code = "INVARIANT_VIOLATION"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Kind is the taxonomy from the error handling design: a small, closed set
// of response policies rather than a type hierarchy.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInputValidation: malformed DTMF, empty transcript -> local reprompt.
	KindInputValidation
	// KindNotFound: caller phone/PIN unmatched -> PIN fallback, then apology.
	KindNotFound
	// KindTransientUpstream: catalog/KV/queue/gateway timeout or 5xx -> retry.
	KindTransientUpstream
	// KindPermanentUpstream: non-retryable 4xx from catalog -> terminate gracefully.
	KindPermanentUpstream
	// KindProtocol: malformed frame, unknown event -> log and ignore.
	KindProtocol
	// KindFatal: unrecoverable invariant -> terminate call with apology.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "input_validation"
	case KindNotFound:
		return "not_found"
	case KindTransientUpstream:
		return "transient_upstream"
	case KindPermanentUpstream:
		return "permanent_upstream"
	case KindProtocol:
		return "protocol"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the application error type threaded through the core packages.
type Error struct {
	Code    Code
	Message string
	Kind    Kind
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus maps the error onto a status code for the operator API (§6a).
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInputValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTransientUpstream:
		return http.StatusBadGateway
	case KindPermanentUpstream:
		return http.StatusUnprocessableEntity
	case KindProtocol:
		return http.StatusBadRequest
	case KindFatal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IsRetriable reports whether the Cascade's send-retry loop or the Catalog
// Read-Through's re-fetch logic should try again.
func (e *Error) IsRetriable() bool {
	return e.Kind == KindTransientUpstream
}

// New builds an Error, deriving Kind from Code.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Kind: kindForCode(code)}
}

// Wrap attaches operation context and an underlying cause to an Error.
func Wrap(err error, op string, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Kind: kindForCode(code), Op: op, Err: err}
}

// WrapWithOp preserves an existing *Error's classification while recording
// where it surfaced; non-Error causes become KindFatal internal errors.
func WrapWithOp(err error, op string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{Code: e.Code, Message: e.Message, Kind: e.Kind, Op: op, Err: e.Err}
	}
	return &Error{Code: CodeInternal, Message: err.Error(), Kind: KindFatal, Op: op, Err: err}
}

func kindForCode(code Code) Kind {
	switch code {
	case CodeMalformedInput, CodeEmptyTranscript:
		return KindInputValidation
	case CodeWorkerNotFound, CodeShiftNotFound, CodePinNotFound:
		return KindNotFound
	case CodeCatalogTimeout, CodeQueueUnavailable, CodeGatewayTimeout, CodeCircuitOpen:
		return KindTransientUpstream
	case CodeCatalogRejected:
		return KindPermanentUpstream
	case CodeMalformedFrame, CodeUnknownEvent:
		return KindProtocol
	case CodeInvariantViolation:
		return KindFatal
	default:
		return KindFatal
	}
}

// Sentinel errors for common cases the FSM and Cascade check with errors.Is.
var (
	ErrWorkerNotFound  = New(CodeWorkerNotFound, "worker not found")
	ErrShiftNotFound   = New(CodeShiftNotFound, "shift not found")
	ErrCircuitOpen     = New(CodeCircuitOpen, "upstream circuit is open")
	ErrQueueUnavailable = New(CodeQueueUnavailable, "queue primitive unavailable")
)

// NotFound builds a KindNotFound error for a named resource.
func NotFound(resource string) *Error {
	return &Error{Code: CodeShiftNotFound, Message: fmt.Sprintf("%s not found", resource), Kind: KindNotFound}
}

// TransientUpstream builds a KindTransientUpstream error wrapping cause.
func TransientUpstream(op string, cause error) *Error {
	return &Error{Code: CodeGatewayTimeout, Message: "upstream call failed", Kind: KindTransientUpstream, Op: op, Err: cause}
}

// PermanentUpstream builds a KindPermanentUpstream error wrapping cause.
func PermanentUpstream(op string, cause error) *Error {
	return &Error{Code: CodeCatalogRejected, Message: "upstream rejected request", Kind: KindPermanentUpstream, Op: op, Err: cause}
}

// Protocol builds a KindProtocol error; callers log and continue the session.
func Protocol(message string) *Error {
	return &Error{Code: CodeMalformedFrame, Message: message, Kind: KindProtocol}
}

// Fatal builds a KindFatal error; callers terminate the call.
func Fatal(op string, cause error) *Error {
	return &Error{Code: CodeInvariantViolation, Message: "unrecoverable internal state", Kind: KindFatal, Op: op, Err: cause}
}

// IsRetriable reports whether err (an *Error or wrapping one) is transient.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetriable()
	}
	return false
}

// GetKind extracts the Kind from err, defaulting to KindFatal for unclassified errors.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}
