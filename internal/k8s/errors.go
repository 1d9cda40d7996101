package k8s

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ErrorKind classifies a provisioning failure so callers can branch without
// inspecting transport details.
type ErrorKind string

const (
	// ErrKindValidation marks missing or empty required input. Validation
	// failures never reach the control plane.
	ErrKindValidation ErrorKind = "ValidationError"

	// ErrKindConflict marks an object name that already exists.
	ErrKindConflict ErrorKind = "Conflict"

	// ErrKindForbidden marks insufficient rights of the client's own credentials.
	ErrKindForbidden ErrorKind = "Forbidden"

	// ErrKindNotFound marks a referenced object that does not exist.
	ErrKindNotFound ErrorKind = "NotFound"

	// ErrKindUnsupported marks an operation the control plane version does
	// not support, such as the TokenRequest subresource on old clusters.
	ErrKindUnsupported ErrorKind = "Unsupported"

	// ErrKindUnreachable marks a network or transport failure.
	ErrKindUnreachable ErrorKind = "Unreachable"

	// ErrKindTokenIssuance marks exhaustion of both token issuance paths.
	ErrKindTokenIssuance ErrorKind = "TokenIssuanceFailed"
)

// APIError is the normalized form of every control-plane failure. It carries
// the upstream HTTP status and reason so the caller can decide whether to
// retry, without this package swallowing any detail.
type APIError struct {
	Kind   ErrorKind
	Op     string
	Status int
	Reason string
	Body   string

	err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Reason)
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *APIError) Unwrap() error {
	return e.err
}

// HTTPStatus returns the HTTP status code an API surface should report for
// this error.
func (e *APIError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case ErrKindValidation:
		return 400
	case ErrKindForbidden:
		return 403
	case ErrKindNotFound:
		return 404
	case ErrKindConflict:
		return 409
	case ErrKindUnreachable:
		return 502
	default:
		return 500
	}
}

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf returns the error kind of err, or ErrKindUnreachable for errors
// that were never normalized.
func KindOf(err error) ErrorKind {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Kind
	}
	return ErrKindUnreachable
}

// newValidationError builds a local validation failure. It carries no
// upstream status because it never left the process.
func newValidationError(op, reason string) *APIError {
	return &APIError{
		Kind:   ErrKindValidation,
		Op:     op,
		Reason: reason,
	}
}

// normalizeAPIError converts any client-go error into an *APIError. The kind
// is derived from the apimachinery status reason; anything without a
// recognizable API status is treated as a transport failure.
func normalizeAPIError(op string, err error) *APIError {
	if err == nil {
		return nil
	}

	apiErr := &APIError{
		Op:  op,
		err: err,
	}

	// Pull status, reason and body out of the structured API status if present.
	var statusErr *apierrors.StatusError
	if errors.As(err, &statusErr) {
		status := statusErr.Status()
		apiErr.Status = int(status.Code)
		apiErr.Reason = string(status.Reason)
		apiErr.Body = status.Message
	}

	switch {
	case apierrors.IsAlreadyExists(err):
		apiErr.Kind = ErrKindConflict
	case apierrors.IsConflict(err):
		apiErr.Kind = ErrKindConflict
	case apierrors.IsForbidden(err):
		apiErr.Kind = ErrKindForbidden
	case apierrors.IsNotFound(err):
		apiErr.Kind = ErrKindNotFound
	case apierrors.IsMethodNotSupported(err), apierrors.IsNotAcceptable(err), apierrors.IsUnsupportedMediaType(err):
		apiErr.Kind = ErrKindUnsupported
	default:
		apiErr.Kind = ErrKindUnreachable
	}

	return apiErr
}
