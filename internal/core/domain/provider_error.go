package domain

import "fmt"

// ProviderErrorKind is the taxonomy of provider/session error kinds the core
// produces or propagates (spec §3, §7).
type ProviderErrorKind string

const (
	ErrNotFound           ProviderErrorKind = "not_found"
	ErrUnsupportedRequest ProviderErrorKind = "unsupported_request"
	ErrValidation         ProviderErrorKind = "validation_error"
	ErrHTTP               ProviderErrorKind = "http"
	ErrInvocation         ProviderErrorKind = "invocation"
	ErrDeserialization    ProviderErrorKind = "deserialization"
	ErrConfig             ProviderErrorKind = "config"
	ErrOther              ProviderErrorKind = "other"
	ErrNotChecked         ProviderErrorKind = "not_checked"
)

// ProviderError is the typed error carried in Error{} frames and
// DataSourceStatus. It is a value type so it can be compared with Equal and
// copied into a status snapshot safely.
type ProviderError struct {
	Kind         ProviderErrorKind
	Message      string
	Details      string
	HTTPStatus   int
	ResponseBody []byte
}

func (e ProviderError) Error() string {
	switch e.Kind {
	case ErrHTTP:
		return fmt.Sprintf("http: status %d: %s", e.HTTPStatus, string(e.ResponseBody))
	case ErrValidation:
		return fmt.Sprintf("validation error: %s", e.Details)
	case ErrNotFound:
		return "not found"
	case ErrUnsupportedRequest:
		return "unsupported request"
	case ErrNotChecked:
		return "not checked"
	default:
		if e.Message != "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Message)
		}
		return string(e.Kind)
	}
}

func (e ProviderError) Equal(other ProviderError) bool {
	if e.Kind != other.Kind {
		return false
	}
	switch e.Kind {
	case ErrHTTP:
		return e.HTTPStatus == other.HTTPStatus && string(e.ResponseBody) == string(other.ResponseBody)
	case ErrValidation:
		return e.Details == other.Details
	default:
		return e.Message == other.Message
	}
}

func NewHTTPError(status int, body []byte) ProviderError {
	return ProviderError{Kind: ErrHTTP, HTTPStatus: status, ResponseBody: body}
}

func NewInvocationError(message string) ProviderError {
	return ProviderError{Kind: ErrInvocation, Message: message}
}

func NewDeserializationError(message string) ProviderError {
	return ProviderError{Kind: ErrDeserialization, Message: message}
}

func NewConfigError(message string) ProviderError {
	return ProviderError{Kind: ErrConfig, Message: message}
}

func NewValidationError(details string) ProviderError {
	return ProviderError{Kind: ErrValidation, Details: details}
}

func NewOtherError(message string) ProviderError {
	return ProviderError{Kind: ErrOther, Message: message}
}

// SessionError kinds outside the provider taxonomy: handshake and transport
// failures that are fatal to a Session rather than correlated to an op_id.
type SessionErrorKind string

const (
	SessionErrHandshake SessionErrorKind = "handshake"
	SessionErrTransport  SessionErrorKind = "transport"
	SessionErrDecode     SessionErrorKind = "decode"
	SessionErrEncode     SessionErrorKind = "encode"
)

type SessionError struct {
	Kind SessionErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s error: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func NewSessionError(kind SessionErrorKind, err error) *SessionError {
	return &SessionError{Kind: kind, Err: err}
}
