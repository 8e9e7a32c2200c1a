// Package core holds the domain model and error taxonomy shared by every
// layer of the proxy runtime: security, config, engine, transport, certs,
// middleware, and the controller itself.
package core

import "fmt"

// Family distinguishes the five error taxonomies the proxy raises. Each
// family carries its own closed set of codes; HTTP translation and exit-code
// mapping both switch on Family first, then Code.
type Family string

const (
	FamilyEngine Family = "engine"
	FamilyProxy  Family = "proxy"
	FamilyRepo   Family = "repo"
	FamilyHTTP   Family = "http"
	FamilyUser   Family = "user"
)

// Code enumerates every taxonomy member from every family. Values are
// namespaced by family so two sibling errors never share a literal.
type Code string

const (
	// EngineError
	CodeEngineNotFound        Code = "engine.not_found"
	CodeEngineNetworkError    Code = "engine.network_error"
	CodeEngineAPIError        Code = "engine.api_error"
	CodeEngineTimeout         Code = "engine.timeout"
	CodeEngineInvalidResponse Code = "engine.invalid_response"

	// ProxyError
	CodeProxyAlreadyRunning      Code = "proxy.already_running"
	CodeProxyPortInUse           Code = "proxy.port_in_use"
	CodeProxyCertGenerationError Code = "proxy.cert_generation_failed"
	CodeProxyAcmeError           Code = "proxy.acme_error"
	CodeProxyInvalidConfig       Code = "proxy.invalid_config"
	CodeProxyTimeout             Code = "proxy.timeout"

	// RepoError
	CodeRepoNotFound            Code = "repo.not_found"
	CodeRepoConstraintViolation Code = "repo.constraint_violation"
	CodeRepoMigrationFailed     Code = "repo.migration_failed"
	CodeRepoIOError             Code = "repo.io_error"
	CodeRepoValidationError     Code = "repo.validation_error"
	CodeRepoReadOnlyMode        Code = "repo.read_only_mode"

	// HttpError (outbound, from the transport layer talking to engines)
	CodeHTTPNetworkError    Code = "http.network_error"
	CodeHTTPTimeout         Code = "http.timeout"
	CodeHTTPInvalidResponse Code = "http.invalid_response"
	CodeHTTPStatusCode      Code = "http.status_code"

	// UserError (control plane)
	CodeUserBadInput Code = "user.bad_input"

	// Inbound API-facing codes (JSON error envelope)
	CodeInvalidAPIKey   Code = "invalid_api_key"
	CodeRateLimited     Code = "rate_limited"
	CodeBlocked         Code = "blocked"
	CodeBodyTooLarge    Code = "body_too_large"
	CodeTooManyInFlight Code = "too_many_in_flight"
)

// Error is the single structured error type every layer returns. It carries
// enough metadata for the middleware chain to translate it into an HTTP
// response and for the control plane to pick an exit code, without either
// layer needing a type switch over concrete Go error types.
type Error struct {
	Family     Family
	Code       Code
	Message    string
	HTTPStatus int
	Retryable  bool
	Status     int // upstream status, used by CodeEngineAPIError / CodeHTTPStatusCode
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Family, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Family, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(family Family, code Code, message string) *Error {
	return &Error{Family: family, Code: code, Message: message}
}

// WithCause attaches the underlying error and returns the receiver for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus overrides the HTTP status the middleware chain will emit.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks whether the caller may safely retry.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithStatus records the upstream HTTP status code for ApiError/StatusCode variants.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// Engine error constructors.
func NewEngineNotFound(message string) *Error { return newErr(FamilyEngine, CodeEngineNotFound, message) }
func NewEngineNetworkError(message string) *Error {
	return newErr(FamilyEngine, CodeEngineNetworkError, message).WithRetryable(true)
}
func NewEngineAPIError(status int, message string) *Error {
	return newErr(FamilyEngine, CodeEngineAPIError, message).WithStatus(status)
}
func NewEngineTimeout(message string) *Error {
	return newErr(FamilyEngine, CodeEngineTimeout, message).WithRetryable(true)
}
func NewEngineInvalidResponse(message string) *Error {
	return newErr(FamilyEngine, CodeEngineInvalidResponse, message)
}

// Proxy error constructors.
func NewProxyAlreadyRunning(message string) *Error {
	return newErr(FamilyProxy, CodeProxyAlreadyRunning, message)
}
func NewProxyPortInUse(message string) *Error { return newErr(FamilyProxy, CodeProxyPortInUse, message) }
func NewProxyCertGenerationError(message string) *Error {
	return newErr(FamilyProxy, CodeProxyCertGenerationError, message)
}
func NewProxyAcmeError(message string) *Error { return newErr(FamilyProxy, CodeProxyAcmeError, message) }
func NewProxyInvalidConfig(message string) *Error {
	return newErr(FamilyProxy, CodeProxyInvalidConfig, message)
}
func NewProxyTimeout(message string) *Error { return newErr(FamilyProxy, CodeProxyTimeout, message) }

// Repository error constructors.
func NewRepoNotFound(message string) *Error { return newErr(FamilyRepo, CodeRepoNotFound, message) }
func NewRepoConstraintViolation(message string) *Error {
	return newErr(FamilyRepo, CodeRepoConstraintViolation, message)
}
func NewRepoMigrationFailed(message string) *Error {
	return newErr(FamilyRepo, CodeRepoMigrationFailed, message)
}
func NewRepoIOError(message string) *Error { return newErr(FamilyRepo, CodeRepoIOError, message) }
func NewRepoValidationError(message string) *Error {
	return newErr(FamilyRepo, CodeRepoValidationError, message)
}
func NewRepoReadOnlyMode(message string) *Error { return newErr(FamilyRepo, CodeRepoReadOnlyMode, message) }

// HTTP (outbound transport) error constructors.
func NewHTTPNetworkError(message string) *Error {
	return newErr(FamilyHTTP, CodeHTTPNetworkError, message).WithRetryable(true)
}
func NewHTTPTimeout(message string) *Error {
	return newErr(FamilyHTTP, CodeHTTPTimeout, message).WithRetryable(true)
}
func NewHTTPInvalidResponse(message string) *Error {
	return newErr(FamilyHTTP, CodeHTTPInvalidResponse, message)
}
func NewHTTPStatusCode(status int, message string) *Error {
	return newErr(FamilyHTTP, CodeHTTPStatusCode, message).WithStatus(status)
}

// User error constructor (control plane, always exit code 1).
func NewUserError(message string) *Error { return newErr(FamilyUser, CodeUserBadInput, message) }

// Inbound API-facing constructors, raised by the middleware chain itself
// rather than by a downstream layer.
func NewInvalidAPIKey(message string) *Error { return newErr(FamilyHTTP, CodeInvalidAPIKey, message) }
func NewRateLimited(message string) *Error   { return newErr(FamilyHTTP, CodeRateLimited, message) }
func NewBlocked(message string) *Error       { return newErr(FamilyHTTP, CodeBlocked, message) }
func NewBodyTooLarge(message string) *Error  { return newErr(FamilyHTTP, CodeBodyTooLarge, message) }
func NewTooManyInFlight(message string) *Error {
	return newErr(FamilyHTTP, CodeTooManyInFlight, message)
}

// AsError unwraps err into *Error if possible.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}

// HTTPStatusFor maps a domain error to the HTTP status the middleware chain
// should emit, honoring an explicit override before falling back to
// family/code defaults.
func HTTPStatusFor(err error) int {
	e, ok := AsError(err)
	if !ok {
		return 500
	}
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	switch e.Code {
	case CodeInvalidAPIKey:
		return 401
	case CodeRateLimited:
		return 429
	case CodeBlocked:
		return 403
	case CodeBodyTooLarge:
		return 413
	case CodeTooManyInFlight:
		return 503
	case CodeEngineNotFound:
		return 404
	case CodeEngineNetworkError:
		return 502
	case CodeEngineTimeout:
		return 504
	case CodeEngineAPIError:
		if e.Status != 0 {
			return e.Status
		}
		return 502
	case CodeEngineInvalidResponse:
		return 502
	case CodeRepoConstraintViolation:
		return 409
	case CodeRepoNotFound:
		return 404
	case CodeRepoReadOnlyMode:
		return 503
	case CodeRepoValidationError:
		return 400
	default:
		switch e.Family {
		case FamilyRepo:
			return 500
		case FamilyProxy:
			return 500
		default:
			return 500
		}
	}
}

// ExitCodeFor maps a control-plane error to the CLI exit code contract:
// 0 ok, 1 user error, 2 internal error.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if e, ok := AsError(err); ok && e.Family == FamilyUser {
		return 1
	}
	return 2
}
