package nrpc

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies the kind of failure.  The set of codes is closed.
type Code string

const (
	BadRequest           Code = "BAD_REQUEST"
	Unauthorized         Code = "UNAUTHORIZED"
	Forbidden            Code = "FORBIDDEN"
	NotFound             Code = "NOT_FOUND"
	MethodNotSupported   Code = "METHOD_NOT_SUPPORTED"
	NotAcceptable        Code = "NOT_ACCEPTABLE"
	Timeout              Code = "TIMEOUT"
	Conflict             Code = "CONFLICT"
	PreconditionFailed   Code = "PRECONDITION_FAILED"
	PayloadTooLarge      Code = "PAYLOAD_TOO_LARGE"
	UnsupportedMediaType Code = "UNSUPPORTED_MEDIA_TYPE"
	UnprocessableContent Code = "UNPROCESSABLE_CONTENT"
	TooManyRequests      Code = "TOO_MANY_REQUESTS"
	ClientClosedRequest  Code = "CLIENT_CLOSED_REQUEST"
	InternalServerError  Code = "INTERNAL_SERVER_ERROR"
	NotImplemented       Code = "NOT_IMPLEMENTED"
	BadGateway           Code = "BAD_GATEWAY"
	ServiceUnavailable   Code = "SERVICE_UNAVAILABLE"
	GatewayTimeout       Code = "GATEWAY_TIMEOUT"
)

var codeStatus = map[Code]int{
	BadRequest:           400,
	Unauthorized:         401,
	Forbidden:            403,
	NotFound:             404,
	MethodNotSupported:   405,
	NotAcceptable:        406,
	Timeout:              408,
	Conflict:             409,
	PreconditionFailed:   412,
	PayloadTooLarge:      413,
	UnsupportedMediaType: 415,
	UnprocessableContent: 422,
	TooManyRequests:      429,
	ClientClosedRequest:  499,
	InternalServerError:  500,
	NotImplemented:       501,
	BadGateway:           502,
	ServiceUnavailable:   503,
	GatewayTimeout:       504,
}

// Status returns the default HTTP status for a code, or 0 for codes
// outside the enumeration.
func (c Code) Status() int {
	return codeStatus[c]
}

// Valid reports if c is one of the defined codes.
func (c Code) Valid() bool {
	_, ok := codeStatus[c]
	return ok
}

// Message is the default human message: "NOT_FOUND" becomes "Not found".
func (c Code) Message() string {
	s := strings.ToLower(strings.ReplaceAll(string(c), "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Issue is one validation failure reported by a Schema.  Path holds
// string keys and int indexes from the root of the value.
type Issue struct {
	Path    []any  `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error is the error type understood by every transport.  Errors are
// immutable once created.
type Error struct {
	code    Code
	status  int
	message string
	issues  []Issue
	data    any
	cause   error
}

// ErrorOpt are functional arguments for NewError
type ErrorOpt func(*Error)

// WithStatus overrides the status implied by the code.  The status
// must be in the range 400-599.
func WithStatus(status int) ErrorOpt {
	return func(e *Error) {
		e.status = status
	}
}

// WithMessage sets the human readable message.
func WithMessage(msg string) ErrorOpt {
	return func(e *Error) {
		e.message = msg
	}
}

// WithMessagef sets the human readable message with fmt.Sprintf.
func WithMessagef(format string, args ...any) ErrorOpt {
	return func(e *Error) {
		e.message = fmt.Sprintf(format, args...)
	}
}

// WithIssues attaches validation issues.
func WithIssues(issues ...Issue) ErrorOpt {
	return func(e *Error) {
		e.issues = append([]Issue(nil), issues...)
	}
}

// WithData attaches an arbitrary, client visible payload.
func WithData(data any) ErrorOpt {
	return func(e *Error) {
		e.data = data
	}
}

// WithCause records the underlying error.  The cause is available
// through errors.Unwrap but is never sent to clients.
func WithCause(err error) ErrorOpt {
	return func(e *Error) {
		e.cause = err
	}
}

// NewError creates an Error.  NewError panics if the resulting status
// is outside 400-599 or if code is unknown and no status was given:
// both are programming mistakes.
func NewError(code Code, opts ...ErrorOpt) *Error {
	e := &Error{
		code: code,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.status == 0 {
		e.status = code.Status()
		if e.status == 0 {
			panic(fmt.Sprintf("nrpc: unknown error code %q requires an explicit status", code))
		}
	}
	if e.status < 400 || e.status > 599 {
		panic(fmt.Sprintf("nrpc: error status %d must be in the 400-599 range", e.status))
	}
	if e.message == "" {
		e.message = code.Message()
	}
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.code, e.status, e.message, e.cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.code, e.status, e.message)
}

func (e *Error) Unwrap() error   { return e.cause }
func (e *Error) Code() Code      { return e.code }
func (e *Error) Status() int     { return e.status }
func (e *Error) Message() string { return e.message }
func (e *Error) Data() any       { return e.data }

// Issues returns a copy of the validation issues, if any.
func (e *Error) Issues() []Issue {
	if len(e.issues) == 0 {
		return nil
	}
	return append([]Issue(nil), e.issues...)
}

// ErrorJSON is the wire shape of an Error.  The cause is never
// included.
type ErrorJSON struct {
	Code    Code    `json:"code" yaml:"code"`
	Status  int     `json:"status" yaml:"status"`
	Message string  `json:"message" yaml:"message"`
	Issues  []Issue `json:"issues,omitempty" yaml:"issues,omitempty"`
	Data    any     `json:"data,omitempty" yaml:"data,omitempty"`
}

// JSON returns the wire shape of e.
func (e *Error) JSON() ErrorJSON {
	return ErrorJSON{
		Code:    e.code,
		Status:  e.status,
		Message: e.message,
		Issues:  e.Issues(),
		Data:    e.data,
	}
}

// ErrorFromJSON rebuilds an Error that was received over the wire.
// Statuses outside 400-599 are replaced by INTERNAL_SERVER_ERROR
// rather than panicking because the payload is not trusted.
func ErrorFromJSON(j ErrorJSON) *Error {
	status := j.Status
	if status < 400 || status > 599 {
		return NewError(InternalServerError,
			WithMessagef("invalid error status %d received for %s: %s", j.Status, j.Code, j.Message))
	}
	return NewError(j.Code,
		WithStatus(status),
		WithMessage(j.Message),
		WithIssues(j.Issues...),
		WithData(j.Data))
}

// ToError returns the *Error found in err's chain.  Any other error is
// wrapped as INTERNAL_SERVER_ERROR with err as its cause.  ToError(nil)
// is nil.
func ToError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(InternalServerError, WithCause(err))
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.code == code
}

var (
	// ErrReachedEnd is the cause of NOT_FOUND errors that come from
	// walking past the last node of a router.
	ErrReachedEnd = errors.New("nrpc: the loader reached the end of the chain")

	// ErrNotProcedure is the cause of NOT_FOUND errors that come from
	// a path that resolves to something other than a procedure.
	ErrNotProcedure = errors.New("nrpc: the loaded value is not a valid procedure")
)

func notFound(cause error) *Error {
	return NewError(NotFound, WithCause(cause))
}
