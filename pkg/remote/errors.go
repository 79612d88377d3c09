package remote

import (
	"errors"
	"fmt"
)

// Kind distinguishes a collaborator that never answered from one that answered with an error.
type Kind int

const (
	// KindNoResponse covers network failures, timeouts and cancelled requests.
	KindNoResponse Kind = iota + 1
	// KindServer covers every non-2xx response.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNoResponse:
		return "no_response"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// NoResponseMessage is the user-facing message of a KindNoResponse error.
const NoResponseMessage = "Network error: No response from server"

var (
	// ErrNotFound matches server errors with status 404.
	ErrNotFound = errors.New("not found")
	// ErrMalformedResponse matches every *ParseError.
	ErrMalformedResponse = errors.New("malformed response")
)

// RemoteError is a failed call to the collaborator.
type RemoteError struct {
	Op         string // Operation, e.g. "GetWorkflow"
	Kind       Kind
	StatusCode int    // HTTP status for KindServer
	Code       string // Machine-readable error type from the response, if any
	Message    string // Human-readable message
	Err        error  // Underlying error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrNotFound && e.Kind == KindServer && e.StatusCode == 404
}

// NewNoResponseError wraps a transport failure.
func NewNoResponseError(op string, err error) *RemoteError {
	return &RemoteError{Op: op, Kind: KindNoResponse, Message: NoResponseMessage, Err: err}
}

// NewServerError builds the error for a non-2xx response.
func NewServerError(op string, status int, code, message string) *RemoteError {
	if message == "" {
		message = fmt.Sprintf("Server error: %d", status)
	}

	return &RemoteError{Op: op, Kind: KindServer, StatusCode: status, Code: code, Message: message}
}

// ParseError reports a response body that could not be normalized into the expected shape.
type ParseError struct {
	Op    string
	Field string // Offending field, e.g. "dag_json" or "result_json"
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: failed to parse %s: %v", e.Op, e.Field, e.Err)
	}

	return fmt.Sprintf("%s: failed to parse response: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// IsNoResponse reports whether err is a collaborator call that got no answer.
func IsNoResponse(err error) bool {
	var re *RemoteError

	return errors.As(err, &re) && re.Kind == KindNoResponse
}

// IsServerError reports whether err is a non-2xx collaborator response.
func IsServerError(err error) bool {
	var re *RemoteError

	return errors.As(err, &re) && re.Kind == KindServer
}

// IsParseError reports whether err is a malformed collaborator response.
func IsParseError(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}

// Message returns the user-facing text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message
	}

	return err.Error()
}
