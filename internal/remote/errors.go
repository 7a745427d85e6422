package remote

import (
	"errors"
	"fmt"
)

// Error codes carried in the "code" field of API error bodies.
const (
	CodeChecksumMismatch = "E_CHECKSUM_MISMATCH"
	CodeLengthMismatch   = "E_LENGTH_MISMATCH"
	CodeAlreadyExists    = "E_ALREADY_EXISTS"
	CodeNotFound         = "E_NOT_FOUND"
	CodeBadRequest       = "E_BAD_REQUEST"
	CodeInternal         = "E_INTERNAL"
	CodeUnknown          = "E_UNKNOWN"
)

var (
	ErrTimeout          = errors.New("remote request timed out")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
)

// APIError is a well-formed error response from the property store.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrChecksumMismatch:
		return e.Code == CodeChecksumMismatch
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrAlreadyExists:
		return e.Code == CodeAlreadyExists
	}
	return false
}

// UnavailableError is a transport failure or a server side fault. Watch mode
// retries it; one-shot commands abort with its message.
type UnavailableError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	_, ok := errors.AsType[*UnavailableError](err)
	return ok
}
