package ontap

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a cluster error for retry decisions.
type ErrorKind int

// Error kind constants. Busy and Transient errors are retryable;
// NotFound and InvalidDestination are not.
const (
	ErrKindTransient ErrorKind = iota
	ErrKindBusy
	ErrKindNotFound
	ErrKindInvalidDestination
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindTransient:
		return "transient"
	case ErrKindBusy:
		return "busy"
	case ErrKindNotFound:
		return "not found"
	case ErrKindInvalidDestination:
		return "invalid destination"
	default:
		return "unknown"
	}
}

// APIError is an error reported by the ONTAP REST API.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ontap: %s (status %d, code %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("ontap: %s (status %d)", e.Message, e.StatusCode)
}

// IsTransient reports whether err is worth retrying. Network-level errors
// (anything that is not an APIError) are treated as transient: the request
// may simply not have reached the cluster.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind == ErrKindTransient || apiErr.Kind == ErrKindBusy
	}
	return err != nil
}

// IsNotFound reports whether err means the requested object does not exist.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == ErrKindNotFound
}

// IsInvalidDestination reports whether err means the move destination was
// rejected by the cluster.
func IsInvalidDestination(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == ErrKindInvalidDestination
}

// classifyStatus maps an HTTP status code to an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 404:
		return ErrKindNotFound
	case status == 409 || status == 429:
		return ErrKindBusy
	case status == 400 || status == 422:
		return ErrKindInvalidDestination
	default:
		return ErrKindTransient
	}
}
