package crawler

import (
	"errors"
	"fmt"
)

// ErrTransport indicates a network-level failure issuing a request.
type ErrTransport struct {
	Err error
}

func (e ErrTransport) Error() string {
	return fmt.Errorf("transport: %w", e.Err).Error()
}

func (e ErrTransport) Unwrap() error {
	return e.Err
}

// ErrServer indicates an HTTP 500 from the API.
type ErrServer struct {
	Err error
}

func (e ErrServer) Error() string {
	return fmt.Errorf("server: %w", e.Err).Error()
}

func (e ErrServer) Unwrap() error {
	return e.Err
}

// ErrBadStatus indicates an unexpected non-200 status.
type ErrBadStatus struct {
	Status int
}

func (e ErrBadStatus) Error() string {
	return fmt.Sprintf("bad_status: http status %d", e.Status)
}

// ErrRequiredParam indicates HTTP 300: the API rejected the request for
// missing required values. Not retryable.
type ErrRequiredParam struct {
	Status int
}

func (e ErrRequiredParam) Error() string {
	return fmt.Sprintf("required_param: http status %d", e.Status)
}

// ErrDecode indicates the response body was not valid JSON.
type ErrDecode struct {
	Err error
}

func (e ErrDecode) Error() string {
	return fmt.Errorf("decode: %w", e.Err).Error()
}

func (e ErrDecode) Unwrap() error {
	return e.Err
}

// ErrSchema indicates the payload key was absent from the response.
type ErrSchema struct {
	Payload string
}

func (e ErrSchema) Error() string {
	return "schema: payload key not found"
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var transport ErrTransport
	if errors.As(err, &transport) {
		return "transport"
	}
	var server ErrServer
	if errors.As(err, &server) {
		return "server"
	}
	var badStatus ErrBadStatus
	if errors.As(err, &badStatus) {
		return "bad_status"
	}
	var required ErrRequiredParam
	if errors.As(err, &required) {
		return "required_param"
	}
	var decode ErrDecode
	if errors.As(err, &decode) {
		return "decode"
	}
	var schema ErrSchema
	if errors.As(err, &schema) {
		return "schema"
	}
	return "other"
}
