package erp

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// KindParsed carries the ERP's own error message.
	KindParsed ErrorKind = "parsed"
	// KindHTTP is a non-success status whose body had no error envelope.
	KindHTTP ErrorKind = "http"
	// KindTransport covers timeouts and connection failures. The ERP may
	// still have committed the movement.
	KindTransport ErrorKind = "transport"
	// KindResponse is a success status with a body that could not be read.
	KindResponse ErrorKind = "response"
	KindConfig   ErrorKind = "config"
)

// PostingError is returned by every failed ERP call.
type PostingError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *PostingError) Error() string {
	return e.Message
}

func (e *PostingError) Unwrap() error { return e.Err }

// Ambiguous reports whether the ERP may have accepted the movement even
// though the call failed locally.
func (e *PostingError) Ambiguous() bool {
	return e.Kind == KindTransport || e.Kind == KindResponse
}

func configError(msg string) *PostingError {
	return &PostingError{Kind: KindConfig, Message: msg}
}

func transportError(err error) *PostingError {
	return &PostingError{Kind: KindTransport, Message: fmt.Sprintf("SAP request failed: %v", err), Err: err}
}

// IsAmbiguous reports whether err is a PostingError with an unknown outcome.
func IsAmbiguous(err error) bool {
	var pe *PostingError
	if errors.As(err, &pe) {
		return pe.Ambiguous()
	}
	return false
}
