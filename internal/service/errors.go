package service

import (
	"fmt"
	"strings"
)

// TransportError means no response was received: the service was
// unreachable, the connection dropped or the request timed out.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResponseError means the service answered with a non-success status.
type ResponseError struct {
	Op      string
	Status  int
	Message string
}

func (e *ResponseError) Error() string {
	if strings.TrimSpace(e.Message) != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: failed with status %d", e.Op, e.Status)
}

// DecodeError means a success response carried a body that could not be parsed.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
