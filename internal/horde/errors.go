package horde

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrTransport marks network-level failures (dial, TLS, reset, timeout).
	ErrTransport = errors.New("horde: transport failure")
	// ErrProtocol marks non-2xx responses and bodies that cannot be normalized.
	ErrProtocol = errors.New("horde: protocol error")
	// ErrCancel marks a failed remote cancellation.
	ErrCancel = errors.New("horde: cancel failed")
)

// StatusError is returned for non-success HTTP responses. It matches ErrProtocol.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("horde api error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("horde api error (%d): %s", e.StatusCode, e.Detail)
}

// Is reports ErrProtocol so callers can classify with errors.Is.
func (e *StatusError) Is(target error) bool {
	return target == ErrProtocol
}

type errorResponse struct {
	Message string `json:"message"`
	RC      string `json:"rc"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return &StatusError{StatusCode: status, Detail: apiErr.Message}
		}
		if apiErr.RC != "" {
			return &StatusError{StatusCode: status, Detail: apiErr.RC}
		}
	}
	if trimmed := strings.TrimSpace(string(payload)); trimmed != "" {
		return &StatusError{StatusCode: status, Detail: trimmed}
	}
	return &StatusError{StatusCode: status, Detail: http.StatusText(status)}
}

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func protocolError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProtocol, op, err)
}
