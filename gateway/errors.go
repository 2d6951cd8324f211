package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error is the normalized failure of a gateway call: a non-2xx response or a
// transport failure. Status is 0 when no response was received.
type Error struct {
	Message string
	Status  int
	Data    any
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func statusError(status int, body []byte) *Error {
	e := &Error{
		Message: fmt.Sprintf("request failed with status code %d", status),
		Status:  status,
	}
	if len(body) == 0 {
		return e
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		e.Data = strings.TrimSpace(string(body))
		return e
	}
	e.Data = data
	if m, ok := data.(map[string]any); ok {
		if msg, ok := m["message"].(string); ok && msg != "" {
			e.Message = msg
		}
	}
	return e
}

func transportError(err error) *Error {
	return &Error{Message: err.Error(), cause: err}
}
