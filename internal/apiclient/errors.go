package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GenericMessage is reported when the backend gives no usable error text.
const GenericMessage = "something went wrong"

// ErrUnauthorized is returned after a 401 on an authorized request. By the
// time a caller sees it the session has already been invalidated.
var ErrUnauthorized = errors.New("apiclient: unauthorized")

// APIError is any failed request that is not ErrUnauthorized: non-2xx
// responses (Status set) and transport failures (Status 0, Err set).
type APIError struct {
	Status int
	// Message is the backend's own error text, empty when it sent none.
	Message string
	// Body holds the raw error payload for callers that need field-level detail.
	Body []byte
	Err  error
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("request failed: %v", e.Err)
	default:
		return GenericMessage
	}
}

func (e *APIError) Unwrap() error { return e.Err }

// ServerMessage reports whether the message came from the backend.
func (e *APIError) ServerMessage() bool { return e.Message != "" }

// errorMessage pulls the backend message out of an error payload. The API
// uses "error" for its own failures and "detail" for framework-level ones.
func errorMessage(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
