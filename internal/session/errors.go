package session

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotAuthenticated is returned by operations that need a logged-in session.
var ErrNotAuthenticated = errors.New("session: not authenticated")

const (
	// DefaultLoginMessage is used when the token endpoint rejects a login without detail.
	DefaultLoginMessage = "invalid credentials"
	// DefaultRegisterMessage is used when registration fails without a field message.
	DefaultRegisterMessage = "registration failed, check your details"
)

// AuthError is a rejected login. Message is the backend detail when it sent one.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return DefaultLoginMessage
	}
	return e.Message
}

// registrationFields is the order in which field errors are reported.
var registrationFields = []string{"username", "email", "password"}

// FieldErrors is a registration rejected by the backend, keyed by wire field name.
type FieldErrors struct {
	Status int
	Fields map[string][]string
}

func (e *FieldErrors) Error() string {
	field, msgs := e.First()
	if field == "" {
		return DefaultRegisterMessage
	}
	return field + ": " + strings.Join(msgs, " ")
}

// First returns the first of username, email and password that carries messages.
func (e *FieldErrors) First() (string, []string) {
	for _, f := range registrationFields {
		if msgs := e.Fields[f]; len(msgs) > 0 {
			return f, msgs
		}
	}
	return "", nil
}

// parseFieldErrors reads a DRF validation body where each field maps to a
// list of messages or a single message.
func parseFieldErrors(body []byte) map[string][]string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for field, value := range raw {
		var list []string
		if err := json.Unmarshal(value, &list); err == nil {
			if len(list) > 0 {
				out[field] = list
			}
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil && single != "" {
			out[field] = []string{single}
		}
	}
	return out
}
