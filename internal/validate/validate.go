// Package validate holds the pure field checks applied to collected form values
// before anything is sent to the backend.
package validate

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength is the only password rule the backend-facing forms enforce today.
const MinPasswordLength = 8

// \p{Z} covers the Unicode spaces RE2's \s leaves out.
var emailPattern = regexp.MustCompile(`^[^\s\p{Z}@]+@[^\s\p{Z}@]+\.[^\s\p{Z}@]+$`)

// Messages returned per failing rule, keyed by field id in Result.Errors.
const (
	MsgRequired     = "this field is required"
	MsgEmail        = "invalid email"
	MsgPassword     = "password must be at least 8 characters"
	MsgStrongPasswd = "password must be at least 8 characters and mix upper and lower case letters, digits and symbols"
	MsgConfirmation = "passwords do not match"
)

// PasswordPolicy selects which password rule a field is checked against.
type PasswordPolicy int

const (
	// PasswordLength enforces MinPasswordLength only.
	PasswordLength PasswordPolicy = iota
	// PasswordStrong additionally requires lower, upper, digit and symbol characters.
	PasswordStrong
)

// Rule lists the constraints applied to one field.
type Rule struct {
	Required bool
	Email    bool
	Password bool
	Policy   PasswordPolicy
	// ConfirmOf names the field this one must equal exactly.
	ConfirmOf string
}

// Rules maps field ids to their rule.
type Rules map[string]Rule

// Result is the outcome of ValidateForm.
type Result struct {
	Valid  bool
	Errors map[string]string
}

// Err returns the failures as *Errors, or nil when the form is valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &Errors{Fields: r.Errors}
}

// IsRequired reports whether value is non-empty after trimming whitespace.
func IsRequired(value string) bool {
	return strings.TrimSpace(value) != ""
}

// IsValidEmail reports whether value looks like local@domain.tld.
func IsValidEmail(value string) bool {
	return emailPattern.MatchString(value)
}

// IsValidPassword reports whether value has at least MinPasswordLength characters.
// Character classes are not checked; see IsStrongPassword.
func IsValidPassword(value string) bool {
	return utf8.RuneCountInString(value) >= MinPasswordLength
}

// IsStrongPassword applies the length rule plus lower, upper, digit and symbol classes.
func IsStrongPassword(value string) bool {
	if !IsValidPassword(value) {
		return false
	}
	var lower, upper, digit, symbol bool
	for _, r := range value {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return lower && upper && digit && symbol
}

// ValidateForm applies rules to fields. Every field is evaluated; each invalid
// field gets one message, from the first failing check in the order
// required, email, password, confirmation. Empty optional fields pass.
func ValidateForm(fields map[string]string, rules Rules) Result {
	res := Result{Valid: true, Errors: map[string]string{}}

	ids := make([]string, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if msg := checkField(fields, id, rules[id]); msg != "" {
			res.Valid = false
			res.Errors[id] = msg
		}
	}
	return res
}

func checkField(fields map[string]string, id string, rule Rule) string {
	value := fields[id]
	if !IsRequired(value) {
		if rule.Required {
			return MsgRequired
		}
		return ""
	}
	if rule.Email && !IsValidEmail(value) {
		return MsgEmail
	}
	if rule.Password {
		switch rule.Policy {
		case PasswordStrong:
			if !IsStrongPassword(value) {
				return MsgStrongPasswd
			}
		default:
			if !IsValidPassword(value) {
				return MsgPassword
			}
		}
	}
	if rule.ConfirmOf != "" && value != fields[rule.ConfirmOf] {
		return MsgConfirmation
	}
	return ""
}
