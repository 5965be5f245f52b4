package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidMethod is returned when a verb outside the allowed set is parsed.
var ErrInvalidMethod = errors.New("invalid HTTP method")

// Method is a validated HTTP verb. Values are always upper case and always
// one of the seven allowed verbs; construct via ParseMethod.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

var allowedMethods = map[Method]struct{}{
	MethodGet:     {},
	MethodPost:    {},
	MethodPut:     {},
	MethodPatch:   {},
	MethodDelete:  {},
	MethodHead:    {},
	MethodOptions: {},
}

// ParseMethod normalizes value to upper case and validates it against the
// allowed verb set. Input is case-insensitive.
func ParseMethod(value string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := allowedMethods[m]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, value)
	}
	return m, nil
}

// String returns the verb as a plain string.
func (m Method) String() string {
	return string(m)
}
