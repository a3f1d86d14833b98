package identifier

import (
	"fmt"
)

// Snowflake identifiers issued by the chat platform are numeric strings of
// 17 to 19 digits. Values are checked with a length gate followed by a
// byte scan, so pathological inputs are rejected without ever being
// matched against a pattern.
const (
	minLength = 17
	maxLength = 19
)

// InvalidInputError reports a malformed identifier. It carries only the
// field name; the accepted format is deliberately not included in the
// message so callers can surface the error verbatim.
type InvalidInputError struct {
	Field string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s", e.Field)
}

// IsInvalidInput reports whether err is an identifier validation failure.
func IsInvalidInput(err error) bool {
	_, ok := err.(*InvalidInputError)
	return ok
}

// Validate checks that value is a well-formed platform identifier.
// field names the identifier being validated (e.g. "guild_id") and is the
// only detail carried by the returned error.
func Validate(value, field string) error {
	if len(value) < minLength || len(value) > maxLength {
		return &InvalidInputError{Field: field}
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return &InvalidInputError{Field: field}
		}
	}
	return nil
}

// ValidateAny checks an untyped value, as received at JSON or map
// boundaries. Only primitive strings are accepted; numbers, byte slices,
// Stringer-style wrappers, and everything else fail without coercion.
func ValidateAny(value any, field string) error {
	s, ok := value.(string)
	if !ok {
		return &InvalidInputError{Field: field}
	}
	return Validate(s, field)
}

// ValidateAll validates a slice of identifiers under a single field name.
func ValidateAll(values []string, field string) error {
	for _, v := range values {
		if err := Validate(v, field); err != nil {
			return err
		}
	}
	return nil
}
