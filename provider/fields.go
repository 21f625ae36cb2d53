package provider

import (
	"regexp"
	"strings"
)

// emailPattern is the structural email check shared by all adapters.
// Intentionally loose: the vendor is the authority on deliverability,
// this only rejects obviously malformed addresses before any call.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether the address passes the structural check.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// SplitName splits a full name into given and family parts. A single
// token yields the fallback as the family name, since most vendor
// directories require both.
func SplitName(fullName, fallback string) (given, family string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "", fallback
	}
	given = parts[0]
	family = strings.Join(parts[1:], " ")
	if family == "" {
		family = fallback
	}
	return given, family
}

// DataString reads a string field from validated input data.
func DataString(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return v
}

// DataBool reads a bool field from validated input data.
func DataBool(data map[string]any, key string) bool {
	v, _ := data[key].(bool)
	return v
}

// DataStrings reads a string slice field from validated input data.
// Accepts both []string (same-process values) and []any (values that
// round-tripped through JSON in the job store).
func DataStrings(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
