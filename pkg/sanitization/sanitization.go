// Package sanitization provides deterministic redaction helpers used by the
// structured logger and the security event log. Values are sanitized before
// they leave the process so that credentials never reach CloudWatch.
package sanitization

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const redactedValue = "[REDACTED]"

// SanitizationType defines how to sanitize a field.
type SanitizationType int

const (
	FullyRedact SanitizationType = iota
	PartialMask
)

// SensitiveFields defines fields that require explicit sanitization behavior.
//
// This list is intentionally keyed by lowercased field name.
var SensitiveFields = map[string]SanitizationType{
	"password":      FullyRedact,
	"secret":        FullyRedact,
	"client_secret": FullyRedact,
	"secret_key":    FullyRedact,
	"private_key":   FullyRedact,
	"authorization": FullyRedact,
	"access_token":  FullyRedact,
	"refresh_token": FullyRedact,
	"id_token":      FullyRedact,
	"api_token":     FullyRedact,
	"session_token": FullyRedact,

	"client_id":     PartialMask,
	"access_key_id": PartialMask,
}

// SanitizeFieldValue applies the redaction rule for the given field name.
// Unknown fields pass through unchanged.
func SanitizeFieldValue(key string, value any) any {
	rule, ok := SensitiveFields[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return value
	}
	switch rule {
	case PartialMask:
		return MaskTrailing(fmt.Sprintf("%v", value), 4)
	default:
		return redactedValue
	}
}

// MaskTrailing masks all but the last keep characters of value.
func MaskTrailing(value string, keep int) string {
	if value == "" {
		return "(empty)"
	}
	if len(value) <= keep {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-keep) + value[len(value)-keep:]
}

// SanitizeLogString removes control characters that could enable log forging.
func SanitizeLogString(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(' ')
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var messagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`arn:aws:[^:\s]*:[^:\s]*:\d+:\S*`),
	regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`),
	regexp.MustCompile(`(?i)password[=:]\s*\S+`),
	regexp.MustCompile(`(?i)token[=:]\s*\S+`),
	regexp.MustCompile(`(?i)secret[=:]\s*\S+`),
}

// ScrubMessage removes AWS ARNs, key material, and credential pairs from a
// free-form message before it is logged or returned to a caller.
func ScrubMessage(message string) string {
	scrubbed := message
	for _, pattern := range messagePatterns {
		scrubbed = pattern.ReplaceAllString(scrubbed, redactedValue)
	}
	return SanitizeLogString(scrubbed)
}
