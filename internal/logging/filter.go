// Package logging provides the process logger and the filters that keep
// credentials out of it.
//
// Agents that report usage to the governor routinely pass through model
// provider keys and Redis connection strings, so every file sink is wrapped
// in a FilteringWriter and every logger carries a SensitiveDataHook.
package logging

import (
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// RedactedValue is the replacement string for sensitive data.
const RedactedValue = "[REDACTED]"

// redaction pairs a pattern with its replacement template.
type redaction struct {
	re   *regexp.Regexp
	repl string
}

var redactions = []redaction{ //nolint:gochecknoglobals // compiled once
	// Anthropic API keys
	{regexp.MustCompile(`sk-ant-api[a-zA-Z0-9_-]+`), RedactedValue},

	// OpenAI style keys
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), RedactedValue},

	// GitHub tokens
	{regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{20,}`), RedactedValue},

	// Passwords embedded in redis:// and rediss:// URLs. Host and db survive.
	{regexp.MustCompile(`(rediss?://[^:@/\s"]*:)[^@\s"]+@`), "${1}" + RedactedValue + "@"},

	{regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?([a-zA-Z0-9_-]{16,})["']?`), RedactedValue},
	{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_-]{20,}`), RedactedValue},
	{regexp.MustCompile(`(?i)authorization\s*[:=]\s*["']?[a-zA-Z0-9_-]{20,}["']?`), RedactedValue},
	{regexp.MustCompile(`(?i)(secret|password|credential|passwd|pwd)\s*[:=]\s*["']?[^\s"']{8,}["']?`), RedactedValue},
	{regexp.MustCompile(`(?i)-----BEGIN[A-Z\s]+PRIVATE KEY-----`), RedactedValue},
	{regexp.MustCompile(`(?i)(token|auth)\s*[:=]\s*["']?[a-zA-Z0-9+/=]{32,}["']?`), RedactedValue},
}

// sensitiveFieldNames is matched against whole field names and against
// underscore or dash separated words inside them.
var sensitiveFieldNames = map[string]struct{}{ //nolint:gochecknoglobals // lookup table
	"api_key":           {},
	"apikey":            {},
	"api-key":           {},
	"auth_token":        {},
	"password":          {},
	"passwd":            {},
	"secret":            {},
	"credential":        {},
	"credentials":       {},
	"private_key":       {},
	"access_token":      {},
	"refresh_token":     {},
	"bearer":            {},
	"authorization":     {},
	"redis_password":    {},
	"anthropic_api_key": {},
	"openai_api_key":    {},
}

var fieldSeparators = []string{"_", "-"} //nolint:gochecknoglobals // shared separators

// SensitiveDataHook flags log events whose message looks like it carries a
// credential. zerolog hooks cannot rewrite the message, so redaction itself
// happens in FilteringWriter.
type SensitiveDataHook struct{}

// NewSensitiveDataHook creates a new SensitiveDataHook.
func NewSensitiveDataHook() *SensitiveDataHook {
	return &SensitiveDataHook{}
}

// Run implements zerolog.Hook.
func (h *SensitiveDataHook) Run(e *zerolog.Event, _ zerolog.Level, msg string) {
	if ContainsSensitiveData(msg) {
		e.Bool("contains_filtered_data", true)
	}
}

// ContainsSensitiveData reports whether s matches any credential pattern.
func ContainsSensitiveData(s string) bool {
	for _, r := range redactions {
		if r.re.MatchString(s) {
			return true
		}
	}
	return false
}

// FilterSensitiveValue replaces every credential-looking substring of value.
func FilterSensitiveValue(value string) string {
	result := value
	for _, r := range redactions {
		result = r.re.ReplaceAllString(result, r.repl)
	}
	return result
}

// IsSensitiveFieldName reports whether a structured log field name implies a
// secret value, e.g. "password", "db_password" or "redis-password-file".
// Partial words such as "secretariat" do not match.
func IsSensitiveFieldName(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	if _, ok := sensitiveFieldNames[lower]; ok {
		return true
	}
	for sensitive := range sensitiveFieldNames {
		if matchesSensitivePattern(lower, sensitive) {
			return true
		}
	}
	return false
}

// matchesSensitivePattern reports whether sensitive appears in name either
// exactly or bounded by separators.
func matchesSensitivePattern(name, sensitive string) bool {
	if name == "" || sensitive == "" {
		return false
	}
	if name == sensitive {
		return true
	}
	return containsWordBoundary(name, sensitive, fieldSeparators)
}

// containsWordBoundary reports whether word occurs in s as a prefix followed
// by a separator, a suffix preceded by one, or an infix surrounded by them.
// An exact match is not a boundary match.
func containsWordBoundary(s, word string, seps []string) bool {
	if s == "" || word == "" || s == word {
		return false
	}
	for _, sep := range seps {
		if strings.HasPrefix(s, word+sep) || strings.HasSuffix(s, sep+word) {
			return true
		}
		for _, other := range seps {
			if strings.Contains(s, sep+word+other) {
				return true
			}
		}
	}
	return false
}

// RedactIfSensitive returns RedactedValue when fieldName implies a secret and
// the pattern-filtered value otherwise.
func RedactIfSensitive(fieldName, value string) string {
	if IsSensitiveFieldName(fieldName) {
		return RedactedValue
	}
	return FilterSensitiveValue(value)
}

// SafeValue is shorthand for RedactIfSensitive at log call sites:
//
//	logger.Info().Str("redis_url", logging.SafeValue("redis_url", url)).Msg("checkpoint backend ready")
func SafeValue(fieldName, value string) string {
	return RedactIfSensitive(fieldName, value)
}

// FilteringWriter redacts credentials from everything written through it.
type FilteringWriter struct {
	w io.Writer
}

// NewFilteringWriter wraps w.
func NewFilteringWriter(w io.Writer) *FilteringWriter {
	return &FilteringWriter{w: w}
}

// Write implements io.Writer. It reports len(p) on success even when the
// filtered output is shorter, so zerolog never sees a short write.
func (fw *FilteringWriter) Write(p []byte) (int, error) {
	if _, err := fw.w.Write([]byte(FilterSensitiveValue(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
