package apiclient

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	jmespath "github.com/jmespath-community/go-jmespath"
	apperrors "github.com/target/bizdesk/internal/errors"
)

// ErrorPaths are JMESPath expressions locating detail in a backend error body.
// Empty fields use the defaults below.
type ErrorPaths struct {
	Message       string
	Code          string
	CorrelationID string
	Fields        string
}

// DefaultErrorPaths match the common Express/Nest style error bodies.
var DefaultErrorPaths = ErrorPaths{
	Message:       "message || error.message || error",
	Code:          "code || error.code",
	CorrelationID: "correlationId || correlation_id || requestId || request_id || error.correlationId",
	Fields:        "errors || error.errors || error.details || details",
}

// forgeryCodes are the structured codes that identify a forgery-token mismatch.
var forgeryCodes = map[string]struct{}{
	"EBADCSRFTOKEN":      {},
	"CSRF_TOKEN_INVALID": {},
	"CSRF_MISMATCH":      {},
}

type errorExtractor struct {
	paths ErrorPaths
}

func newErrorExtractor(p ErrorPaths) (*errorExtractor, error) {
	if p.Message == "" {
		p.Message = DefaultErrorPaths.Message
	}
	if p.Code == "" {
		p.Code = DefaultErrorPaths.Code
	}
	if p.CorrelationID == "" {
		p.CorrelationID = DefaultErrorPaths.CorrelationID
	}
	if p.Fields == "" {
		p.Fields = DefaultErrorPaths.Fields
	}
	for _, expr := range []string{p.Message, p.Code, p.CorrelationID, p.Fields} {
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("invalid error path %q: %w", expr, err)
		}
	}
	return &errorExtractor{paths: p}, nil
}

// errorDetail is what could be learned from an error body. All fields are optional.
type errorDetail struct {
	message       string
	code          string
	correlationID string
	fields        []apperrors.FieldError
}

// forgeryMismatch reports whether a 403 was caused by a stale forgery token. A structured
// code is authoritative; without one a message mentioning csrf is taken as a best-effort hint.
func (d errorDetail) forgeryMismatch() bool {
	if d.code != "" {
		_, ok := forgeryCodes[strings.ToUpper(d.code)]
		return ok
	}
	return strings.Contains(strings.ToLower(d.message), "csrf")
}

func (x *errorExtractor) parse(body []byte) errorDetail {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return errorDetail{}
	}

	var doc any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return errorDetail{message: truncate(trimmed, 200)}
	}
	if s, ok := doc.(string); ok {
		return errorDetail{message: s}
	}

	return errorDetail{
		message:       x.searchString(x.paths.Message, doc),
		code:          x.searchString(x.paths.Code, doc),
		correlationID: x.searchString(x.paths.CorrelationID, doc),
		fields:        fieldErrors(x.search(x.paths.Fields, doc)),
	}
}

func (x *errorExtractor) search(expr string, doc any) any {
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return nil
	}
	return v
}

func (x *errorExtractor) searchString(expr string, doc any) string {
	switch v := x.search(expr, doc).(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

// fieldErrors accepts a list of {field, message} objects, a list of strings, or an object
// mapping field names to a message or list of messages.
func fieldErrors(v any) []apperrors.FieldError {
	switch t := v.(type) {
	case []any:
		out := make([]apperrors.FieldError, 0, len(t))
		for _, item := range t {
			switch it := item.(type) {
			case string:
				if s := strings.TrimSpace(it); s != "" {
					out = append(out, apperrors.FieldError{Message: s})
				}
			case map[string]any:
				msg := firstString(it, "message", "msg", "error")
				if msg == "" {
					continue
				}
				out = append(out, apperrors.FieldError{
					Field:   firstString(it, "field", "path", "param", "property"),
					Message: msg,
				})
			}
		}
		return nilIfEmpty(out)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]apperrors.FieldError, 0, len(keys))
		for _, k := range keys {
			switch msg := t[k].(type) {
			case string:
				out = append(out, apperrors.FieldError{Field: k, Message: msg})
			case []any:
				for _, m := range msg {
					if s, ok := m.(string); ok {
						out = append(out, apperrors.FieldError{Field: k, Message: s})
					}
				}
			}
		}
		return nilIfEmpty(out)
	default:
		return nil
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func nilIfEmpty(in []apperrors.FieldError) []apperrors.FieldError {
	if len(in) == 0 {
		return nil
	}
	return in
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
