package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/wildwatch/wildwatch-go/internal/errors"
)

// errorBody covers every error shape the backend is known to produce:
// {errors:{field:[...]}}, {detail}, {error}, or a plain string body.
type errorBody struct {
	Errors map[string]json.RawMessage `json:"errors"`
	Detail string                     `json:"detail"`
	Error  string                     `json:"error"`
}

// decodeError collapses a non-2xx response into one EnhancedError with a
// human-readable message and the field errors attached as structured context.
func decodeError(status int, raw []byte, endpoint string) error {
	message, details := normalizeErrorBody(raw)
	if message == "" {
		message = defaultMessageFor(status)
	}

	builder := errors.Newf("%s", message).
		Component("api").
		Category(categoryFor(status)).
		Context("endpoint", endpoint).
		Context("status", status)
	if len(details) > 0 {
		builder = builder.Context("details", details)
	}
	return builder.Build()
}

// normalizeErrorBody extracts a message and optional field detail map from
// the response body, tolerating all known backend error shapes.
func normalizeErrorBody(raw []byte) (message string, details map[string]string) {
	if len(raw) == 0 {
		return "", nil
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		// Plain string payloads arrive either as JSON strings or raw text
		var plain string
		if json.Unmarshal(raw, &plain) == nil {
			return plain, nil
		}
		return strings.TrimSpace(string(raw)), nil
	}

	switch {
	case len(body.Errors) > 0:
		return flattenFieldErrors(body.Errors)
	case body.Detail != "":
		return body.Detail, nil
	case body.Error != "":
		return body.Error, nil
	default:
		return "", nil
	}
}

// flattenFieldErrors renders {field: [messages]} into "field: msg; ..." with
// non_field_errors and detail taking precedence, the way the dashboard
// presented them. Field names keep their order stable for deterministic
// messages.
func flattenFieldErrors(fieldErrors map[string]json.RawMessage) (string, map[string]string) {
	details := make(map[string]string, len(fieldErrors))
	for field, raw := range fieldErrors {
		details[field] = decodeFieldMessages(raw)
	}

	if msg, ok := details["non_field_errors"]; ok && msg != "" {
		return msg, details
	}
	if msg, ok := details["detail"]; ok && msg != "" {
		return msg, details
	}

	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		name := strings.ReplaceAll(field, "_", " ")
		parts = append(parts, fmt.Sprintf("%s: %s", name, details[field]))
	}
	return strings.Join(parts, "; "), details
}

// decodeFieldMessages joins a field's message list; single-string and nested
// values degrade to their raw JSON text.
func decodeFieldMessages(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	return string(raw)
}

// categoryFor maps HTTP status codes to the client error taxonomy.
func categoryFor(status int) errors.ErrorCategory {
	switch status {
	case 400:
		return errors.CategoryValidation
	case 401:
		return errors.CategoryAuth
	case 403:
		return errors.CategoryPermission
	case 404:
		return errors.CategoryNotFound
	default:
		return errors.CategoryServer
	}
}

// defaultMessageFor supplies a fallback when the body carried no message.
func defaultMessageFor(status int) string {
	switch status {
	case 400:
		return "request rejected by server"
	case 401:
		return "authentication required"
	case 403:
		return "permission denied"
	case 404:
		return "resource not found"
	default:
		return fmt.Sprintf("server error (status %d)", status)
	}
}
