package datastore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// PostgREST / Postgres error codes the submission layer cares about.
const (
	CodeUniqueViolation = "23505"
	CodeUndefinedTable  = "42P01"
	CodeInsufficientACL = "42501"
	CodeJWTExpired      = "PGRST301"
)

// APIError is a non-2xx response from the data store.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
	Details    string `json:"details,omitempty"`
	Hint       string `json:"hint,omitempty"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("datastore: %s (status=%d)", e.Message, e.StatusCode)
	case e.Body != "":
		return fmt.Sprintf("datastore: %s (status=%d)", e.Body, e.StatusCode)
	default:
		return fmt.Sprintf("datastore: HTTP %d", e.StatusCode)
	}
}

// Duplicate reports whether the store rejected the row as already present.
func (e *APIError) Duplicate() bool {
	return e.Code == CodeUniqueViolation || e.StatusCode == http.StatusConflict
}

// Misconfigured reports failures caused by credentials, permissions or schema.
func (e *APIError) Misconfigured() bool {
	switch e.Code {
	case CodeUndefinedTable, CodeInsufficientACL, CodeJWTExpired:
		return true
	}
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, apiErr); err != nil {
		apiErr.Code, apiErr.Message, apiErr.Details, apiErr.Hint = "", "", "", ""
	}
	if apiErr.Message == "" {
		apiErr.Body = truncate(strings.TrimSpace(string(body)), 300)
	}
	apiErr.StatusCode = status
	return apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
