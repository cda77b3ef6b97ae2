// Package apperr defines the closed set of failure kinds surfaced by the gateway.
//
// Every kind maps to exactly one HTTP status, a short display name and a
// default user-facing message. Handlers return *Error values and the HTTP edge
// renders them with Write as a uniform JSON envelope:
//
//	{"status_code": 401, "error": "Invalid Credentials", "message": "..."}
//
// Wrapped causes are kept for logging and errors.Is/As but are never rendered.
package apperr
