// ABOUTME: JSON envelope rendering for taxonomy errors
// ABOUTME: Every gateway failure reaches the client through Write

package apperr

import (
	"encoding/json"
	"net/http"
)

// Envelope is the JSON body written for every failure.
type Envelope struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// EnvelopeFor builds the response body for err. A nil err is rendered as
// an internal error since callers only get here on a failure path.
func EnvelopeFor(err error) Envelope {
	appErr := From(err)
	if appErr == nil {
		appErr = New(KindInternal)
	}
	return Envelope{
		StatusCode: appErr.Status(),
		Error:      appErr.Kind.Name(),
		Message:    appErr.Message,
	}
}

// Write renders err as a JSON envelope with the kind's status code.
func Write(w http.ResponseWriter, err error) {
	env := EnvelopeFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)
	_ = json.NewEncoder(w).Encode(env)
}
