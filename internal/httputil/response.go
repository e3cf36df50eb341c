package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/banshee-data/signal.report/internal/monitoring"
	"github.com/banshee-data/signal.report/internal/pipeline"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string         `json:"error"`
	Kind  pipeline.Kind  `json:"kind,omitempty"`
	Stage pipeline.Stage `json:"stage,omitempty"`
}

// WriteJSONError writes a JSON error response with the given status code and message.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorBody{Error: msg})
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes a successful JSON response (200 OK).
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteHTML writes an HTML page.
func WriteHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		monitoring.Logf("failed to write html response: %v", err)
	}
}

// StatusForKind maps a pipeline error kind to an HTTP status. Problems with
// the request itself are 400; well-formed uploads the pipeline cannot
// process are 422.
func StatusForKind(kind pipeline.Kind) int {
	switch kind {
	case pipeline.KindInputMissing, pipeline.KindParse, pipeline.KindInvalidParameter:
		return http.StatusBadRequest
	case pipeline.KindSchema, pipeline.KindInsufficientData, pipeline.KindInvalidInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WritePipelineError reports err with the status its kind maps to. Errors
// that did not come from the pipeline are 500s with a generic message.
func WritePipelineError(w http.ResponseWriter, err error) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		monitoring.Logf("unclassified processing error: %v", err)
		InternalServerError(w, "processing failed")
		return
	}
	WriteJSON(w, StatusForKind(pe.Kind), ErrorBody{
		Error: pe.Message(),
		Kind:  pe.Kind,
		Stage: pe.Stage,
	})
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}
