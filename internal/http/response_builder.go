package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       any
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes
// only the status.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. Encoding happens before the status is
// written so a failure can still become a 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) error {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return nil
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, err = w.Write(append(payload, '\n'))
	return err
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error string         `json:"error"`
	Kind  core.ErrorKind `json:"kind,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

const (
	msgInternal    = "internal error"
	msgUnavailable = "service temporarily unavailable, please try again"
	msgAssistant   = "the assistant is temporarily unavailable, please try again"
	msgBadBody     = "request body must be a single JSON object"
	msgTooLarge    = "request body too large"
)

var statusByKind = map[core.ErrorKind]int{
	core.KindValidation:         http.StatusUnprocessableEntity,
	core.KindNotFound:           http.StatusNotFound,
	core.KindAmbiguousReference: http.StatusConflict,
	core.KindInvariantViolation: http.StatusConflict,
	core.KindExternalService:    http.StatusServiceUnavailable,
	core.KindInternal:           http.StatusInternalServerError,
}

// errorResponse maps err to a status and a message safe to show the
// client. Domain errors are shown verbatim; infrastructure errors are not.
func errorResponse(err error) (int, errorBody) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{Error: err.Error()}
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, errorBody{Error: msgTooLarge}
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	case errors.Is(err, llm.ErrProviderUnavailable):
		return http.StatusBadGateway, errorBody{Error: msgAssistant, Kind: core.KindExternalService}
	}

	kind := core.KindOf(err)
	status := statusByKind[kind]
	if core.IsDomainError(err) {
		return status, errorBody{Error: err.Error(), Kind: kind}
	}
	if kind == core.KindExternalService {
		return status, errorBody{Error: msgUnavailable, Kind: kind}
	}
	return http.StatusInternalServerError, errorBody{Error: msgInternal, Kind: core.KindInternal}
}

// writeError logs server-side failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err,
			log.FieldErrorKind, body.Kind,
			log.FieldPath, r.URL.Path)
	}
	_ = NewJSONResponse().Status(status).Body(body).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	_ = NewJSONResponse().Status(status).Body(v).Write(w)
}
