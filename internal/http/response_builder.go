package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"feeledger/internal/core"
	"feeledger/internal/log"
)

// JSONResponseBuilder assembles a JSON response with a fluent API.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       any
}

// NewJSONResponse starts a 200 response.
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

// Data sets the value encoded as the body.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.data = v
	return b
}

func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.data == nil || b.statusCode == http.StatusNoContent {
		return
	}
	_ = json.NewEncoder(w).Encode(b.data)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Kinds outside the ledger's own.
const (
	kindBadRequest  = "bad_request"
	kindRateLimited = "rate_limited"
	kindInternal    = "internal"
)

// ErrorResponse builds the error envelope for a status and kind.
func ErrorResponse(status int, kind, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(status).
		Data(errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, kindBadRequest, message)
}

func InternalServerError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, kindInternal, "internal server error")
}

// statusFor maps a ledger error kind onto an HTTP status.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusUnprocessableEntity
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeError renders err. Ledger errors keep their message; anything else is
// logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var bad *badRequestError
	if errors.As(err, &bad) {
		BadRequestError(bad.msg).Write(w)
		return
	}

	kind := core.KindOf(err)
	if kind == "" {
		log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
		InternalServerError().Write(w)
		return
	}
	ErrorResponse(statusFor(kind), string(kind), core.MessageOf(err)).Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Data(v).Write(w)
}
