// Package handlers provides the JSON request/response plumbing shared by all
// billable HTTP endpoints.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/rs/zerolog/hlog"
)

// AppError is error type for json HTTP responses. The wire form is the
// uniform failure envelope {success:false, message, data?}.
type AppError struct {
	Cause     error       `json:"-"`
	Message   string      `json:"message"`
	ErrorCode string      `json:"-"`
	Code      int         `json:"-"`
	Data      interface{} `json:"data,omitempty"`
}

// Error makes app error an error
func (e *AppError) Error() string {
	msg := "error: " + e.Message
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	return msg
}

// MarshalJSON renders the failure envelope
func (e *AppError) MarshalJSON() ([]byte, error) {
	envelope := map[string]interface{}{
		"success": false,
		"message": e.Message,
	}
	data := e.Data
	if e.ErrorCode != "" {
		m := map[string]interface{}{"error": e.ErrorCode}
		if data != nil {
			m["details"] = data
		}
		data = m
	}
	if data != nil {
		envelope["data"] = data
	}
	return json.Marshal(envelope)
}

// ServeHTTP responds according to the passed AppError
func (e *AppError) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(e.Code)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		panic(err)
	}
}

// WrapError with an additional message as an AppError
func WrapError(err error, msg string, passedCode int) *AppError {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		code := passedCode
		if code == 0 {
			code = http.StatusBadRequest
		}
		// use defaults passed in
		return &AppError{
			Cause:   err,
			Message: msg,
			Code:    code,
		}
	}
	code := appErr.Code
	if code == 0 {
		code = passedCode
	}
	if len(msg) != 0 {
		msg = fmt.Sprintf("%s: ", msg)
	}
	return &AppError{
		Cause:     appErr.Cause,
		Message:   fmt.Sprintf("%s%s", msg, appErr.Message),
		ErrorCode: appErr.ErrorCode,
		Code:      code,
		Data:      appErr.Data,
	}
}

// CodedError creates an AppError carrying a machine-readable error code in
// its data payload, used for quota failures.
func CodedError(err error, errorCode string, code int) *AppError {
	return &AppError{
		Cause:     err,
		Message:   err.Error(),
		ErrorCode: errorCode,
		Code:      code,
	}
}

// RenderContent writes v as the JSON response body
func RenderContent(ctx context.Context, v interface{}, w http.ResponseWriter, status int) *AppError {
	var b bytes.Buffer
	if err := json.NewEncoder(&b).Encode(v); err != nil {
		return WrapError(err, "Error encoding JSON", http.StatusInternalServerError)
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b.Bytes()); err != nil {
		// Should never happen :fingers_crossed:
		return WrapError(err, "Error writing a response", http.StatusInternalServerError)
	}

	return nil
}

// SuccessEnvelope is the uniform success envelope for mutating endpoints.
type SuccessEnvelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RenderEnvelope writes a {success:true, message, data?} response
func RenderEnvelope(ctx context.Context, w http.ResponseWriter, message string, data interface{}) *AppError {
	return RenderContent(ctx, SuccessEnvelope{Success: true, Message: message, Data: data}, w, http.StatusOK)
}

// WrapValidationError from govalidator
func WrapValidationError(err error) *AppError {
	return ValidationError("request body", govalidator.ErrorsByField(err))
}

// ValidationError creates an error to communicate a bad request was formed
func ValidationError(message string, validationErrors interface{}) *AppError {
	return &AppError{
		Message: "Error validating " + message,
		Code:    http.StatusBadRequest,
		Data: map[string]interface{}{
			"validationErrors": validationErrors,
		},
	}
}

// AppHandler is an http.Handler with JSON requests / responses
type AppHandler func(http.ResponseWriter, *http.Request) *AppError

// ServeHTTP responds via the passed handler and handles returned errors
func (fn AppHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e := fn(w, r); e != nil {
		if e.Code >= 500 && e.Cause != nil {
			hlog.FromRequest(r).Error().Err(e.Cause).Str("message", e.Message).Msg("handler failed")
		}
		e.ServeHTTP(w, r)
	}
}

// HealthCheckHandler - reports service health along with build information
func HealthCheckHandler(version, buildTime, commit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = RenderContent(r.Context(), map[string]interface{}{
			"status":    "ok",
			"version":   version,
			"buildTime": buildTime,
			"commit":    commit,
		}, w, http.StatusOK)
	}
}
