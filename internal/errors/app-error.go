package app_error

import (
	"encoding/json"
	"net/http"
)

// Kind classifies how a room session reacts to a failure.
type Kind int

const (
	KindUnspecified Kind = iota
	// KindFatal ends session start; no automatic retry.
	KindFatal
	// KindDegraded lets the session continue with reduced display data.
	KindDegraded
	// KindTransient is retried once after a fixed delay.
	KindTransient
	// KindItem is reported locally and retried on the next natural trigger.
	KindItem
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindDegraded:
		return "degraded"
	case KindTransient:
		return "transient"
	case KindItem:
		return "item"
	default:
		return "unspecified"
	}
}

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Kind    Kind   `json:"-"`
}

func (e AppError) Error() string {
	return e.Message
}

func (e AppError) JSON(w http.ResponseWriter) error {
	return json.NewEncoder(w).Encode(e)
}

// WithKind returns a copy of e tagged with k.
func (e *AppError) WithKind(k Kind) *AppError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Kind = k
	return &cp
}

func (e *AppError) IsFatal() bool {
	return e != nil && e.Kind == KindFatal
}

func NewAppError(code int, msg, field string) *AppError {
	return &AppError{
		Code:    code,
		Message: msg,
		Field:   field,
	}
}

func NotFound(msg, field string) *AppError {
	return NewAppError(http.StatusNotFound, msg, field)
}

func Internal(msg, field string) *AppError {
	return NewAppError(http.StatusInternalServerError, msg, field)
}

func BadRequest(msg, field string) *AppError {
	return NewAppError(http.StatusBadRequest, msg, field)
}
