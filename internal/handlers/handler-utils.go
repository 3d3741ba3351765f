package handlers

import (
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/crew-chat/internal/dtos"
	app_error "github.com/xenn00/crew-chat/internal/errors"
	"github.com/xenn00/crew-chat/internal/middleware"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds request bodies; message bodies are capped at 4000 characters anyway.
const maxBodyBytes = 64 << 10

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

type HandlerFunc func(w http.ResponseWriter, r *http.Request) *app_error.AppError

func WrapHandler(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			reqID := middleware.GetRequestId(r.Context())
			event := log.Warn()
			if err.Code >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.Err(err).Int("code", err.Code).Str("requestID", reqID).Str("path", r.URL.Path).Msg("request failed")

			WriteJSON(w, err.Code, dtos.Response[any]{
				Message:   "Error occur",
				Errors:    dtos.NewErrorResponse(err),
				RequestID: reqID,
			})
		}
	}
}

func CreateResponse[T any](message string, data T, requestId string) dtos.Response[T] {
	return dtos.Response[T]{
		Message:   message,
		Data:      data,
		RequestID: requestId,
	}
}

// Respond writes data wrapped in the standard envelope.
func Respond[T any](w http.ResponseWriter, r *http.Request, status int, message string, data T) {
	WriteJSON(w, status, CreateResponse(message, data, middleware.GetRequestId(r.Context())))
}

// DecodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func DecodeBody(r *http.Request, dst any) *app_error.AppError {
	defer r.Body.Close()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return app_error.BadRequest("Invalid JSON", "body")
	}
	return nil
}

func CurrentUser(r *http.Request) (string, *app_error.AppError) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		return "", app_error.NewAppError(http.StatusUnauthorized, "user id is not found in context", "context")
	}
	return userID, nil
}
