package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/UkralStul/comments-service/internal/domain"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

func writeProblem(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorBody{Error: errorPayload{Code: code, Message: message, Details: details}})
}

// writeError переводит ошибки домена в HTTP-ответ.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr     *domain.ValidationError
		nf       *domain.NotFoundError
		conflict *domain.ConflictError
		tooBig   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &vErr):
		writeProblem(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input.", vErr.Fields)
	case errors.As(err, &nf):
		writeProblem(w, http.StatusNotFound, "NOT_FOUND", nf.Error(), nil)
	case errors.As(err, &conflict):
		writeProblem(w, http.StatusConflict, "CONFLICT", conflict.Message, map[string][]string{"attachment_ids": conflict.IDs})
	case errors.As(err, &tooBig):
		writeProblem(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body is too large.", nil)
	default:
		slog.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		writeProblem(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error.", nil)
	}
}

// authError - ответ middleware аутентификации в общем формате ошибок.
func authError(w http.ResponseWriter, r *http.Request, status int, message string) {
	code := "UNAUTHORIZED"
	if status == http.StatusForbidden {
		code = "FORBIDDEN"
	}
	writeProblem(w, status, code, message, nil)
}
