package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"onelibrary/internal/util"
	"onelibrary/services/library/internal/app"
)

const (
	msgInvalidJSON   = "invalid JSON body"
	msgValidation    = "validation failed"
	msgInvalidPaging = "invalid paging"
	msgNotFound      = "not found"
	msgBookNotFound  = "book not found"
	msgLoanNotFound  = "loan not found"
	msgRateLimited   = "rate limit exceeded"
	msgInternal      = "internal error"
)

type errorDetail struct {
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

type errorResponse struct {
	Error     string        `json:"error"`
	Code      string        `json:"code"`
	RequestID string        `json:"requestId,omitempty"`
	Details   []errorDetail `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorDetails(w, status, msg, nil)
}

func writeErrorDetails(w http.ResponseWriter, status int, msg string, details []errorDetail) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForLibrary(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
		Details:   details,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

// writeAppError maps core errors onto HTTP. Business errors are the client's
// problem and are not logged as faults.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		details := make([]errorDetail, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			details = append(details, errorDetail{Field: f.Field, Reason: f.Reason})
		}
		writeErrorDetails(w, http.StatusBadRequest, msgValidation, details)
	case errors.Is(err, app.ErrLoanNotFound):
		notFound(w, msgLoanNotFound)
	case errors.Is(err, app.ErrBusinessRule):
		util.LoggerFromContext(r.Context()).Info("business rule rejected request", "reason", err.Error())
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func errorCodeForLibrary(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch message {
	case app.ErrDuplicateISBN.Error():
		return "BOOK_DUPLICATE_ISBN"
	case app.ErrBookAlreadyLoaned.Error():
		return "LOAN_BOOK_ALREADY_LOANED"
	case app.ErrBookNotFound.Error():
		return "LOAN_BOOK_NOT_FOUND"
	case app.ErrLoanReopen.Error():
		return "LOAN_REOPEN_NOT_ALLOWED"
	case msgBookNotFound:
		return "BOOK_NOT_FOUND"
	case msgLoanNotFound:
		return "LOAN_NOT_FOUND"
	case strings.ToLower(msgInvalidJSON):
		return "REQUEST_INVALID_JSON"
	case msgValidation:
		return "REQUEST_VALIDATION_FAILED"
	case msgInvalidPaging:
		return "REQUEST_INVALID_PAGING"
	case msgRateLimited:
		return "SYSTEM_RATE_LIMITED"
	case "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case msgNotFound:
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "REQUEST_ERROR"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
