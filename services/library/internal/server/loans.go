package server

import (
	"encoding/json"
	"io"
	"net/http"

	"onelibrary/pkg/domain"
)

func (s *Server) handleLoans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateLoan(w, r)
	case http.MethodGet:
		s.handleFindLoans(w, r)
	default:
		methodNotAllowed(w)
	}
}

// handleCreateLoan answers 201 with the new loan id as the body.
func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	if !s.allowWrite(w, r, "loans") {
		return
	}
	var req loanRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	loan, err := s.app.LoanByISBN(r.Context(), req.ISBN, req.Customer, req.Email)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan.ID)
}

func (s *Server) handleFindLoans(w http.ResponseWriter, r *http.Request) {
	page, size, ok := s.pageFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidPaging)
		return
	}
	q := r.URL.Query()
	filter := domain.LoanFilter{ISBN: q.Get("isbn"), Customer: q.Get("customer")}
	loans, err := s.app.FindLoans(r.Context(), filter, domain.PageRequest{Page: page, Size: size})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loanPageToResponse(loans))
}

// /loans/late or /loans/{id}
func (s *Server) handleLoanByID(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/loans/late" {
		s.handleLateLoans(w, r)
		return
	}
	id, rest, ok := idFromPath(r.URL.Path, "/loans/")
	if !ok || rest != "" {
		notFound(w, msgNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		loan, found, err := s.app.GetLoan(r.Context(), id)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		if !found {
			notFound(w, msgLoanNotFound)
			return
		}
		writeJSON(w, http.StatusOK, loanToResponse(loan))
	case http.MethodPatch:
		s.handleReturnLoan(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleReturnLoan(w http.ResponseWriter, r *http.Request, id int64) {
	if !s.allowWrite(w, r, "loans") {
		return
	}
	var req returnRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if req.Returned == nil {
		writeErrorDetails(w, http.StatusBadRequest, msgValidation, []errorDetail{{Field: "returned", Reason: "must be set"}})
		return
	}
	loan, err := s.app.SetReturned(r.Context(), id, *req.Returned)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loanToResponse(loan))
}

func (s *Server) handleLateLoans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	loans, err := s.app.LateLoans(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	items := make([]loanResponse, 0, len(loans))
	for _, l := range loans {
		items = append(items, loanToResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":        items,
		"count":        len(items),
		"lateLoanDays": s.app.LateLoanDays(),
	})
}
