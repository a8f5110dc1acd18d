package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"onelibrary/pkg/domain"
)

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateBook(w, r)
	case http.MethodGet:
		s.handleGetBookByISBN(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	if !s.allowWrite(w, r, "books") {
		return
	}
	var req bookRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	book, err := s.app.CreateBook(r.Context(), req.toDomain())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookToResponse(book))
}

func (s *Server) handleGetBookByISBN(w http.ResponseWriter, r *http.Request) {
	isbn := strings.TrimSpace(r.URL.Query().Get("isbn"))
	if isbn == "" {
		writeErrorDetails(w, http.StatusBadRequest, msgValidation, []errorDetail{{Field: "isbn", Reason: "query parameter is required"}})
		return
	}
	book, ok, err := s.app.GetBookByISBN(r.Context(), isbn)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if !ok {
		notFound(w, msgBookNotFound)
		return
	}
	writeJSON(w, http.StatusOK, bookToResponse(book))
}

// /books/{id} or /books/{id}/loans
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := idFromPath(r.URL.Path, "/books/")
	if !ok || (rest != "" && rest != "loans") {
		notFound(w, msgNotFound)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	book, found, err := s.app.GetBook(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if !found {
		notFound(w, msgBookNotFound)
		return
	}
	if rest == "" {
		writeJSON(w, http.StatusOK, bookToResponse(book))
		return
	}

	page, size, ok := s.pageFromQuery(r)
	if !ok {
		writeError(w, http.StatusBadRequest, msgInvalidPaging)
		return
	}
	loans, err := s.app.LoansByBook(r.Context(), book.ID, domain.PageRequest{Page: page, Size: size})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loanPageToResponse(loans))
}
