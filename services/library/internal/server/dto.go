package server

import "onelibrary/pkg/domain"

const loanDateLayout = "2006-01-02"

type bookRequest struct {
	ISBN   string `json:"isbn"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

func (r bookRequest) toDomain() domain.Book {
	return domain.Book{ISBN: r.ISBN, Title: r.Title, Author: r.Author}
}

type bookResponse struct {
	ID     int64  `json:"id"`
	ISBN   string `json:"isbn"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

func bookToResponse(b domain.Book) bookResponse {
	return bookResponse{ID: b.ID, ISBN: b.ISBN, Title: b.Title, Author: b.Author}
}

type loanRequest struct {
	ISBN     string `json:"isbn"`
	Customer string `json:"customer"`
	Email    string `json:"email,omitempty"`
}

type returnRequest struct {
	Returned *bool `json:"returned"`
}

type loanResponse struct {
	ID       int64        `json:"id"`
	ISBN     string       `json:"isbn"`
	Customer string       `json:"customer"`
	Email    string       `json:"email,omitempty"`
	LoanDate string       `json:"loanDate"`
	Returned bool         `json:"returned"`
	Book     bookResponse `json:"book"`
}

func loanToResponse(l domain.Loan) loanResponse {
	return loanResponse{
		ID:       l.ID,
		ISBN:     l.Book.ISBN,
		Customer: l.Customer,
		Email:    l.CustomerEmail,
		LoanDate: l.LoanDate.UTC().Format(loanDateLayout),
		Returned: l.Returned,
		Book:     bookToResponse(l.Book),
	}
}

type loanPageResponse struct {
	Content       []loanResponse `json:"content"`
	TotalElements int64          `json:"totalElements"`
	TotalPages    int64          `json:"totalPages"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
}

func loanPageToResponse(p domain.Page[domain.Loan]) loanPageResponse {
	out := loanPageResponse{
		Content:       make([]loanResponse, 0, len(p.Items)),
		TotalElements: p.Total,
		Page:          p.Page,
		Size:          p.Size,
	}
	if p.Size > 0 {
		out.TotalPages = (p.Total + int64(p.Size) - 1) / int64(p.Size)
	}
	for _, l := range p.Items {
		out.Content = append(out.Content, loanToResponse(l))
	}
	return out
}
