package store

import (
	"context"
	"errors"
	"time"

	"onelibrary/pkg/domain"
)

var (
	// ErrConflict is returned when a write would break a uniqueness constraint:
	// a duplicate ISBN or a second active loan for the same book.
	ErrConflict = errors.New("store: conflict")
	// ErrNotFound is returned by updates that target a missing row.
	ErrNotFound = errors.New("store: not found")
)

// BookRepository persists books.
type BookRepository interface {
	CreateBook(ctx context.Context, b domain.Book) (domain.Book, error)
	HasISBN(ctx context.Context, isbn string) (bool, error)
	GetBook(ctx context.Context, id int64) (domain.Book, bool, error)
	GetBookByISBN(ctx context.Context, isbn string) (domain.Book, bool, error)
}

// LoanRepository persists loans. Returned loans always carry their Book.
type LoanRepository interface {
	CreateLoan(ctx context.Context, l domain.Loan) (domain.Loan, error)
	SaveLoan(ctx context.Context, l domain.Loan) (domain.Loan, error)
	GetLoan(ctx context.Context, id int64) (domain.Loan, bool, error)
	HasActiveLoan(ctx context.Context, bookID int64) (bool, error)
	FindLoans(ctx context.Context, filter domain.LoanFilter, page domain.PageRequest) (domain.Page[domain.Loan], error)
	ListLoansByBook(ctx context.Context, bookID int64, page domain.PageRequest) (domain.Page[domain.Loan], error)
	ListActiveLoansBefore(ctx context.Context, cutoff time.Time) ([]domain.Loan, error)
}

// Store is the full persistence surface used by the library service.
type Store interface {
	BookRepository
	LoanRepository
	Ping(ctx context.Context) error
	Close() error
}
