package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"onelibrary/internal/util"
	"onelibrary/pkg/domain"
	"onelibrary/pkg/events"
	"onelibrary/pkg/store"
)

// CreateLoan lends loan.Book to loan.Customer. The book must exist and must
// not already have an unreturned loan.
func (a *App) CreateLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error) {
	loan.Customer = strings.TrimSpace(loan.Customer)
	loan.CustomerEmail = strings.TrimSpace(loan.CustomerEmail)

	var v validator
	v.check("book", loan.Book.ID > 0, "must reference a book")
	v.required("customer", loan.Customer)
	v.maxLen("customer", loan.Customer, maxFieldLen)
	if loan.CustomerEmail != "" {
		_, err := mail.ParseAddress(loan.CustomerEmail)
		v.check("email", err == nil, "is not a valid address")
	}
	if err := v.err(); err != nil {
		return domain.Loan{}, err
	}

	book, ok, err := a.store.GetBook(ctx, loan.Book.ID)
	if err != nil {
		return domain.Loan{}, fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return domain.Loan{}, ErrBookNotFound
	}
	active, err := a.store.HasActiveLoan(ctx, book.ID)
	if err != nil {
		return domain.Loan{}, fmt.Errorf("check active loan: %w", err)
	}
	if active {
		return domain.Loan{}, ErrBookAlreadyLoaned
	}

	loan.ID = 0
	loan.Book = book
	loan.Returned = false
	if loan.LoanDate.IsZero() {
		loan.LoanDate = a.today()
	}
	saved, err := a.store.CreateLoan(ctx, loan)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Loan{}, ErrBookAlreadyLoaned
		}
		return domain.Loan{}, fmt.Errorf("save loan: %w", err)
	}
	util.LoggerFromContext(ctx).Info("loan created",
		"loan_id", saved.ID,
		"book_id", book.ID,
		"isbn", book.ISBN,
	)
	a.publish(ctx, events.TypeLoanCreated, saved)
	return saved, nil
}

// LoanByISBN resolves the book by ISBN and creates the loan.
func (a *App) LoanByISBN(ctx context.Context, isbn, customer, email string) (domain.Loan, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return domain.Loan{}, &ValidationError{Fields: []FieldError{{Field: "isbn", Reason: "must not be empty"}}}
	}
	book, ok, err := a.store.GetBookByISBN(ctx, isbn)
	if err != nil {
		return domain.Loan{}, fmt.Errorf("load book: %w", err)
	}
	if !ok {
		return domain.Loan{}, ErrBookNotFound
	}
	return a.CreateLoan(ctx, domain.Loan{Book: book, Customer: customer, CustomerEmail: email})
}

// GetLoan looks a loan up by id.
func (a *App) GetLoan(ctx context.Context, id int64) (domain.Loan, bool, error) {
	return a.store.GetLoan(ctx, id)
}

// UpdateLoan persists the loan state as given.
func (a *App) UpdateLoan(ctx context.Context, loan domain.Loan) (domain.Loan, error) {
	saved, err := a.store.SaveLoan(ctx, loan)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.Loan{}, ErrLoanNotFound
	case errors.Is(err, store.ErrConflict):
		return domain.Loan{}, ErrBookAlreadyLoaned
	case err != nil:
		return domain.Loan{}, fmt.Errorf("update loan: %w", err)
	}
	return saved, nil
}

// SetReturned moves a loan to the returned state. Returning twice is a no-op;
// a returned loan cannot go back to active.
func (a *App) SetReturned(ctx context.Context, id int64, returned bool) (domain.Loan, error) {
	loan, ok, err := a.store.GetLoan(ctx, id)
	if err != nil {
		return domain.Loan{}, fmt.Errorf("load loan: %w", err)
	}
	if !ok {
		return domain.Loan{}, ErrLoanNotFound
	}
	if loan.Returned && !returned {
		return domain.Loan{}, ErrLoanReopen
	}
	wasReturned := loan.Returned
	loan.Returned = returned
	saved, err := a.UpdateLoan(ctx, loan)
	if err != nil {
		return domain.Loan{}, err
	}
	if returned && !wasReturned {
		util.LoggerFromContext(ctx).Info("loan returned", "loan_id", id, "book_id", saved.Book.ID)
		a.publish(ctx, events.TypeLoanReturned, saved)
	}
	return saved, nil
}

// ReturnLoan marks the loan as returned.
func (a *App) ReturnLoan(ctx context.Context, id int64) (domain.Loan, error) {
	return a.SetReturned(ctx, id, true)
}

// FindLoans pages through loans matching the ISBN OR the customer.
func (a *App) FindLoans(ctx context.Context, filter domain.LoanFilter, page domain.PageRequest) (domain.Page[domain.Loan], error) {
	filter.ISBN = strings.TrimSpace(filter.ISBN)
	filter.Customer = strings.TrimSpace(filter.Customer)
	res, err := a.store.FindLoans(ctx, filter, a.PageRequest(page.Page, page.Size))
	if err != nil {
		return res, fmt.Errorf("find loans: %w", err)
	}
	return res, nil
}

// LoansByBook pages through the loan history of one book.
func (a *App) LoansByBook(ctx context.Context, bookID int64, page domain.PageRequest) (domain.Page[domain.Loan], error) {
	res, err := a.store.ListLoansByBook(ctx, bookID, a.PageRequest(page.Page, page.Size))
	if err != nil {
		return res, fmt.Errorf("list loans by book: %w", err)
	}
	return res, nil
}

// LateLoans returns every unreturned loan dated before today minus the late threshold.
func (a *App) LateLoans(ctx context.Context) ([]domain.Loan, error) {
	cutoff := domain.LateCutoff(a.now(), a.lateLoanDays)
	loans, err := a.store.ListActiveLoansBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list late loans: %w", err)
	}
	if loans == nil {
		loans = []domain.Loan{}
	}
	return loans, nil
}
