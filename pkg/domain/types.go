package domain

import (
	"math"
	"time"
)

// DefaultLateLoanDays is how many days a loan may stay unreturned before it is late.
const DefaultLateLoanDays = 4

type Book struct {
	ID        int64     `json:"id"`
	ISBN      string    `json:"isbn"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Loan records a book lent to a customer. LoanDate is a UTC calendar date.
type Loan struct {
	ID            int64     `json:"id"`
	Book          Book      `json:"book"`
	Customer      string    `json:"customer"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	LoanDate      time.Time `json:"loanDate"`
	Returned      bool      `json:"returned"`
}

// Active reports whether the loan still holds its book.
func (l Loan) Active() bool {
	return !l.Returned
}

// IsLate reports whether an active loan was made strictly before today minus days.
func (l Loan) IsLate(today time.Time, days int) bool {
	return l.Active() && l.LoanDate.Before(LateCutoff(today, days))
}

// LoanFilter matches loans by book ISBN OR customer. Empty fields are ignored.
type LoanFilter struct {
	ISBN     string
	Customer string
}

// Empty reports whether the filter matches every loan.
func (f LoanFilter) Empty() bool {
	return f.ISBN == "" && f.Customer == ""
}

// PageRequest selects a zero-based page of Size items.
type PageRequest struct {
	Page int
	Size int
}

// Offset is the number of rows skipped before the page starts. It saturates
// at math.MaxInt instead of overflowing.
func (p PageRequest) Offset() int {
	if p.Page <= 0 || p.Size <= 0 {
		return 0
	}
	if p.Page > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Page * p.Size
}

type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Size  int
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// LateCutoff returns the first loan date that is not yet late.
func LateCutoff(today time.Time, days int) time.Time {
	return Day(today).AddDate(0, 0, -days)
}
