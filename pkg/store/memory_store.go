package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"onelibrary/pkg/domain"
)

// MemoryStore keeps books and loans in-process. Uniqueness checks and inserts
// happen under one lock so it enforces the same constraints as the SQL schema.
type MemoryStore struct {
	mu         sync.RWMutex
	books      map[int64]domain.Book
	isbn       map[string]int64 // isbn -> book ID
	loans      map[int64]domain.Loan
	nextBookID int64
	nextLoanID int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books: make(map[int64]domain.Book),
		isbn:  make(map[string]int64),
		loans: make(map[int64]domain.Loan),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateBook(_ context.Context, b domain.Book) (domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.isbn[b.ISBN]; taken {
		return domain.Book{}, ErrConflict
	}
	m.nextBookID++
	b.ID = m.nextBookID
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	m.books[b.ID] = b
	m.isbn[b.ISBN] = b.ID
	return b, nil
}

func (m *MemoryStore) HasISBN(_ context.Context, isbn string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.isbn[isbn]
	return ok, nil
}

func (m *MemoryStore) GetBook(_ context.Context, id int64) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

func (m *MemoryStore) GetBookByISBN(_ context.Context, isbn string) (domain.Book, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.isbn[isbn]
	if !ok {
		return domain.Book{}, false, nil
	}
	return m.books[id], true, nil
}

func (m *MemoryStore) CreateLoan(_ context.Context, l domain.Loan) (domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !l.Returned && m.activeLoanLocked(l.Book.ID, 0) {
		return domain.Loan{}, ErrConflict
	}
	m.nextLoanID++
	l.ID = m.nextLoanID
	l.LoanDate = domain.Day(l.LoanDate)
	m.loans[l.ID] = l
	return m.withBookLocked(l), nil
}

// SaveLoan replaces a stored loan; reopening a loan while another one is active yields ErrConflict.
func (m *MemoryStore) SaveLoan(_ context.Context, l domain.Loan) (domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[l.ID]; !ok {
		return domain.Loan{}, ErrNotFound
	}
	if !l.Returned && m.activeLoanLocked(l.Book.ID, l.ID) {
		return domain.Loan{}, ErrConflict
	}
	l.LoanDate = domain.Day(l.LoanDate)
	m.loans[l.ID] = l
	return m.withBookLocked(l), nil
}

func (m *MemoryStore) GetLoan(_ context.Context, id int64) (domain.Loan, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loans[id]
	if !ok {
		return domain.Loan{}, false, nil
	}
	return m.withBookLocked(l), true, nil
}

func (m *MemoryStore) HasActiveLoan(_ context.Context, bookID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLoanLocked(bookID, 0), nil
}

func (m *MemoryStore) FindLoans(_ context.Context, filter domain.LoanFilter, page domain.PageRequest) (domain.Page[domain.Loan], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageLocked(page, func(l domain.Loan) bool {
		if filter.Empty() {
			return true
		}
		return (filter.ISBN != "" && l.Book.ISBN == filter.ISBN) ||
			(filter.Customer != "" && l.Customer == filter.Customer)
	}), nil
}

func (m *MemoryStore) ListLoansByBook(_ context.Context, bookID int64, page domain.PageRequest) (domain.Page[domain.Loan], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pageLocked(page, func(l domain.Loan) bool { return l.Book.ID == bookID }), nil
}

func (m *MemoryStore) ListActiveLoansBefore(_ context.Context, cutoff time.Time) ([]domain.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Loan, 0)
	for _, l := range m.sortedLocked() {
		if l.Active() && l.LoanDate.Before(cutoff) {
			res = append(res, l)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].LoanDate.Before(res[j].LoanDate) })
	return res, nil
}

func (m *MemoryStore) activeLoanLocked(bookID, except int64) bool {
	for id, l := range m.loans {
		if id != except && l.Book.ID == bookID && l.Active() {
			return true
		}
	}
	return false
}

// withBookLocked refreshes the embedded book from the books table.
func (m *MemoryStore) withBookLocked(l domain.Loan) domain.Loan {
	if b, ok := m.books[l.Book.ID]; ok {
		l.Book = b
	}
	return l
}

func (m *MemoryStore) sortedLocked() []domain.Loan {
	res := make([]domain.Loan, 0, len(m.loans))
	for _, l := range m.loans {
		res = append(res, m.withBookLocked(l))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

func (m *MemoryStore) pageLocked(page domain.PageRequest, match func(domain.Loan) bool) domain.Page[domain.Loan] {
	out := domain.Page[domain.Loan]{Items: []domain.Loan{}, Page: page.Page, Size: page.Size}
	var matched []domain.Loan
	for _, l := range m.sortedLocked() {
		if match(l) {
			matched = append(matched, l)
		}
	}
	out.Total = int64(len(matched))
	start := page.Offset()
	if start < 0 || start >= len(matched) || page.Size <= 0 {
		return out
	}
	end := min(start+page.Size, len(matched))
	out.Items = append(out.Items, matched[start:end]...)
	return out
}
