package app

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"onelibrary/pkg/domain"
	"onelibrary/pkg/store"
)

var fixedNow = time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)

func newTestApp(t *testing.T, s store.Store) *App {
	t.Helper()
	if s == nil {
		s = store.NewMemoryStore()
	}
	a, err := New(Config{Store: s, Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func mustCreateBook(t *testing.T, a *App, isbn string) domain.Book {
	t.Helper()
	b, err := a.CreateBook(context.Background(), domain.Book{ISBN: isbn, Title: "Title " + isbn, Author: "Author"})
	if err != nil {
		t.Fatalf("create book %s: %v", isbn, err)
	}
	return b
}

func TestCreateBookDuplicateISBN(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	first, err := a.CreateBook(ctx, domain.Book{ISBN: " 123 ", Title: "A", Author: "Fulano"})
	if err != nil {
		t.Fatalf("create first book: %v", err)
	}
	if first.ID != 1 || first.ISBN != "123" {
		t.Fatalf("first book = %+v, want id 1 and trimmed isbn", first)
	}
	if !first.CreatedAt.Equal(fixedNow) {
		t.Fatalf("createdAt = %v, want %v", first.CreatedAt, fixedNow)
	}

	_, err = a.CreateBook(ctx, domain.Book{ISBN: "123", Title: "B", Author: "Ciclano"})
	if !errors.Is(err, ErrDuplicateISBN) {
		t.Fatalf("duplicate err = %v, want ErrDuplicateISBN", err)
	}
	if !errors.Is(err, ErrBusinessRule) {
		t.Fatalf("duplicate isbn must be a business error")
	}

	got, ok, err := a.GetBookByISBN(ctx, "123")
	if err != nil || !ok || got.Title != "A" {
		t.Fatalf("GetBookByISBN = %+v, %v, %v; want the first book", got, ok, err)
	}
	if _, ok, _ := a.GetBookByISBN(ctx, "404"); ok {
		t.Fatalf("expected empty result for unknown isbn")
	}
}

func TestCreateBookValidation(t *testing.T) {
	a := newTestApp(t, nil)
	_, err := a.CreateBook(context.Background(), domain.Book{ISBN: strings.Repeat("9", maxISBNLen+1), Title: " "})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"isbn", "title", "author"} {
		if !fields[want] {
			t.Fatalf("missing field error for %q in %+v", want, verr.Fields)
		}
	}
	if !errors.Is(err, ErrBusinessRule) {
		t.Fatalf("validation errors must match ErrBusinessRule")
	}
}

func TestCreateBookAcceptsFreeFormISBN(t *testing.T) {
	a := newTestApp(t, nil)
	for _, isbn := range []string{"978 0 13 110362 7", "0-306-40615-2", "ISBN 12a"} {
		if _, err := a.CreateBook(context.Background(), domain.Book{ISBN: isbn, Title: "T", Author: "A"}); err != nil {
			t.Fatalf("isbn %q rejected: %v", isbn, err)
		}
	}
}

func TestLoanLifecycle(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	mustCreateBook(t, a, "123")

	first, err := a.LoanByISBN(ctx, "123", "X", "")
	if err != nil {
		t.Fatalf("first loan: %v", err)
	}
	if first.ID != 1 || first.Returned {
		t.Fatalf("first loan = %+v, want id 1 active", first)
	}
	if !first.LoanDate.Equal(domain.Day(fixedNow)) {
		t.Fatalf("loan date = %v, want %v", first.LoanDate, domain.Day(fixedNow))
	}

	if _, err := a.LoanByISBN(ctx, "123", "Y", ""); !errors.Is(err, ErrBookAlreadyLoaned) {
		t.Fatalf("second loan err = %v, want ErrBookAlreadyLoaned", err)
	}

	for i := 0; i < 2; i++ {
		returned, err := a.ReturnLoan(ctx, first.ID)
		if err != nil {
			t.Fatalf("return #%d: %v", i+1, err)
		}
		if !returned.Returned {
			t.Fatalf("return #%d left loan active", i+1)
		}
	}

	second, err := a.LoanByISBN(ctx, "123", "Y", "y@example.org")
	if err != nil {
		t.Fatalf("loan after return: %v", err)
	}
	if second.ID != 2 || second.CustomerEmail != "y@example.org" {
		t.Fatalf("second loan = %+v, want id 2 with email", second)
	}

	if _, err := a.SetReturned(ctx, first.ID, false); !errors.Is(err, ErrLoanReopen) {
		t.Fatalf("reopen err = %v, want ErrLoanReopen", err)
	}
}

func TestCreateLoanUnknownBook(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	if _, err := a.LoanByISBN(ctx, "999", "X", ""); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("unknown isbn err = %v, want ErrBookNotFound", err)
	}
	if _, err := a.CreateLoan(ctx, domain.Loan{Book: domain.Book{ID: 77}, Customer: "X"}); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("unknown book id err = %v, want ErrBookNotFound", err)
	}
	var verr *ValidationError
	if _, err := a.CreateLoan(ctx, domain.Loan{Customer: "X"}); !errors.As(err, &verr) {
		t.Fatalf("missing book err = %v, want ValidationError", err)
	}
	book := mustCreateBook(t, a, "123")
	if _, err := a.CreateLoan(ctx, domain.Loan{Book: book, Customer: "X", CustomerEmail: "not-an-email"}); !errors.As(err, &verr) {
		t.Fatalf("bad email err = %v, want ValidationError", err)
	}
}

func TestReturnUnknownLoan(t *testing.T) {
	a := newTestApp(t, nil)
	if _, err := a.ReturnLoan(context.Background(), 41); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("err = %v, want ErrLoanNotFound", err)
	}
	if _, err := a.UpdateLoan(context.Background(), domain.Loan{ID: 41, Returned: true}); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("update err = %v, want ErrLoanNotFound", err)
	}
}

func TestFindLoansUnionAndPaging(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	for _, isbn := range []string{"111", "222", "333"} {
		mustCreateBook(t, a, isbn)
	}
	for isbn, customer := range map[string]string{"111": "ann", "222": "bob", "333": "cid"} {
		if _, err := a.LoanByISBN(ctx, isbn, customer, ""); err != nil {
			t.Fatalf("loan %s: %v", isbn, err)
		}
	}

	page, err := a.FindLoans(ctx, domain.LoanFilter{ISBN: "111", Customer: "bob"}, domain.PageRequest{Size: 10})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}
	for _, l := range page.Items {
		if l.Book.ISBN != "111" && l.Customer != "bob" {
			t.Fatalf("non-matching loan in result: %+v", l)
		}
	}

	page, err = a.FindLoans(ctx, domain.LoanFilter{ISBN: "111", Customer: "bob"}, domain.PageRequest{Page: 1, Size: 1})
	if err != nil || len(page.Items) != 1 || page.Page != 1 || page.Size != 1 {
		t.Fatalf("second page = %+v, %v", page, err)
	}

	page, err = a.FindLoans(ctx, domain.LoanFilter{}, domain.PageRequest{Page: -3, Size: 1000})
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if page.Page != 0 || page.Size != MaxPageSize || page.Total != 3 {
		t.Fatalf("normalized page = %+v", page)
	}
}

func TestLoansByBook(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	book := mustCreateBook(t, a, "123")
	first, _ := a.LoanByISBN(ctx, "123", "X", "")
	if _, err := a.ReturnLoan(ctx, first.ID); err != nil {
		t.Fatalf("return: %v", err)
	}
	if _, err := a.LoanByISBN(ctx, "123", "Y", ""); err != nil {
		t.Fatalf("second loan: %v", err)
	}

	page, err := a.LoansByBook(ctx, book.ID, domain.PageRequest{})
	if err != nil {
		t.Fatalf("loans by book: %v", err)
	}
	if page.Total != 2 || page.Size != DefaultPageSize {
		t.Fatalf("page = %+v, want 2 loans with default size", page)
	}
}

func TestLateLoans(t *testing.T) {
	s := store.NewMemoryStore()
	a := newTestApp(t, s)
	ctx := context.Background()
	today := domain.Day(fixedNow)

	cases := []struct {
		isbn     string
		daysAgo  int
		returned bool
		late     bool
	}{
		{isbn: "100", daysAgo: 5, late: true},
		{isbn: "200", daysAgo: 4, late: false},
		{isbn: "300", daysAgo: 3, late: false},
		{isbn: "400", daysAgo: 10, returned: true, late: false},
		{isbn: "500", daysAgo: 30, late: true},
	}

	empty, err := a.LateLoans(ctx)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("late loans on empty store = %v, %v; want empty slice", empty, err)
	}

	for _, tc := range cases {
		book := mustCreateBook(t, a, tc.isbn)
		loan, err := a.CreateLoan(ctx, domain.Loan{Book: book, Customer: "c-" + tc.isbn, LoanDate: today.AddDate(0, 0, -tc.daysAgo)})
		if err != nil {
			t.Fatalf("loan %s: %v", tc.isbn, err)
		}
		if tc.returned {
			if _, err := a.ReturnLoan(ctx, loan.ID); err != nil {
				t.Fatalf("return %s: %v", tc.isbn, err)
			}
		}
	}

	late, err := a.LateLoans(ctx)
	if err != nil {
		t.Fatalf("late loans: %v", err)
	}
	got := map[string]bool{}
	for _, l := range late {
		got[l.Book.ISBN] = true
		if !l.IsLate(fixedNow, domain.DefaultLateLoanDays) {
			t.Fatalf("loan %+v reported late but IsLate is false", l)
		}
	}
	for _, tc := range cases {
		if got[tc.isbn] != tc.late {
			t.Fatalf("isbn %s late = %v, want %v", tc.isbn, got[tc.isbn], tc.late)
		}
	}
	if late[0].Book.ISBN != "500" {
		t.Fatalf("late loans should be oldest first, got %s", late[0].Book.ISBN)
	}
}

// racingStore passes every existence check and lets the write hit the constraint.
type racingStore struct {
	store.Store
}

func (racingStore) HasISBN(context.Context, string) (bool, error)      { return false, nil }
func (racingStore) HasActiveLoan(context.Context, int64) (bool, error) { return false, nil }

func TestConstraintConflictsBecomeBusinessErrors(t *testing.T) {
	mem := store.NewMemoryStore()
	a := newTestApp(t, racingStore{Store: mem})
	ctx := context.Background()
	mustCreateBook(t, a, "123")

	if _, err := a.CreateBook(ctx, domain.Book{ISBN: "123", Title: "B", Author: "C"}); !errors.Is(err, ErrDuplicateISBN) {
		t.Fatalf("racing book err = %v, want ErrDuplicateISBN", err)
	}
	if _, err := a.LoanByISBN(ctx, "123", "X", ""); err != nil {
		t.Fatalf("first loan: %v", err)
	}
	if _, err := a.LoanByISBN(ctx, "123", "Y", ""); !errors.Is(err, ErrBookAlreadyLoaned) {
		t.Fatalf("racing loan err = %v, want ErrBookAlreadyLoaned", err)
	}
}

type failingStore struct {
	store.Store
}

var errDown = errors.New("database unavailable")

func (failingStore) HasISBN(context.Context, string) (bool, error) { return false, errDown }
func (failingStore) ListActiveLoansBefore(context.Context, time.Time) ([]domain.Loan, error) {
	return nil, errDown
}

func TestStoreFailuresAreNotBusinessErrors(t *testing.T) {
	a := newTestApp(t, failingStore{Store: store.NewMemoryStore()})
	ctx := context.Background()

	_, err := a.CreateBook(ctx, domain.Book{ISBN: "1", Title: "T", Author: "A"})
	if !errors.Is(err, errDown) || errors.Is(err, ErrBusinessRule) {
		t.Fatalf("err = %v, want wrapped store failure", err)
	}
	if _, err := a.LateLoans(ctx); !errors.Is(err, errDown) {
		t.Fatalf("late loans err = %v, want wrapped store failure", err)
	}
}

func TestNewRequiresStoreOrURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without store or database URL")
	}
	a, err := New(Config{DatabaseURL: "memory", LateLoanDays: 7, DefaultPageSize: 500, MaxPageSize: 50})
	if err != nil {
		t.Fatalf("new with memory url: %v", err)
	}
	if a.LateLoanDays() != 7 {
		t.Fatalf("late loan days = %d, want 7", a.LateLoanDays())
	}
	if p := a.PageRequest(0, 0); p.Size != 50 {
		t.Fatalf("default size = %d, want clamp to max 50", p.Size)
	}
}

func TestPageRequestClampsHugePage(t *testing.T) {
	a := newTestApp(t, nil)
	p := a.PageRequest(math.MaxInt, 10)
	if p.Size != 10 || p.Page != math.MaxInt/10 {
		t.Fatalf("page request = %+v, want page clamped to %d", p, math.MaxInt/10)
	}
	if p.Offset() < 0 {
		t.Fatalf("offset overflowed: %d", p.Offset())
	}
}
