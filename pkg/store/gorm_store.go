package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"onelibrary/pkg/domain"
)

const migrateLockID int64 = 51480417

// MemoryDSN selects the in-process store.
const MemoryDSN = "memory"

// GormStore implements Store using GORM over Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// Open picks a Store implementation from the database URL:
// "memory", "sqlite:<path>" / "file:<path>", or a Postgres DSN.
func Open(databaseURL string) (Store, error) {
	dsn := strings.TrimSpace(databaseURL)
	switch {
	case dsn == "":
		return nil, errors.New("database URL required")
	case dsn == MemoryDSN:
		return NewMemoryStore(), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "file:"):
		return NewSQLiteStore(dsn)
	default:
		return NewGormStore(dsn)
	}
}

// NewGormStore opens Postgres and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// NewSQLiteStore opens a SQLite database (":memory:" for tests) and migrates it.
func NewSQLiteStore(path string) (*GormStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path required")
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	sqlDB.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
		TranslateError: true,
	}
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&BookModel{}, &LoanModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateBook inserts a book; a taken ISBN yields ErrConflict.
func (s *GormStore) CreateBook(ctx context.Context, b domain.Book) (domain.Book, error) {
	model := bookToModel(b)
	model.ID = 0
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Book{}, translateError(err)
	}
	return bookFromModel(model), nil
}

// HasISBN checks if a book with isbn exists.
func (s *GormStore) HasISBN(ctx context.Context, isbn string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&BookModel{}).Where("isbn = ?", isbn).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetBook returns a book by ID.
func (s *GormStore) GetBook(ctx context.Context, id int64) (domain.Book, bool, error) {
	return s.firstBook(ctx, "id = ?", id)
}

// GetBookByISBN returns a book by ISBN.
func (s *GormStore) GetBookByISBN(ctx context.Context, isbn string) (domain.Book, bool, error) {
	return s.firstBook(ctx, "isbn = ?", isbn)
}

func (s *GormStore) firstBook(ctx context.Context, query string, arg any) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// CreateLoan inserts a loan; a second active loan for the book yields ErrConflict.
func (s *GormStore) CreateLoan(ctx context.Context, l domain.Loan) (domain.Loan, error) {
	model := loanToModel(l)
	model.ID = 0
	now := time.Now().UTC()
	model.CreatedAt = now
	model.UpdatedAt = now
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error; err != nil {
		return domain.Loan{}, translateError(err)
	}
	return s.reloadLoan(ctx, model.ID)
}

// SaveLoan overwrites the mutable columns of an existing loan.
func (s *GormStore) SaveLoan(ctx context.Context, l domain.Loan) (domain.Loan, error) {
	res := s.db.WithContext(ctx).Model(&LoanModel{}).
		Where("id = ?", l.ID).
		Updates(map[string]any{
			"book_id":        l.Book.ID,
			"customer":       l.Customer,
			"customer_email": l.CustomerEmail,
			"loan_date":      domain.Day(l.LoanDate),
			"returned":       l.Returned,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return domain.Loan{}, translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Loan{}, ErrNotFound
	}
	return s.reloadLoan(ctx, l.ID)
}

func (s *GormStore) reloadLoan(ctx context.Context, id int64) (domain.Loan, error) {
	loan, ok, err := s.GetLoan(ctx, id)
	if err != nil {
		return domain.Loan{}, err
	}
	if !ok {
		return domain.Loan{}, ErrNotFound
	}
	return loan, nil
}

// GetLoan returns a loan with its book.
func (s *GormStore) GetLoan(ctx context.Context, id int64) (domain.Loan, bool, error) {
	var model LoanModel
	if err := s.db.WithContext(ctx).Preload("Book").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Loan{}, false, nil
		}
		return domain.Loan{}, false, err
	}
	return loanFromModel(model), true, nil
}

// HasActiveLoan reports whether the book has an unreturned loan.
func (s *GormStore) HasActiveLoan(ctx context.Context, bookID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&LoanModel{}).
		Where("book_id = ? AND returned = ?", bookID, false).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindLoans pages through loans whose book ISBN or customer matches the filter.
func (s *GormStore) FindLoans(ctx context.Context, filter domain.LoanFilter, page domain.PageRequest) (domain.Page[domain.Loan], error) {
	tx := s.db.WithContext(ctx).Model(&LoanModel{})
	byISBN := s.db.Model(&BookModel{}).Select("id").Where("isbn = ?", filter.ISBN)
	switch {
	case filter.ISBN != "" && filter.Customer != "":
		tx = tx.Where("book_id IN (?) OR customer = ?", byISBN, filter.Customer)
	case filter.ISBN != "":
		tx = tx.Where("book_id IN (?)", byISBN)
	case filter.Customer != "":
		tx = tx.Where("customer = ?", filter.Customer)
	}
	return pageLoans(tx, page)
}

// ListLoansByBook pages through every loan of one book.
func (s *GormStore) ListLoansByBook(ctx context.Context, bookID int64, page domain.PageRequest) (domain.Page[domain.Loan], error) {
	return pageLoans(s.db.WithContext(ctx).Model(&LoanModel{}).Where("book_id = ?", bookID), page)
}

// ListActiveLoansBefore returns unreturned loans dated strictly before cutoff, oldest first.
func (s *GormStore) ListActiveLoansBefore(ctx context.Context, cutoff time.Time) ([]domain.Loan, error) {
	var models []LoanModel
	if err := s.db.WithContext(ctx).Preload("Book").
		Where("returned = ? AND loan_date < ?", false, cutoff.UTC()).
		Order("loan_date ASC").Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	loans := make([]domain.Loan, 0, len(models))
	for _, m := range models {
		loans = append(loans, loanFromModel(m))
	}
	return loans, nil
}

func pageLoans(tx *gorm.DB, page domain.PageRequest) (domain.Page[domain.Loan], error) {
	out := domain.Page[domain.Loan]{Items: []domain.Loan{}, Page: page.Page, Size: page.Size}
	tx = tx.Session(&gorm.Session{})
	if err := tx.Count(&out.Total).Error; err != nil {
		return out, err
	}
	if out.Total == 0 {
		return out, nil
	}
	var models []LoanModel
	if err := tx.Preload("Book").
		Order("id ASC").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&models).Error; err != nil {
		return out, err
	}
	for _, m := range models {
		out.Items = append(out.Items, loanFromModel(m))
	}
	return out, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// isUniqueViolation catches driver errors that TranslateError leaves untouched.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:        b.ID,
		ISBN:      b.ISBN,
		Title:     b.Title,
		Author:    b.Author,
		CreatedAt: b.CreatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:        m.ID,
		ISBN:      m.ISBN,
		Title:     m.Title,
		Author:    m.Author,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func loanToModel(l domain.Loan) LoanModel {
	return LoanModel{
		ID:            l.ID,
		BookID:        l.Book.ID,
		Customer:      l.Customer,
		CustomerEmail: l.CustomerEmail,
		LoanDate:      domain.Day(l.LoanDate),
		Returned:      l.Returned,
	}
}

func loanFromModel(m LoanModel) domain.Loan {
	return domain.Loan{
		ID:            m.ID,
		Book:          bookFromModel(m.Book),
		Customer:      m.Customer,
		CustomerEmail: m.CustomerEmail,
		LoanDate:      domain.Day(m.LoanDate),
		Returned:      m.Returned,
	}
}
