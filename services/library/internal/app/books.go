package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"onelibrary/pkg/domain"
	"onelibrary/pkg/store"
)

const (
	maxISBNLen  = 32
	maxFieldLen = 255
)

// CreateBook registers a new book. A taken ISBN is a business error.
func (a *App) CreateBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	book.ISBN = strings.TrimSpace(book.ISBN)
	book.Title = strings.TrimSpace(book.Title)
	book.Author = strings.TrimSpace(book.Author)

	var v validator
	v.required("isbn", book.ISBN)
	v.maxLen("isbn", book.ISBN, maxISBNLen)
	v.required("title", book.Title)
	v.maxLen("title", book.Title, maxFieldLen)
	v.required("author", book.Author)
	v.maxLen("author", book.Author, maxFieldLen)
	if err := v.err(); err != nil {
		return domain.Book{}, err
	}

	exists, err := a.store.HasISBN(ctx, book.ISBN)
	if err != nil {
		return domain.Book{}, fmt.Errorf("check isbn: %w", err)
	}
	if exists {
		return domain.Book{}, ErrDuplicateISBN
	}
	book.ID = 0
	book.CreatedAt = a.now().UTC()
	saved, err := a.store.CreateBook(ctx, book)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Book{}, ErrDuplicateISBN
		}
		return domain.Book{}, fmt.Errorf("save book: %w", err)
	}
	return saved, nil
}

// GetBookByISBN looks a book up by ISBN.
func (a *App) GetBookByISBN(ctx context.Context, isbn string) (domain.Book, bool, error) {
	return a.store.GetBookByISBN(ctx, strings.TrimSpace(isbn))
}

// GetBook looks a book up by id.
func (a *App) GetBook(ctx context.Context, id int64) (domain.Book, bool, error) {
	return a.store.GetBook(ctx, id)
}
