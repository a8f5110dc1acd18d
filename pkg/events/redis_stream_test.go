package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"onelibrary/pkg/domain"
)

func newTestStream(t *testing.T, maxLen int64) *RedisStream {
	t.Helper()
	srv := miniredis.RunT(t)
	s, err := NewRedisStream(RedisStreamConfig{Addr: srv.Addr(), Stream: "test:loans", MaxLen: maxLen})
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStreamPublishAndRead(t *testing.T) {
	s := newTestStream(t, 0)
	ctx := context.Background()

	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	loan := domain.Loan{
		ID:       7,
		Book:     domain.Book{ID: 3, ISBN: "123"},
		Customer: "Fulano",
		LoanDate: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
	}
	if _, err := s.Publish(ctx, NewLoanEvent(TypeLoanCreated, loan, at)); err != nil {
		t.Fatalf("publish created: %v", err)
	}
	loan.Returned = true
	if _, err := s.Publish(ctx, NewLoanEvent(TypeLoanReturned, loan, at.Add(time.Hour))); err != nil {
		t.Fatalf("publish returned: %v", err)
	}

	got, err := s.Read(ctx, "-", 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	first := got[0]
	if first.Type != TypeLoanCreated || first.LoanID != 7 || first.BookID != 3 || first.ISBN != "123" || first.Customer != "Fulano" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if !first.LoanDate.Equal(loan.LoanDate) || !first.OccurredAt.Equal(at) {
		t.Fatalf("unexpected dates: %+v", first)
	}
	if first.ID == "" {
		t.Fatalf("expected event id to be set")
	}
	if got[1].Type != TypeLoanReturned {
		t.Fatalf("unexpected second event type %q", got[1].Type)
	}
}

func TestRedisStreamPublishRequiresType(t *testing.T) {
	s := newTestStream(t, 0)
	if _, err := s.Publish(context.Background(), Event{LoanID: 1}); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestRedisStreamReadRejectsMalformedEntry(t *testing.T) {
	s := newTestStream(t, 0)
	ctx := context.Background()
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{"type": TypeLoanCreated, "loanId": "x", "bookId": "1"},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}
	if _, err := s.Read(ctx, "-", 10); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestRedisStreamCapsLength(t *testing.T) {
	s := newTestStream(t, 2)
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		loan := domain.Loan{ID: i, Book: domain.Book{ID: i}}
		if _, err := s.Publish(ctx, NewLoanEvent(TypeLoanCreated, loan, time.Now())); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	n, err := s.client.XLen(ctx, s.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if n > 5 || n < 2 {
		t.Fatalf("unexpected stream length %d", n)
	}
}

func TestNewRedisStreamValidation(t *testing.T) {
	if _, err := NewRedisStream(RedisStreamConfig{Stream: "s"}); err == nil {
		t.Fatalf("expected error for missing addr")
	}
	if _, err := NewRedisStream(RedisStreamConfig{Addr: "localhost:6379"}); err == nil {
		t.Fatalf("expected error for missing stream")
	}
}
