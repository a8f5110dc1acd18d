package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"onelibrary/internal/util"
	"onelibrary/pkg/domain"
)

const (
	TypeLoanCreated  = "loan.created"
	TypeLoanReturned = "loan.returned"
)

// Event is one loan lifecycle change as written to the stream.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	LoanID     int64     `json:"loanId"`
	BookID     int64     `json:"bookId"`
	ISBN       string    `json:"isbn"`
	Customer   string    `json:"customer"`
	LoanDate   time.Time `json:"loanDate"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewLoanEvent builds an event of the given type for loan.
func NewLoanEvent(eventType string, loan domain.Loan, at time.Time) Event {
	return Event{
		ID:         util.NewID(),
		Type:       eventType,
		LoanID:     loan.ID,
		BookID:     loan.Book.ID,
		ISBN:       loan.Book.ISBN,
		Customer:   loan.Customer,
		LoanDate:   loan.LoanDate,
		OccurredAt: at.UTC(),
	}
}

// RedisStream appends loan events to a capped Redis stream.
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

type RedisStreamConfig struct {
	Addr     string
	Password string
	Stream   string
	MaxLen   int64
}

func NewRedisStream(cfg RedisStreamConfig) (*RedisStream, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("event stream required")
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisStream{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream: stream,
		maxLen: maxLen,
	}, nil
}

// Publish appends e to the stream and returns the stream entry id.
func (s *RedisStream) Publish(ctx context.Context, e Event) (string, error) {
	if e.Type == "" {
		return "", errors.New("event type required")
	}
	if e.ID == "" {
		e.ID = util.NewID()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: encodeEvent(e),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return id, nil
}

// Read returns up to count events starting at stream id start ("-" for the oldest).
func (s *RedisStream) Read(ctx context.Context, start string, count int64) ([]Event, error) {
	if start == "" {
		start = "-"
	}
	if count <= 0 {
		count = 100
	}
	msgs, err := s.client.XRangeN(ctx, s.stream, start, "+", count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		e, err := decodeEvent(msg.Values)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStream) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStream) Close() error {
	return s.client.Close()
}

func encodeEvent(e Event) map[string]any {
	return map[string]any{
		"id":         e.ID,
		"type":       e.Type,
		"loanId":     strconv.FormatInt(e.LoanID, 10),
		"bookId":     strconv.FormatInt(e.BookID, 10),
		"isbn":       e.ISBN,
		"customer":   e.Customer,
		"loanDate":   e.LoanDate.UTC().Format(time.DateOnly),
		"occurredAt": e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeEvent(values map[string]any) (Event, error) {
	get := func(key string) string {
		v, _ := values[key].(string)
		return v
	}
	e := Event{
		ID:       get("id"),
		Type:     get("type"),
		ISBN:     get("isbn"),
		Customer: get("customer"),
	}
	if e.Type == "" {
		return Event{}, errors.New("missing type")
	}
	var err error
	if e.LoanID, err = strconv.ParseInt(get("loanId"), 10, 64); err != nil {
		return Event{}, fmt.Errorf("loanId: %w", err)
	}
	if e.BookID, err = strconv.ParseInt(get("bookId"), 10, 64); err != nil {
		return Event{}, fmt.Errorf("bookId: %w", err)
	}
	if v := get("loanDate"); v != "" {
		if e.LoanDate, err = time.Parse(time.DateOnly, v); err != nil {
			return Event{}, fmt.Errorf("loanDate: %w", err)
		}
	}
	if v := get("occurredAt"); v != "" {
		if e.OccurredAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return Event{}, fmt.Errorf("occurredAt: %w", err)
		}
	}
	return e, nil
}
