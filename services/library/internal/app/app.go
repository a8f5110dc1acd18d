package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"onelibrary/internal/util"
	"onelibrary/pkg/domain"
	"onelibrary/pkg/events"
	"onelibrary/pkg/store"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	publishTimeout = 2 * time.Second
)

// EventPublisher receives loan lifecycle events after they are persisted.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) (string, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	// Store is used as-is when set; otherwise DatabaseURL is opened.
	Store           store.Store
	DatabaseURL     string
	LateLoanDays    int
	DefaultPageSize int
	MaxPageSize     int
	// Events is optional; nil disables publishing.
	Events EventPublisher
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// App enforces the library rules on top of a Store.
type App struct {
	store           store.Store
	lateLoanDays    int
	defaultPageSize int
	maxPageSize     int
	events          EventPublisher
	now             func() time.Time
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
	}
	a := &App{
		store:           dataStore,
		lateLoanDays:    cfg.LateLoanDays,
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
		events:          cfg.Events,
		now:             cfg.Now,
	}
	if a.lateLoanDays <= 0 {
		a.lateLoanDays = domain.DefaultLateLoanDays
	}
	if a.maxPageSize <= 0 {
		a.maxPageSize = MaxPageSize
	}
	if a.defaultPageSize <= 0 {
		a.defaultPageSize = DefaultPageSize
	}
	a.defaultPageSize = min(a.defaultPageSize, a.maxPageSize)
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Store exposes the underlying store for health checks and shutdown.
func (a *App) Store() store.Store {
	return a.store
}

// LateLoanDays is the configured late-loan threshold.
func (a *App) LateLoanDays() int {
	return a.lateLoanDays
}

// Close releases the store.
func (a *App) Close() error {
	return a.store.Close()
}

// PageRequest normalizes caller paging: negative pages become 0 and sizes are
// clamped to [1, max], with 0 meaning the default size.
func (a *App) PageRequest(page, size int) domain.PageRequest {
	if page < 0 {
		page = 0
	}
	switch {
	case size <= 0:
		size = a.defaultPageSize
	case size > a.maxPageSize:
		size = a.maxPageSize
	}
	// keep page*size representable
	page = min(page, math.MaxInt/size)
	return domain.PageRequest{Page: page, Size: size}
}

func (a *App) today() time.Time {
	return domain.Day(a.now())
}

// publish is best effort: the loan is already stored, so a failed publish is
// logged and not returned. It outlives the caller's cancellation.
func (a *App) publish(ctx context.Context, eventType string, loan domain.Loan) {
	if a.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if _, err := a.events.Publish(pubCtx, events.NewLoanEvent(eventType, loan, a.now())); err != nil {
		util.LoggerFromContext(ctx).Warn("loan event publish failed", "type", eventType, "loan_id", loan.ID, "err", err)
	}
}
