package store

import "time"

// GORM models used for persistence.
type BookModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	ISBN      string    `gorm:"column:isbn;uniqueIndex;not null"`
	Title     string    `gorm:"not null"`
	Author    string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// LoanModel carries a partial unique index so at most one unreturned loan
// can exist per book even when two requests race past the existence check.
type LoanModel struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	BookID        int64     `gorm:"not null;index;uniqueIndex:idx_loan_models_active_book,where:returned = false"`
	Book          BookModel `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Customer      string    `gorm:"not null;index"`
	CustomerEmail string
	LoanDate      time.Time `gorm:"not null;index"`
	Returned      bool      `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}
