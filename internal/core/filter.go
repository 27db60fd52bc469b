package core

import "time"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPage keeps Offset far from integer overflow.
	MaxPage = 1 << 20
)

// TransactionFilter narrows a transaction listing. Zero values mean "any".
type TransactionFilter struct {
	UserID     int64
	Type       TransactionType
	CategoryID int64
	From       time.Time // inclusive
	To         time.Time // inclusive
	Search     string    // case-insensitive substring of the note
	Page       int
	Limit      int
}

// Normalize applies paging defaults and bounds.
func (f TransactionFilter) Normalize() TransactionFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	return f
}

func (f TransactionFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// TransactionPage is one page of a filtered listing.
type TransactionPage struct {
	Items []Transaction
	Total int
	Page  int
	Limit int
}
