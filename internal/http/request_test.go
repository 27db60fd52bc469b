package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
)

func TestParseTransactionFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		check   func(t *testing.T, f core.TransactionFilter)
		wantErr error
	}{
		{
			name:  "defaults",
			query: "",
			check: func(t *testing.T, f core.TransactionFilter) {
				if f.UserID != 7 || f.Page != 1 || f.Limit < 1 {
					t.Errorf("filter = %+v", f)
				}
			},
		},
		{
			name:  "bare to covers the whole day",
			query: "from=2024-03-01&to=2024-03-31",
			check: func(t *testing.T, f core.TransactionFilter) {
				if !f.From.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
					t.Errorf("from = %v", f.From)
				}
				if want := time.Date(2024, 3, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC); !f.To.Equal(want) {
					t.Errorf("to = %v, want %v", f.To, want)
				}
			},
		},
		{
			name:  "timestamp to is kept",
			query: "to=2024-03-31T10:00:00Z",
			check: func(t *testing.T, f core.TransactionFilter) {
				if !f.To.Equal(time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC)) {
					t.Errorf("to = %v", f.To)
				}
			},
		},
		{
			name:  "type category and search",
			query: "type=income&categoryId=4&search=%20pay%01%20",
			check: func(t *testing.T, f core.TransactionFilter) {
				if f.Type != core.Income || f.CategoryID != 4 || f.Search != "pay" {
					t.Errorf("filter = %+v", f)
				}
			},
		},
		{
			name:  "garbage paging falls back",
			query: "page=abc&limit=-3",
			check: func(t *testing.T, f core.TransactionFilter) {
				if f.Page != 1 || f.Limit < 1 {
					t.Errorf("paging = %d/%d", f.Page, f.Limit)
				}
			},
		},
		{
			name:  "huge page is clamped",
			query: "page=9223372036854775807",
			check: func(t *testing.T, f core.TransactionFilter) {
				if f.Page != core.MaxPage || f.Offset() < 0 {
					t.Errorf("page = %d, offset = %d", f.Page, f.Offset())
				}
			},
		},
		{name: "bad type", query: "type=gift", wantErr: core.ErrInvalidType},
		{name: "bad category", query: "categoryId=x", wantErr: core.ErrMissingCategory},
		{name: "bad from", query: "from=yesterday", wantErr: core.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			f, err := parseTransactionFilter(q, 7)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !core.IsValidation(err) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, f)
		})
	}
}

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2024, 7, 9, 23, 0, 0, 0, time.UTC)
	tests := []struct {
		query   string
		want    MonthParams
		wantErr bool
	}{
		{"", MonthParams{Year: 2024, Month: 7}, false},
		{"month=2", MonthParams{Year: 2024, Month: 2}, false},
		{"month=12&year=2023", MonthParams{Year: 2023, Month: 12}, false},
		{"month=feb", MonthParams{}, true},
		{"year=20x4", MonthParams{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := ParseMonthParams(q, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestJSONDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{`"2024-02-29"`, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), false},
		{`"2024-02-29T10:30:00+02:00"`, time.Date(2024, 2, 29, 8, 30, 0, 0, time.UTC), false},
		{`""`, time.Time{}, false},
		{`"2023-02-29"`, time.Time{}, true},
		{`20240229`, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d jsonDate
			err := json.Unmarshal([]byte(tt.in), &d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !d.Equal(tt.want) {
				t.Errorf("got %v, want %v", d.Time, tt.want)
			}
		})
	}
}

func TestPathID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.raw)
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

			got, err := pathID(r, "id")
			if tt.wantErr {
				if !errors.Is(err, core.ErrNotFound) {
					t.Errorf("error = %v, want ErrNotFound", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("pathID = %d, %v", got, err)
			}
		})
	}
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"} {"name":"b"}`))
	var dst createCategoryRequest
	if err := decodeJSON(httptest.NewRecorder(), r, &dst); !errors.Is(err, errBadRequest) {
		t.Errorf("error = %v, want errBadRequest", err)
	}
}
