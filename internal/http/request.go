package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

// jsonDate accepts "2006-01-02" or an RFC 3339 timestamp and normalizes to UTC.
type jsonDate struct {
	time.Time
}

func (d *jsonDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return core.ErrInvalidDate
	}
	if strings.TrimSpace(s) == "" {
		d.Time = time.Time{}
		return nil
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// parseDate parses a date in YYYY-MM-DD or RFC 3339 format.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, &core.ValidationError{Field: "date", Err: core.ErrInvalidDate}
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads month and year from the query, defaulting each to
// the month containing now. Present but non-numeric values are rejected.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	now = now.UTC()
	params := MonthParams{Year: now.Year(), Month: int(now.Month())}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return params, &core.ValidationError{Field: "year", Err: core.ErrInvalidYear}
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return params, &core.ValidationError{Field: "month", Err: core.ErrInvalidMonth}
		}
		params.Month = m
	}
	return params, nil
}

// pathID parses a positive integer URL parameter. Malformed ids read as
// not found so that probing foreign ids and garbage look alike.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, core.ErrNotFound
	}
	return id, nil
}

// parseTransactionFilter builds a listing filter from the query string.
func parseTransactionFilter(query url.Values, userID int64) (core.TransactionFilter, error) {
	f := core.TransactionFilter{UserID: userID, Search: sanitizeInput(query.Get("search"))}

	if v := strings.TrimSpace(query.Get("type")); v != "" {
		typ, err := core.ParseTransactionType(v)
		if err != nil {
			return f, &core.ValidationError{Field: "type", Err: err}
		}
		f.Type = typ
	}
	if v := strings.TrimSpace(query.Get("categoryId")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 1 {
			return f, &core.ValidationError{Field: "categoryId", Err: core.ErrMissingCategory}
		}
		f.CategoryID = id
	}
	if v := strings.TrimSpace(query.Get("from")); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, &core.ValidationError{Field: "from", Err: core.ErrInvalidDate}
		}
		f.From = t
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return f, &core.ValidationError{Field: "to", Err: core.ErrInvalidDate}
		}
		// A bare date covers the whole day.
		if len(v) == len(dateLayout) {
			t = t.Add(24*time.Hour - time.Millisecond)
		}
		f.To = t
	}
	// Unparseable paging falls back to defaults.
	f.Page, _ = strconv.Atoi(query.Get("page"))
	f.Limit, _ = strconv.Atoi(query.Get("limit"))
	return f.Normalize(), nil
}

// sanitizeInput removes control characters (except tab and newlines) and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
