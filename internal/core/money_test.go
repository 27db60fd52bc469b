package core

import (
	"encoding/json"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12.34", 1234, false},
		{"12,34", 1234, false},
		{"12.345", 1235, false},
		{"12.344", 1234, false},
		{"0.01", 1, false},
		{" 500 ", 50000, false},
		{"", 0, true},
		{"0", 0, true},
		{"-1", 0, true},
		{"+1", 0, true},
		{"abc", 0, true},
		{"1.2.3", 0, true},
		{"0.004", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecimalToCents(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDecimalToCents(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestMoney_JSON(t *testing.T) {
	b, err := json.Marshal(Money{Cents: 1250})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(b) != "12.5" {
		t.Errorf("Marshal = %s, want 12.5", b)
	}

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{`500`, 50000, false},
		{`"19.99"`, 1999, false},
		{`0.015`, 2, false},
		{`-3`, 0, true},
		{`"nope"`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var m Money
			err := json.Unmarshal([]byte(tt.in), &m)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if m.Cents != tt.want {
				t.Errorf("Unmarshal(%s) = %d cents, want %d", tt.in, m.Cents, tt.want)
			}
		})
	}
}

func TestMoney_String(t *testing.T) {
	if got := (Money{Cents: 5}).String(); got != "0.05" {
		t.Errorf("String() = %q, want 0.05", got)
	}
}
