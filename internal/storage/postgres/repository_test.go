package postgres

import (
	"testing"

	"fintrack/internal/ports"
)

var _ ports.Repository = (*Repository)(nil)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/fintrack?sslmode=disable", "pgx5://u:p@localhost:5432/fintrack?sslmode=disable"},
		{"postgresql://localhost/fintrack", "pgx5://localhost/fintrack"},
		{"pgx5://localhost/fintrack", "pgx5://localhost/fintrack"},
	}
	for _, tt := range tests {
		if got := migrateURL(tt.in); got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike() = %q", got)
	}
}
