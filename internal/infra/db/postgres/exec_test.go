//go:build !integration

package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"momo-subscription/internal/domain"
)

func TestMapErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"malformed uuid", &pgconn.PgError{Code: "22P02"}, domain.ErrNotFound},
		{"wrapped malformed uuid", fmt.Errorf("query: %w", &pgconn.PgError{Code: "22P02"}), domain.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, domain.ErrAlreadyExists},
		{"anything else", &pgconn.PgError{Code: "40001"}, domain.ErrStorage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// --- Act ---
			got := mapErr("select transaction", tt.err)

			// --- Assert ---
			if !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("should pass nil through", func(t *testing.T) {
		if err := mapErr("select transaction", nil); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}
