package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError(t *testing.T) {
	plain := errors.New("boom")

	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
	}{
		{name: "deadline", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: fmt.Errorf("query: %w", context.Canceled), wantCode: ErrCodeCanceled},
		{name: "no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{
			name: "unique on lower(email)",
			err: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: "Key (lower(email))=(a@upstars.com) already exists.",
			},
			wantCode:  ErrCodeConflict,
			wantField: "email",
		},
		{
			name:      "unique with column metadata",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "id"},
			wantCode:  ErrCodeConflict,
			wantField: "id",
		},
		{
			name:      "check violation",
			err:       &pgconn.PgError{Code: pgerrcode.CheckViolation, ColumnName: "role"},
			wantCode:  ErrCodeValidation,
			wantField: "role",
		},
		{
			name:     "not null",
			err:      &pgconn.PgError{Code: pgerrcode.NotNullViolation},
			wantCode: ErrCodeValidation,
		},
		{
			name:     "unknown pg error",
			err:      &pgconn.PgError{Code: pgerrcode.DiskFull},
			wantCode: ErrCodeInternal,
		},
		{name: "plain error", err: plain, wantCode: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapDBError(tt.err)
			if GetCode(got) != tt.wantCode {
				t.Errorf("code = %q, want %q", GetCode(got), tt.wantCode)
			}
			if GetField(got) != tt.wantField {
				t.Errorf("field = %q, want %q", GetField(got), tt.wantField)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("mapped error should wrap the original")
			}
		})
	}
}
