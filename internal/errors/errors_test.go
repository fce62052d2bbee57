package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "resource not found"},
			want: "resource not found",
		},
		{
			name: "with cause",
			err:  &AppError{Code: ErrCodeInternal, Message: "read allow-list", Cause: errors.New("bucket offline")},
			want: "read allow-list: bucket offline",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternal, "wrapped")
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should find the cause")
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "x"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestSentinels_MatchByCode(t *testing.T) {
	err := fmt.Errorf("login: %w", New(ErrCodeNotWhitelisted, "someone@upstars.com is not on the allow-list"))

	if !errors.Is(err, ErrNotWhitelisted) {
		t.Errorf("expected errors.Is to match the sentinel")
	}
	if errors.Is(err, ErrDomainRejected) {
		t.Errorf("different code must not match")
	}
	if !IsAccessDenied(err) {
		t.Errorf("not whitelisted is an access denial")
	}
}

func TestIsUnauthenticated(t *testing.T) {
	for _, code := range []ErrorCode{
		ErrCodeTokenMalformed, ErrCodeTokenExpired,
		ErrCodeTokenInvalidSignature, ErrCodeAuthenticationRequired,
	} {
		if !IsUnauthenticated(New(code, "x")) {
			t.Errorf("%s should be unauthenticated", code)
		}
	}
	if IsUnauthenticated(New(ErrCodeInsufficientRole, "x")) {
		t.Errorf("insufficient role is not an authentication failure")
	}
	if IsUnauthenticated(errors.New("plain")) {
		t.Errorf("plain errors carry no code")
	}
}

func TestGetCodeAndField(t *testing.T) {
	err := fmt.Errorf("save: %w", ValidationField("allowedUsers", "duplicate email"))
	if GetCode(err) != ErrCodeValidation {
		t.Errorf("GetCode() = %q", GetCode(err))
	}
	if GetField(err) != "allowedUsers" {
		t.Errorf("GetField() = %q", GetField(err))
	}
	if GetCode(errors.New("plain")) != "" {
		t.Errorf("plain error should have no code")
	}
	if !IsValidation(err) || IsNotFound(err) {
		t.Errorf("predicate mismatch")
	}
}
