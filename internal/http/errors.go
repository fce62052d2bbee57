package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/upstars/corporate-discounts/internal/errors"
)

const (
	msgAccessDenied   = "Access denied"
	msgNoToken        = "Unauthorized - No token provided"
	msgInvalidToken   = "Unauthorized - Invalid or expired token"
	msgTooManyReqs    = "Too many requests. Please try again later."
	msgTooManyLogins  = "Too many login attempts. Please try again later."
	msgInternal       = "Internal server error"
	msgBadCredential  = "Invalid credential"
	msgConfigNotFound = "Config not found"
)

// errorResponse maps an application error onto a status code and a message
// that is safe to show to the caller. Access rejections stay opaque so the
// response does not reveal whether the domain or the allow-list refused.
func errorResponse(err error) (int, string) {
	code := apperrors.GetCode(err)
	switch code {
	case apperrors.ErrCodeMalformedAssertion:
		return http.StatusBadRequest, msgBadCredential
	case apperrors.ErrCodeValidation:
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Message != "" {
			return http.StatusBadRequest, appErr.Message
		}
		return http.StatusBadRequest, http.StatusText(http.StatusBadRequest)
	case apperrors.ErrCodeDomainRejected, apperrors.ErrCodeNotWhitelisted, apperrors.ErrCodeInsufficientRole:
		return http.StatusForbidden, msgAccessDenied
	case apperrors.ErrCodeAuthenticationRequired:
		return http.StatusUnauthorized, msgNoToken
	case apperrors.ErrCodeTokenMalformed, apperrors.ErrCodeTokenExpired, apperrors.ErrCodeTokenInvalidSignature:
		return http.StatusUnauthorized, msgInvalidToken
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests, msgTooManyReqs
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound, http.StatusText(http.StatusNotFound)
	case apperrors.ErrCodeConflict:
		return http.StatusConflict, http.StatusText(http.StatusConflict)
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout)
	}
	return http.StatusInternalServerError, msgInternal
}

// WriteAppError writes err as a JSON error response. Server-side failures are
// logged with their cause; the caller only sees the mapped message.
func WriteAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, msg := errorResponse(err)
	kind := string(apperrors.GetCode(err))
	if kind == "" {
		kind = string(apperrors.ErrCodeInternal)
	}
	if status >= http.StatusInternalServerError && logger != nil {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("kind", kind),
			slog.Any("error", err))
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: kind, Err: errors.New(msg)})
}
