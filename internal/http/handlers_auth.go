package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/service"
)

// AuthServiceInterface is the part of service.AuthService the handlers use.
type AuthServiceInterface interface {
	Login(ctx context.Context, credential string) (*service.LoginResult, error)
	Verify(ctx context.Context, token string) (*domainauth.SessionClaims, error)
	TokenAuthorizer
}

var _ AuthServiceInterface = (*service.AuthService)(nil)

// AuthHandlers serves the login and verify endpoints.
type AuthHandlers struct {
	Svc    AuthServiceInterface
	Logger *slog.Logger
}

type loginRequest struct {
	Credential string `json:"credential"`
}

type loginResponse struct {
	Success   bool               `json:"success"`
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
	User      domainauth.Profile `json:"user"`
}

type verifyResponse struct {
	Valid bool            `json:"valid"`
	Email string          `json:"email"`
	Name  string          `json:"name"`
	Role  domainauth.Role `json:"role"`
}

// Login handles POST /api/login. The login rate limiter runs before this
// handler, so rejected attempts never reach the identity checks.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Credential) == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: string(apperrors.ErrCodeMalformedAssertion),
			Err:     errors.New("Missing credential"),
		})
		return
	}

	res, err := h.Svc.Login(r.Context(), req.Credential)
	if err != nil {
		WriteAppError(w, r, h.Logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.UTC(),
		User:      res.User,
	})
}

// Verify handles GET /api/verify.
func (h *AuthHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	token, ok := BearerToken(r)
	if !ok {
		WriteAppError(w, r, h.Logger, apperrors.New(apperrors.ErrCodeAuthenticationRequired, "no bearer token"))
		return
	}
	claims, err := h.Svc.Verify(r.Context(), token)
	if err != nil {
		WriteAppError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, verifyResponse{
		Valid: true,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  claims.Role,
	})
}
