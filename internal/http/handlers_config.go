package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/service"
)

// ConfigService loads and saves the configuration document.
type ConfigService interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, actor domainauth.SessionClaims, body []byte) (*service.SaveResult, error)
}

var _ ConfigService = (*service.ConfigDocumentService)(nil)

// ConfigHandlers serves the configuration document endpoints.
type ConfigHandlers struct {
	Svc    ConfigService
	Logger *slog.Logger
}

type saveConfigResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Load handles GET /api/load-config. The document is returned verbatim and
// must never be cached, since editors expect to see their last save.
func (h *ConfigHandlers) Load(w http.ResponseWriter, r *http.Request) {
	body, err := h.Svc.Load(r.Context())
	if err != nil {
		if apperrors.IsNotFound(err) {
			WriteError(w, ErrorParams{
				Code:    http.StatusNotFound,
				ErrCode: string(apperrors.ErrCodeNotFound),
				Err:     errors.New(msgConfigNotFound),
			})
			return
		}
		WriteAppError(w, r, h.Logger, err)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	hdr.Set("Pragma", "no-cache")
	hdr.Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Save handles POST /api/save-config. RequireToken has already put the
// caller's claims in the context.
func (h *ConfigHandlers) Save(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		WriteAppError(w, r, h.Logger, apperrors.New(apperrors.ErrCodeAuthenticationRequired, "no session claims"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: string(apperrors.ErrCodeValidation),
			Err:     errors.New("Request body too large"),
		})
		return
	}

	res, err := h.Svc.Save(r.Context(), *claims, body)
	if err != nil {
		WriteAppError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, saveConfigResponse{
		Success:   true,
		Message:   res.Message,
		Timestamp: res.Timestamp,
	})
}
