package access

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-dms/odyssey-dms/internal/platform/httpx"
	"github.com/odyssey-dms/odyssey-dms/internal/shared"
)

// Handler exposes the caller's own access state as JSON.
type Handler struct {
	logger *slog.Logger
	gate   *Gate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, gate *Gate) *Handler {
	return &Handler{logger: logger, gate: gate}
}

// MountRoutes registers access routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Get("/documents/{documentID}", h.document)
}

type meResponse struct {
	UserID            int64                `json:"user_id"`
	Effective         EffectivePermissions `json:"effective"`
	DownloadRemaining *int                 `json:"download_remaining,omitempty"`
	UploadRemaining   *int                 `json:"upload_remaining,omitempty"`
}

type documentResponse struct {
	DocumentID int64 `json:"document_id"`
	Allowed    bool  `json:"allowed"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	resp := meResponse{UserID: userID, Effective: h.gate.Effective(r.Context(), userID)}
	if left, limited := h.gate.RemainingQuota(r.Context(), userID, QuotaDownload); limited {
		resp.DownloadRemaining = &left
	}
	if left, limited := h.gate.RemainingQuota(r.Context(), userID, QuotaUpload); limited {
		resp.UploadRemaining = &left
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) document(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	documentID, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil || documentID <= 0 {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	httpx.JSON(w, http.StatusOK, documentResponse{
		DocumentID: documentID,
		Allowed:    h.gate.CanAccessDocument(r.Context(), userID, documentID),
	})
}

func sessionUser(r *http.Request) (int64, bool) {
	return shared.SessionFromContext(r.Context()).UserID()
}
