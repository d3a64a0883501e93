package service

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/SensualOdin/ChickenTendies-sub000/internal/session"
)

const qrSize = 256

// QRHandler serves GET /api/groups/{code}/qr.png, a QR code that opens the
// join page for the code.
type QRHandler struct {
	sessions  *session.Manager
	publicURL string
}

// NewQRHandler creates the handler. Codes link to publicURL/join/{code}.
func NewQRHandler(sessions *session.Manager, publicURL string) *QRHandler {
	return &QRHandler{sessions: sessions, publicURL: strings.TrimRight(publicURL, "/")}
}

func (h *QRHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	group, err := h.sessions.GetGroupByCode(r.Context(), r.PathValue("code"))
	switch {
	case errors.Is(err, session.ErrInvalidCode):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, session.ErrGroupNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		slog.Error("Failed to look up join code", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	png, err := qrcode.Encode(h.JoinURL(group.Code), qrcode.Medium, qrSize)
	if err != nil {
		slog.Error("Failed to render QR code", "group_id", group.ID, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(png)
}

// JoinURL is the link encoded for code.
func (h *QRHandler) JoinURL(code string) string {
	return h.publicURL + "/join/" + url.PathEscape(code)
}
