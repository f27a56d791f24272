// marc.go — GET /items/{id}/marc: библиографическая запись экземпляра
// в строковом (application/marc) или структурированном (application/json) виде.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/munnerz/goautoneg"

	apierrors "github.com/bigkaa/goartstore/catalog-module/internal/api/errors"
	"github.com/bigkaa/goartstore/catalog-module/internal/service"
)

// Поддерживаемые представления записи.
const (
	ContentTypeMARC = "application/marc"
	ContentTypeJSON = "application/json"
)

var marcOffers = []string{ContentTypeMARC, ContentTypeJSON}

// MARCHandler — обработчик представлений библиографической записи.
type MARCHandler struct {
	marc   *service.MARCService
	logger *slog.Logger
}

// NewMARCHandler создаёт обработчик поверх MARCService.
func NewMARCHandler(marc *service.MARCService, logger *slog.Logger) *MARCHandler {
	return &MARCHandler{
		marc:   marc,
		logger: logger.With(slog.String("component", "handlers")),
	}
}

// GetRecord выбирает представление по заголовку Accept.
// Без заголовка Accept возвращается JSON.
func (h *MARCHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if accept == "" {
		accept = ContentTypeJSON
	}

	id := chi.URLParam(r, "id")
	switch goautoneg.Negotiate(accept, marcOffers) {
	case ContentTypeMARC:
		text, err := h.marc.Text(r.Context(), id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		w.Header().Set("Content-Type", ContentTypeMARC+"; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(text))
	case ContentTypeJSON:
		rec, err := h.marc.Record(r.Context(), id)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	default:
		apierrors.NotAcceptable(w, "поддерживаемые типы: "+strings.Join(marcOffers, ", "))
	}
}
