// resource.go — обобщённые обработчики коллекции поверх resource.Engine.
// Один ResourceHandler обслуживает все маршруты /{plural} и /{plural}/{id}.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/catalog-module/internal/api/errors"
	"github.com/bigkaa/goartstore/catalog-module/internal/resource"
)

// maxBodySize — максимальный размер тела запроса (1 МБ).
const maxBodySize = 1 << 20

// rangeHeader — заголовок диапазона списка (start-end/total).
const rangeHeader = "range"

// ResourceHandler — HTTP-обработчик одной коллекции.
type ResourceHandler struct {
	engine *resource.Engine
	logger *slog.Logger
}

// NewResourceHandler создаёт обработчик коллекции.
func NewResourceHandler(engine *resource.Engine, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{
		engine: engine,
		logger: logger.With(
			slog.String("component", "handlers"),
			slog.String("collection", engine.Name()),
		),
	}
}

// Routes регистрирует маршруты коллекции в router.
func (h *ResourceHandler) Routes(r chi.Router) {
	r.Route("/"+h.engine.Name(), func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/", h.DeleteAll)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Replace)
		r.Patch("/{id}", h.Patch)
		r.Delete("/{id}", h.Delete)
	})
}

// List — GET /{plural}. 200 для полной коллекции, 206 с заголовком range
// для части, 404 с заголовком range для страницы за пределами коллекции.
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	req, err := resource.ParseListQuery(r.URL.Query())
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.engine.List(r.Context(), req)
	if res.Range != "" {
		w.Header().Set(rangeHeader, res.Range)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, res.Status, res.Body)
}

// Create — POST /{plural}. 201 с Location и пустым телом.
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	res, err := h.engine.Create(r.Context(), body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", res.Location)
	w.WriteHeader(http.StatusCreated)
}

// DeleteAll — DELETE /{plural}. 204.
func (h *ResourceHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteAll(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get — GET /{plural}/{id}. 200 с документом.
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Replace — PUT /{plural}/{id}. 204.
func (h *ResourceHandler) Replace(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	if err := h.engine.Replace(r.Context(), chi.URLParam(r, "id"), body); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Patch — PATCH /{plural}/{id}. 200 с обновлённым документом.
func (h *ResourceHandler) Patch(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.Patch(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Delete — DELETE /{plural}/{id}. 204.
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readBody читает тело запроса. При ошибке ответ уже записан.
func (h *ResourceHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		apierrors.BadRequest(w, "не удалось прочитать тело запроса")
		return nil, false
	}
	return body, true
}

func (h *ResourceHandler) writeError(w http.ResponseWriter, err error) {
	writeError(w, h.logger, err)
}

// writeError записывает ошибку движка в формате API.
// Ошибки другого типа считаются внутренними.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var re *resource.Error
	if !errors.As(err, &re) {
		logger.Error("Необработанная ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "внутренняя ошибка сервера")
		return
	}

	details := make([]apierrors.Detail, 0, len(re.Details))
	for _, d := range re.Details {
		details = append(details, apierrors.Detail{Field: d.Field, Message: d.Message})
	}
	apierrors.WriteError(w, re.Status, re.Code, re.Message, details...)
}

// writeJSON записывает JSON-ответ с заданным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
