// internal/catalog/handler.go
package catalog

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"

	"storefront/internal/assets"
)

const defaultMaxUploadBytes = 10 << 20

// HandlerConfig tunes the HTTP adapter. Zero values are usable.
type HandlerConfig struct {
	Logger         zerolog.Logger
	WriteLimiter   *rate.Limiter // nil means unlimited
	MaxUploadBytes int64
}

type Handler struct {
	service   Service
	log       zerolog.Logger
	writes    *rate.Limiter
	maxUpload int64
}

func NewHandler(service Service, cfg HandlerConfig) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		service:   service,
		log:       cfg.Logger.With().Str("component", "http").Logger(),
		writes:    cfg.WriteLimiter,
		maxUpload: cfg.MaxUploadBytes,
	}
}

// Routes returns the catalog API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, h.accessLog, middleware.Recoverer)

	r.Route("/api/books", func(r chi.Router) {
		r.Get("/", h.handleListItems)
		r.Get("/uploads/{imageName}", h.handleGetImage)
		r.Get("/{id}", h.handleGetItem)

		r.Group(func(r chi.Router) {
			r.Use(h.limitWrites)
			r.Post("/", h.handleCreateItem)
			r.Put("/{id}", h.handleUpdateItem)
			r.Delete("/{id}", h.handleRemoveItem)
		})
	})
	return r
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	fields, upload, err := h.decodeItemForm(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.service.CreateItem(r.Context(), fields, upload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	fields, upload, err := h.decodeItemForm(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), fields, upload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetImage serves a stored cover. Asset names are never reused, so the
// response can be cached forever.
func (h *Handler) handleGetImage(w http.ResponseWriter, r *http.Request) {
	ref := assets.Ref(chi.URLParam(r, "imageName"))
	data, err := h.service.FetchImage(r.Context(), ref)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sum := blake2b.Sum256(data)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// decodeItemForm reads the multipart form used by create and update: the
// item fields plus an optional "image" file part.
func (h *Handler) decodeItemForm(w http.ResponseWriter, r *http.Request) (Fields, *Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		verr := &ValidationError{}
		verr.add("form", "expected a multipart/form-data body within the size limit")
		return Fields{}, nil, verr
	}

	verr := &ValidationError{}
	price, err := decimal.NewFromString(r.FormValue("price"))
	if err != nil {
		verr.add("price", "must be a decimal number")
	}
	fields := Fields{
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		Price:       price,
		Description: r.FormValue("description"),
		Language:    r.FormValue("language"),
		Category:    r.FormValue("category"),
		Publisher:   r.FormValue("publisher"),
	}

	var upload *Upload
	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		verr.add("image", "could not be read")
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			verr.add("image", "could not be read")
			break
		}
		upload = &Upload{Data: data, Filename: header.Filename}
	}

	if len(verr.Problems) > 0 {
		return Fields{}, nil, verr
	}
	return fields, upload, nil
}

func (h *Handler) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.writes != nil && !h.writes.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.log.Info().
			Str("req_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("size", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type errorBody struct {
	Error    string    `json:"error"`
	Problems []Problem `json:"problems,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := errorBody{Error: err.Error()}

	var verr *ValidationError
	if errors.As(err, &verr) {
		body.Problems = verr.Problems
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("req_id", middleware.GetReqID(r.Context())).Msg("request failed")
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}

// StatusFor maps a service error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
