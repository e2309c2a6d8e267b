package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/price-monitor/internal/batch"
	"github.com/maltedev/price-monitor/internal/models"
	"github.com/maltedev/price-monitor/internal/normalize"
)

// maxImportBytes caps the body of a URL import.
const maxImportBytes = 5 << 20

// Store is the subset of the URL/result store the handlers need.
type Store interface {
	AddURL(ctx context.Context, address string) (models.URL, error)
	AddURLs(ctx context.Context, addresses []string) (int, error)
	ListURLs(ctx context.Context, status models.URLStatus, limit int) ([]models.URL, error)
	UpdateURL(ctx context.Context, id, address string) (models.URL, error)
	ResetURL(ctx context.Context, id string) error
	DeleteURL(ctx context.Context, id string) error
	StatusCounts(ctx context.Context) (map[models.URLStatus]int, error)
	PriceSeries(ctx context.Context, urlID string, limit int) ([]models.PricePoint, error)
	PriceAnalysis(ctx context.Context, search string) ([]models.PriceStats, error)
	ProviderStats(ctx context.Context) ([]models.ProviderStats, error)
	PurgeResults(ctx context.Context) (int64, error)
}

type Runner interface {
	RunBatch(ctx context.Context, mode models.Mode, limit int) (models.Summary, error)
}

type Previewer interface {
	ScrapePage(ctx context.Context, url, knownProvider string) models.Outcome
}

type Handlers struct {
	store   Store
	runner  Runner
	preview Previewer
	logger  *slog.Logger
}

func NewHandlers(store Store, runner Runner, preview Previewer, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:   store,
		runner:  runner,
		preview: preview,
		logger:  logger.With("component", "api"),
	}
}

type RunRequest struct {
	Mode  string `json:"mode"`
	Limit int    `json:"limit"`
}

// RunBatch triggers one batch run and waits for its summary.
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := decodeOptional(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Limit < 0 {
		h.respondError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}

	// A client that hangs up must not abort the run half way.
	summary, err := h.runner.RunBatch(context.WithoutCancel(r.Context()), mode, req.Limit)
	if err != nil {
		if errors.Is(err, batch.ErrRunInProgress) {
			h.respondError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error("batch run failed", "mode", mode, "error", err)
		h.respondError(w, http.StatusInternalServerError, "batch run failed")
		return
	}

	h.respondJSON(w, http.StatusOK, summary)
}

type URLRequest struct {
	URL string `json:"url"`
}

// PreviewScrape scrapes an arbitrary URL without storing anything.
func (h *Handlers) PreviewScrape(w http.ResponseWriter, r *http.Request) {
	var req URLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	address := normalize.CleanText(req.URL)
	if !normalize.IsHTTPURL(address) {
		h.respondError(w, http.StatusBadRequest, models.ErrInvalidURL.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, h.preview.ScrapePage(r.Context(), address, ""))
}

func (h *Handlers) ListURLs(w http.ResponseWriter, r *http.Request) {
	status := models.URLStatus(r.URL.Query().Get("status"))
	if status != "" && !validStatus(status) {
		h.respondError(w, http.StatusBadRequest, "unknown status")
		return
	}
	limit := max(queryInt(r, "limit", 0), 0)

	urls, err := h.store.ListURLs(r.Context(), status, limit)
	if err != nil {
		h.storeError(w, "failed to list urls", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"urls": urls})
}

func (h *Handlers) StatusCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.StatusCounts(r.Context())
	if err != nil {
		h.storeError(w, "failed to count urls", err)
		return
	}
	h.respondJSON(w, http.StatusOK, counts)
}

func (h *Handlers) AddURL(w http.ResponseWriter, r *http.Request) {
	var req URLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.store.AddURL(r.Context(), req.URL)
	if err != nil {
		h.storeError(w, "failed to add url", err)
		return
	}
	h.respondJSON(w, http.StatusCreated, u)
}

// ImportURLs accepts a newline separated list or a CSV whose first column
// holds the address.
func (h *Handlers) ImportURLs(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		h.respondError(w, http.StatusRequestEntityTooLarge, "import body too large")
		return
	}

	urls := normalize.ParseCSVURLs(string(body))
	if len(urls) == 0 {
		h.respondError(w, http.StatusBadRequest, "no http or https urls found")
		return
	}

	imported, err := h.store.AddURLs(r.Context(), urls)
	if err != nil {
		h.storeError(w, "failed to import urls", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"imported": imported,
		"urls":     urls,
	})
}

func (h *Handlers) UpdateURL(w http.ResponseWriter, r *http.Request) {
	var req URLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.store.UpdateURL(r.Context(), chi.URLParam(r, "urlID"), req.URL); err != nil {
		h.storeError(w, "failed to update url", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ResetURL(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ResetURL(r.Context(), chi.URLParam(r, "urlID")); err != nil {
		h.storeError(w, "failed to reset url", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) DeleteURL(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteURL(r.Context(), chi.URLParam(r, "urlID")); err != nil {
		h.storeError(w, "failed to delete url", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PriceEvolution returns the price series of one URL, oldest first.
func (h *Handlers) PriceEvolution(w http.ResponseWriter, r *http.Request) {
	series, err := h.store.PriceSeries(r.Context(), chi.URLParam(r, "urlID"), queryInt(r, "limit", 0))
	if err != nil {
		h.storeError(w, "failed to load price series", err)
		return
	}
	if series == nil {
		series = []models.PricePoint{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"series": series})
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("type") {
	case "price-analysis":
		analysis, err := h.store.PriceAnalysis(r.Context(), r.URL.Query().Get("search"))
		if err != nil {
			h.storeError(w, "failed to analyse prices", err)
			return
		}
		if analysis == nil {
			analysis = []models.PriceStats{}
		}
		h.respondJSON(w, http.StatusOK, map[string]any{"analysis": analysis})
	case "provider-stats":
		stats, err := h.store.ProviderStats(r.Context())
		if err != nil {
			h.storeError(w, "failed to compute provider stats", err)
			return
		}
		if stats == nil {
			stats = []models.ProviderStats{}
		}
		h.respondJSON(w, http.StatusOK, map[string]any{"stats": stats})
	default:
		h.respondError(w, http.StatusBadRequest, "type must be price-analysis or provider-stats")
	}
}

func (h *Handlers) PurgeResults(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.PurgeResults(r.Context())
	if err != nil {
		h.storeError(w, "failed to purge results", err)
		return
	}
	h.logger.Info("results purged", "deleted", n)
	h.respondJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

// storeError maps store sentinel errors to client statuses; anything else is
// logged and reported as 500.
func (h *Handlers) storeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "url not found")
	case errors.Is(err, models.ErrInvalidURL):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrDuplicateURL):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, "error", err)
		h.respondError(w, http.StatusInternalServerError, msg)
	}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// decodeOptional decodes a JSON body, treating an empty body as zero values.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return n
}

func validStatus(s models.URLStatus) bool {
	for _, st := range models.AllURLStatuses {
		if s == st {
			return true
		}
	}
	return false
}
