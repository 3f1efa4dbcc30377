package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"refcache/internal/cache"
	"refcache/internal/entity"
	"refcache/internal/resolver"
	"refcache/internal/shared/errors"
	"refcache/internal/shared/response"
)

// Resolution is the part of the resolver the API drives and reports on.
type Resolution interface {
	TriggerResolution()
	State() resolver.State
	Passes() uint64
	LastReport() (resolver.Report, bool)
	Reset(ctx context.Context) error
}

// EntityStore is the read side of the entity store.
type EntityStore interface {
	Lookup(category entity.Category, id int64) (any, bool)
	Label(category entity.Category, id int64) string
	Stats() cache.Stats
}

// SourceCounter reports how many owner items each source holds.
type SourceCounter interface {
	Counts() map[string]int
}

type StatsResponse struct {
	Cache      cache.Stats      `json:"cache"`
	State      string           `json:"state"`
	Passes     uint64           `json:"passes"`
	Sources    map[string]int   `json:"sources"`
	LastReport *resolver.Report `json:"last_report,omitempty"`
}

type EntityResponse struct {
	Category entity.Category `json:"category"`
	ID       int64           `json:"id"`
	Label    string          `json:"label"`
	Record   any             `json:"record"`
}

type CacheHandler struct {
	store    EntityStore
	resolver Resolution
	sources  SourceCounter
}

func NewCacheHandler(store EntityStore, resolver Resolution, sources SourceCounter) *CacheHandler {
	return &CacheHandler{store: store, resolver: resolver, sources: sources}
}

func (h *CacheHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "cache_stats")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	resp := StatsResponse{
		Cache:   h.store.Stats(),
		State:   h.resolver.State().String(),
		Passes:  h.resolver.Passes(),
		Sources: h.sources.Counts(),
	}
	if report, ok := h.resolver.LastReport(); ok {
		resp.LastReport = &report
	}

	response.Success(w, http.StatusOK, resp)
}

// GetEntity returns one cached record. Unresolved IDs answer 404 with the
// fallback label consumers display in the meantime.
func (h *CacheHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "get_entity")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	category, ok := entity.ParseCategory(r.PathValue("category"))
	if !ok {
		response.Error(w, r, logger, errors.NotFoundf("unknown category %q", r.PathValue("category")))
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, r, logger, errors.Validationf("invalid %s ID %q", category, r.PathValue("id")))
		return
	}

	logger = logger.With("category", category, "id", id)

	record, ok := h.store.Lookup(category, id)
	if !ok {
		response.ErrorWithDetails(w, r, logger,
			errors.NotFoundf("%s %d is not cached", category, id),
			map[string]any{"label": h.store.Label(category, id)})
		return
	}

	response.Success(w, http.StatusOK, EntityResponse{
		Category: category,
		ID:       id,
		Label:    h.store.Label(category, id),
		Record:   record,
	})
}

func (h *CacheHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "resolve")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	h.resolver.TriggerResolution()
	logger.Debug("Resolution triggered via API")

	response.Success(w, http.StatusAccepted, map[string]string{
		"state": h.resolver.State().String(),
	})
}

// Reset drops the whole cache between passes and schedules a rebuild of
// what the owner collections still reference.
func (h *CacheHandler) Reset(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "reset_cache")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	if err := h.resolver.Reset(r.Context()); err != nil {
		response.Error(w, r, logger, errors.WrapInternal("failed to clear reference cache", err))
		return
	}

	logger.Info("Reference cache reset via API")

	response.Success(w, http.StatusOK, h.store.Stats())
}
