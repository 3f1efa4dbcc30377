package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"refcache/internal/shared/errors"
	"refcache/internal/shared/response"
)

// maxIngestBytes bounds one owner collection upload.
const maxIngestBytes = 32 << 20

type Ingester interface {
	Ingest(source string, ownerID int64, r io.Reader) (int, error)
}

type IngestResponse struct {
	Source  string `json:"source"`
	OwnerID int64  `json:"owner_id"`
	Items   int    `json:"items"`
}

type OwnersHandler struct {
	sources Ingester
}

func NewOwnersHandler(sources Ingester) *OwnersHandler {
	return &OwnersHandler{sources: sources}
}

// ReplaceCollection swaps an owner's collection for the JSON array in the
// request body. The change schedules a resolution pass.
func (h *OwnersHandler) ReplaceCollection(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "replace_collection")

	if r.Method != http.MethodPut {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBytes)

	ownerID, err := strconv.ParseInt(r.PathValue("ownerID"), 10, 64)
	if err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid owner ID", err))
		return
	}

	source := r.PathValue("source")
	logger = logger.With("source", source, "owner_id", ownerID)

	n, err := h.sources.Ingest(source, ownerID, r.Body)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	logger.Info("Owner collection replaced", "items", n)
	response.Success(w, http.StatusOK, IngestResponse{
		Source:  source,
		OwnerID: ownerID,
		Items:   n,
	})
}
