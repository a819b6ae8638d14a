package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// DatasetLister lists historical datasets in object storage.
type DatasetLister interface {
	Datasets(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// DatasetHandler serves GET /api/datasets.
type DatasetHandler struct {
	datasets DatasetLister
}

// NewDatasetHandler creates a DatasetHandler. datasets is nil when object
// storage is disabled.
func NewDatasetHandler(datasets DatasetLister) *DatasetHandler {
	return &DatasetHandler{datasets: datasets}
}

type datasetJSON struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListDatasets returns the keys usable as histKey, filtered by ?prefix=.
func (h *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	if h.datasets == nil {
		writeError(w, http.StatusNotFound, "object storage disabled")
		return
	}
	infos, err := h.datasets.Datasets(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]datasetJSON, len(infos))
	for i, info := range infos {
		out[i] = datasetJSON{Key: info.Path, Size: info.Size, LastModified: info.LastModified}
	}
	writeJSON(w, http.StatusOK, out)
}
