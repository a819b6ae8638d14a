package service

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/histdata"
)

// HistoryService loads historical datasets from object storage by key.
type HistoryService struct {
	reader domain.BlobReader
	cols   histdata.Columns
}

// NewHistoryService creates a HistoryService using the default columns.
func NewHistoryService(reader domain.BlobReader) *HistoryService {
	return &HistoryService{reader: reader, cols: histdata.DefaultColumns}
}

// Load implements bot.HistoryLoader.
func (s *HistoryService) Load(ctx context.Context, key string) ([]domain.HistRow, error) {
	ok, err := s.reader.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("history: stat %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("history: %s: %w", key, domain.ErrNotFound)
	}

	rc, err := s.reader.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("history: get %s: %w", key, err)
	}
	defer rc.Close()

	rows, err := histdata.Parse(rc, s.cols)
	if err != nil {
		return nil, fmt.Errorf("history: parse %s: %w", key, err)
	}
	return rows, nil
}

// Datasets lists the dataset keys stored under prefix.
func (s *HistoryService) Datasets(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	infos, err := s.reader.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("history: list %s: %w", prefix, err)
	}
	return infos, nil
}
