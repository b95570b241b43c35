package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onoki/glance/internal/model"
	"github.com/onoki/glance/internal/repository"
)

// SearchService answers text queries and rebuilds the index.
type SearchService struct {
	tx     *repository.TxManager
	tasks  *repository.TaskRepository
	search *repository.SearchRepository
	log    *slog.Logger
}

func NewSearchService(
	tx *repository.TxManager,
	tasks *repository.TaskRepository,
	search *repository.SearchRepository,
	log *slog.Logger,
) *SearchService {
	return &SearchService{tx: tx, tasks: tasks, search: search, log: log}
}

// Query returns tasks whose text matches raw, most recently updated first.
// A match expression the FTS engine rejects degrades to substring matching.
func (s *SearchService) Query(ctx context.Context, raw string) ([]model.TaskView, error) {
	if strings.TrimSpace(raw) == "" {
		return []model.TaskView{}, nil
	}

	match := repository.BuildMatchQuery(raw)
	likes := repository.BuildLikePatterns(raw)

	rows, err := s.search.Query(ctx, match, likes)
	if errors.Is(err, repository.ErrMatchSyntax) {
		s.log.Warn("search match expression rejected, using substring match",
			slog.String("query", raw), slog.Any("error", err))
		rows, err = s.search.Query(ctx, "", likes)
	}
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return model.Views(rows), nil
}

// IndexExists reports whether the search table is present.
func (s *SearchService) IndexExists(ctx context.Context) (bool, error) {
	return s.search.Exists(ctx)
}

// StaleEntries counts tasks whose index entry is missing or out of date,
// plus entries left behind by deleted tasks.
func (s *SearchService) StaleEntries(ctx context.Context) (int, error) {
	entries, err := s.search.Entries(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := s.tasks.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	stale := 0
	for _, t := range rows {
		text, ok := entries[t.ID]
		if !ok || text != indexText(t) {
			stale++
		}
		delete(entries, t.ID)
	}
	return stale + len(entries), nil
}

// Rebuild recomputes every entry from the tasks table in one transaction.
// It returns the number of indexed tasks.
func (s *SearchService) Rebuild(ctx context.Context) (int, error) {
	var n int
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		rows, err := s.tasks.ListAll(ctx)
		if err != nil {
			return err
		}
		entries := make([]repository.SearchEntry, 0, len(rows))
		for _, t := range rows {
			entries = append(entries, repository.SearchEntry{TaskID: t.ID, Text: indexText(t)})
		}
		n = len(entries)
		return s.search.Rebuild(ctx, entries)
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild search index: %w", err)
	}
	return n, nil
}
