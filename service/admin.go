package service

import (
	"context"
	"sort"

	"github.com/moreskylab/Sentio/vectordb"
)

// CheckResult compares the index against the article store.
type CheckResult struct {
	Index    *vectordb.Stats
	Articles int
	// Missing lists article ids absent from the index.
	Missing []int64
	// Orphaned lists indexed ids with no article.
	Orphaned []int64
}

// Healthy reports whether every article is indexed exactly once.
func (r *CheckResult) Healthy() bool {
	return r.Index.Healthy() && len(r.Missing) == 0 && len(r.Orphaned) == 0
}

// Check verifies index integrity and coverage of the article store.
func (s *Service) Check(ctx context.Context) (*CheckResult, error) {
	table := s.cfg.Index.Table
	if table == "" {
		table = vectordb.DefaultTable
	}
	stats, err := s.index.Check(ctx, table)
	if err != nil {
		return nil, err
	}
	articles, err := s.articles.All(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := s.index.IDs(ctx, table)
	if err != nil {
		return nil, err
	}
	indexed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		indexed[id] = true
	}
	result := &CheckResult{Index: stats, Articles: len(articles)}
	known := make(map[int64]bool, len(articles))
	for _, article := range articles {
		known[article.ID] = true
		if !indexed[article.ID] {
			result.Missing = append(result.Missing, article.ID)
		}
	}
	for id := range indexed {
		if !known[id] {
			result.Orphaned = append(result.Orphaned, id)
		}
	}
	sort.Slice(result.Orphaned, func(i, j int) bool { return result.Orphaned[i] < result.Orphaned[j] })
	return result, nil
}
