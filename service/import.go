package service

import (
	"context"
	"fmt"

	"github.com/moreskylab/Sentio/importer"
	"github.com/moreskylab/Sentio/indexsync"
	"github.com/viant/afs"
)

// ImportResult reports a seeding run.
type ImportResult struct {
	Imported int
	Reindex  *indexsync.Report
}

// ImportArticles loads articles from URL (a local path or any afs location),
// stores them, then rebuilds the index once. The format follows the file
// extension: YAML, JSON, xlsx/xls spreadsheets or a PDF document.
func (s *Service) ImportArticles(ctx context.Context, URL string) (*ImportResult, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("import: download %s: %w", URL, err)
	}
	articles, err := importer.Decode(URL, data)
	if err != nil {
		return nil, fmt.Errorf("import: %s: %w", URL, err)
	}
	n, err := s.articles.Import(ctx, articles)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Imported: n}
	if result.Reindex, err = s.Reindex(ctx, false); err != nil {
		return result, err
	}
	return result, nil
}
