// Package enrich raises papers up the data-availability ladder
// (metadata -> abstract -> PDF link -> full text) by walking secondary
// sources and parsing PDFs, and formats paper content per workflow
// stage under a token budget.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
)

// Result reports one enrichment attempt.
type Result struct {
	Paper         *models.Paper           `json:"paper"`
	Enriched      bool                    `json:"enriched"`
	PreviousLevel models.DataAvailability `json:"previous_level"`
	NewLevel      models.DataAvailability `json:"new_level"`
	Sources       []string                `json:"sources,omitempty"`
	Errors        []string                `json:"errors,omitempty"`
}

// Enricher raises paper availability via secondary lookups and PDF
// extraction.
type Enricher struct {
	registry *source.Registry
	pdf      *PDFFetcher
	cfg      config.EnricherConfig
	cache    *paperCache
}

// New creates an Enricher over the registered sources. pdf may be nil
// when PDF parsing is disabled.
func New(registry *source.Registry, pdf *PDFFetcher, cfg config.EnricherConfig) *Enricher {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Enricher{
		registry: registry,
		pdf:      pdf,
		cfg:      cfg,
		cache:    newPaperCache(ttl),
	}
}

// Enrich attempts to raise paper to at least target, stopping as soon
// as the target is reached. Lookup failures are recorded, not fatal;
// the paper always comes back at its best achieved level.
func (e *Enricher) Enrich(ctx context.Context, paper *models.Paper, target models.DataAvailability) (*Result, error) {
	prev := paper.RecomputeAvailability()
	result := &Result{Paper: paper, PreviousLevel: prev}

	if cached, ok := e.cache.get(paper.ID); ok && cached.Availability >= target {
		paper.Merge(cached)
		result.Sources = append(result.Sources, "cache")
		return e.finish(result, target)
	}
	if prev >= target {
		if paper.FullText != "" && len(paper.Sections) == 0 {
			paper.Sections = ExtractSections(paper.FullText)
		}
		result.NewLevel = prev
		return result, nil
	}

	type step struct {
		name string
		run  func(context.Context, *models.Paper) (bool, error)
	}
	steps := []step{
		{"core", e.fromCORE},
		{"pdf", e.fromPDF},
		{"arxiv", e.fromArxiv},
		{"semantic-scholar", e.fromSemanticScholar},
	}
	for _, s := range steps {
		if paper.RecomputeAvailability() >= target {
			break
		}
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())
			break
		}
		applied, err := s.run(ctx, paper)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", s.name, err))
			continue
		}
		if applied {
			result.Sources = append(result.Sources, s.name)
		}
	}

	if paper.FullText != "" && len(paper.Sections) == 0 {
		paper.Sections = ExtractSections(paper.FullText)
	}
	return e.finish(result, target)
}

func (e *Enricher) finish(result *Result, target models.DataAvailability) (*Result, error) {
	paper := result.Paper
	result.NewLevel = paper.RecomputeAvailability()
	result.Enriched = result.NewLevel > result.PreviousLevel
	if result.Enriched {
		paper.LastEnriched = time.Now()
	}
	e.cache.put(paper)
	slog.Debug("Paper enrichment finished",
		"paper_id", paper.ID,
		"from", result.PreviousLevel.String(),
		"to", result.NewLevel.String(),
		"target", target.String(),
		"sources", result.Sources,
		"errors", len(result.Errors))
	return result, nil
}

// EnrichBatch enriches papers concurrently under the configured limit,
// returning results in input order.
func (e *Enricher) EnrichBatch(ctx context.Context, papers []*models.Paper, target models.DataAvailability) []*Result {
	limit := int64(e.cfg.Concurrency)
	if limit <= 0 {
		limit = 4
	}
	sem := semaphore.NewWeighted(limit)
	results := make([]*Result, len(papers))
	for i, p := range papers {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = &Result{Paper: p, PreviousLevel: p.Availability, NewLevel: p.Availability,
				Errors: []string{err.Error()}}
			continue
		}
		go func() {
			defer sem.Release(1)
			res, _ := e.Enrich(ctx, p, target)
			results[i] = res
		}()
	}
	// Drain remaining permits so every worker has finished.
	if err := sem.Acquire(context.Background(), limit); err == nil {
		sem.Release(limit)
	}
	return results
}

// fromCORE tries CORE by id, then DOI, then exact-title search.
func (e *Enricher) fromCORE(ctx context.Context, paper *models.Paper) (bool, error) {
	adapter, ok := e.registry.Get(config.SourceCORE)
	if !ok {
		return false, nil
	}
	if strings.HasPrefix(paper.ID, adapter.IDPrefix()) {
		found, err := adapter.GetPaper(ctx, paper.ID)
		if err == nil {
			paper.Merge(found)
			return true, nil
		}
		if !isNotFound(err) {
			return false, err
		}
	}
	return e.searchAndMerge(ctx, adapter, paper)
}

// fromPDF downloads and extracts the linked PDF.
func (e *Enricher) fromPDF(ctx context.Context, paper *models.Paper) (bool, error) {
	if e.pdf == nil || !e.cfg.EnablePDFParsing || paper.PDFURL == "" || paper.FullText != "" {
		return false, nil
	}
	text, err := e.pdf.ExtractText(ctx, paper.PDFURL)
	if err != nil {
		return false, err
	}
	if text == "" {
		return false, nil
	}
	paper.FullText = text
	return true, nil
}

// fromArxiv looks the paper up on arXiv, primarily to obtain a PDF URL.
func (e *Enricher) fromArxiv(ctx context.Context, paper *models.Paper) (bool, error) {
	adapter, ok := e.registry.Get(config.SourceArxiv)
	if !ok {
		return false, nil
	}
	id := arxivID(paper, adapter.IDPrefix())
	if id == "" {
		return false, nil
	}
	found, err := adapter.GetPaper(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	paper.Merge(found)
	return true, nil
}

// fromSemanticScholar fetches a better abstract when the current one is
// short.
func (e *Enricher) fromSemanticScholar(ctx context.Context, paper *models.Paper) (bool, error) {
	if len(paper.Abstract) >= 200 {
		return false, nil
	}
	adapter, ok := e.registry.Get(config.SourceSemanticScholar)
	if !ok {
		return false, nil
	}
	if strings.HasPrefix(paper.ID, adapter.IDPrefix()) {
		found, err := adapter.GetPaper(ctx, paper.ID)
		if err == nil {
			paper.Merge(found)
			return true, nil
		}
		if !isNotFound(err) {
			return false, err
		}
	}
	return e.searchAndMerge(ctx, adapter, paper)
}

// searchAndMerge looks a paper up on one source by DOI, then exact
// title, and merges the best title match.
func (e *Enricher) searchAndMerge(ctx context.Context, adapter source.Adapter, paper *models.Paper) (bool, error) {
	queries := make([]string, 0, 2)
	if paper.DOI != "" {
		queries = append(queries, paper.DOI)
	}
	if paper.Title != "" {
		queries = append(queries, paper.Title)
	}
	want := models.NormalizeTitle(paper.Title)
	for _, q := range queries {
		res, err := adapter.Search(ctx, source.SearchOptions{Query: q, Limit: 3})
		if err != nil {
			return false, err
		}
		for _, candidate := range res.Papers {
			if sameRecord(paper, candidate, want) {
				paper.Merge(candidate)
				return true, nil
			}
		}
	}
	return false, nil
}

func sameRecord(paper, candidate *models.Paper, wantTitle string) bool {
	if paper.DOI != "" && candidate.DOI != "" {
		return models.NormalizeDOI(paper.DOI) == models.NormalizeDOI(candidate.DOI)
	}
	return wantTitle != "" && models.NormalizeTitle(candidate.Title) == wantTitle
}

// arxivID resolves the arXiv id for a paper from its id, origin or URL.
func arxivID(paper *models.Paper, prefix string) string {
	if strings.HasPrefix(paper.ID, prefix) {
		return paper.ID
	}
	for _, u := range []string{paper.URL, paper.PDFURL} {
		if i := strings.Index(u, "arxiv.org/abs/"); i >= 0 {
			return prefix + strings.TrimSuffix(u[i+len("arxiv.org/abs/"):], "/")
		}
		if i := strings.Index(u, "arxiv.org/pdf/"); i >= 0 {
			id := strings.TrimSuffix(u[i+len("arxiv.org/pdf/"):], ".pdf")
			return prefix + id
		}
	}
	return ""
}

func isNotFound(err error) bool {
	return errors.Is(err, source.ErrPaperNotFound)
}
