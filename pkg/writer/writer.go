// Package writer streams a complete academic report from the LLM,
// watching the stream for section headers and in-text citations, and
// salvaging usable partial content when a stream dies mid-generation.
package writer

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/models"
)

// Part is one element of the writer's output stream.
type Part interface {
	partType() string
}

// ContentPart carries a raw text chunk.
type ContentPart struct {
	Text string `json:"text"`
}

// SectionPart announces a section header observed in the stream.
type SectionPart struct {
	Title string `json:"title"`
	Level int    `json:"level"`
}

// CitationPart announces the first use of a citation.
type CitationPart struct {
	Citation models.Citation `json:"citation"`
}

// CompletePart carries the finalized report and closes the stream.
type CompletePart struct {
	Report *models.ResearchReport `json:"report"`
}

// ErrorPart reports an unrecoverable generation failure.
type ErrorPart struct {
	Message string        `json:"message"`
	Kind    llm.ErrorKind `json:"kind"`
}

func (*ContentPart) partType() string  { return "content" }
func (*SectionPart) partType() string  { return "section" }
func (*CitationPart) partType() string { return "citation" }
func (*CompletePart) partType() string { return "complete" }
func (*ErrorPart) partType() string    { return "error" }

// Salvage thresholds for interrupted streams.
const (
	minSalvageChars  = 1000
	shortPartialNote = 3000
)

// Input is everything one report generation needs.
type Input struct {
	Plan           *models.ResearchPlan
	Rounds         []models.SearchRound
	Papers         []*models.Paper
	CriticFeedback *models.CriticAnalysis
	Iteration      int
	Style          config.CitationStyle
	TokenBudget    int
}

// Writer generates reports.
type Writer struct {
	client llm.Client
	cfg    config.LLMConfig
	usage  *llm.UsageTracker
}

// New creates a Writer. usage may be nil.
func New(client llm.Client, cfg config.LLMConfig, usage *llm.UsageTracker) *Writer {
	return &Writer{client: client, cfg: cfg, usage: usage}
}

var headerRe = regexp.MustCompile(`(?m)^(#{1,3})\s+(.+)$`)

// numericRefRe matches [N] and [N, M] groups in generated content.
var numericRefRe = regexp.MustCompile(`\[(\d+(?:,\s*\d+)*)\]`)

// Write streams one report. The returned channel closes after a
// CompletePart or ErrorPart. The citation registry is built up front so
// indices are stable for the whole generation.
func (w *Writer) Write(ctx context.Context, input *Input) (<-chan Part, *CitationRegistry) {
	registry := NewCitationRegistry(input.Papers, input.Style)
	out := make(chan Part, 64)
	go func() {
		defer close(out)
		w.run(ctx, input, registry, out)
	}()
	return out, registry
}

func (w *Writer) run(ctx context.Context, input *Input, registry *CitationRegistry, out chan<- Part) {
	prompt := buildWriterPrompt(input, registry)

	stream, model, err := w.openStream(ctx, prompt)
	if err != nil {
		w.fail(out, err)
		return
	}
	slog.Info("Writer stream opened", "model", model, "iteration", input.Iteration)

	var (
		buf           strings.Builder
		scanned       int
		seenCitations = map[string]bool{}
	)
	emit := func(part Part) bool {
		select {
		case out <- part:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var streamErr error
	for chunk := range stream {
		switch c := chunk.(type) {
		case *llm.TextChunk:
			buf.WriteString(c.Content)
			if !emit(&ContentPart{Text: c.Content}) {
				return
			}
			scanned = w.scan(buf.String(), scanned, registry, seenCitations, emit)
		case *llm.UsageChunk:
			if w.usage != nil {
				w.usage.Add(llm.TokenUsage{
					InputTokens:  c.InputTokens,
					OutputTokens: c.OutputTokens,
					TotalTokens:  c.TotalTokens,
				})
			}
		case *llm.ErrorChunk:
			streamErr = &llm.ProviderError{Message: c.Message, Kind: c.Kind, Retryable: c.Retryable}
		}
	}

	content := buf.String()
	if streamErr != nil {
		if len(content) < minSalvageChars {
			w.fail(out, streamErr)
			return
		}
		slog.Warn("Writer stream interrupted, salvaging partial content",
			"chars", len(content), "error", streamErr)
		if len(content) < shortPartialNote {
			content += "\n\n*Note: generation was interrupted; this report is incomplete.*"
		}
	}

	report := FinalizeReport(content, input.Plan, registry, input.Iteration)
	report.Partial = streamErr != nil
	emit(&CompletePart{Report: report})
}

// openStream tries the primary model, retries once after a short pause,
// then falls back to the light model.
func (w *Writer) openStream(ctx context.Context, prompt *llm.GenerateInput) (<-chan llm.Chunk, string, error) {
	attempts := []struct {
		model string
		pause time.Duration
	}{
		{w.cfg.PrimaryModel, 0},
		{w.cfg.PrimaryModel, 2 * time.Second},
		{w.cfg.LightModel, time.Second},
	}
	var lastErr error
	for _, a := range attempts {
		if a.model == "" {
			continue
		}
		if a.pause > 0 {
			select {
			case <-time.After(a.pause):
			case <-ctx.Done():
				return nil, "", ctx.Err()
			}
		}
		// Each attempt gets its own copy so earlier attempts stay intact.
		call := *prompt
		call.Model = a.model
		stream, err := w.client.Generate(ctx, &call)
		if err == nil {
			return stream, a.model, nil
		}
		lastErr = err
		slog.Warn("Writer stream request failed", "model", a.model, "error", err)
		if !llm.Classify(err).Retryable() {
			break
		}
	}
	return nil, "", lastErr
}

// scan walks newly arrived content for section headers and citations.
// Only complete lines are scanned for headers; refs can be matched as
// soon as the closing bracket or parenthesis arrives.
func (w *Writer) scan(content string, from int, registry *CitationRegistry, seen map[string]bool, emit func(Part) bool) int {
	lastNL := strings.LastIndexByte(content, '\n')
	if lastNL > from {
		for _, m := range headerRe.FindAllStringSubmatch(content[from:lastNL+1], -1) {
			emit(&SectionPart{Level: len(m[1]), Title: strings.TrimSpace(m[2])})
		}
	}

	for _, m := range numericRefRe.FindAllStringSubmatch(content[from:], -1) {
		for _, num := range strings.Split(m[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(num))
			if err != nil {
				continue
			}
			if c, ok := registry.ByIndex(n); ok && !seen[c.ID] {
				seen[c.ID] = true
				emit(&CitationPart{Citation: *c})
			}
		}
	}
	for ref, c := range registry.authorYearRefs() {
		if !seen[c.ID] && strings.Contains(content[from:], ref) {
			seen[c.ID] = true
			emit(&CitationPart{Citation: *c})
		}
	}

	if lastNL > from {
		return lastNL + 1
	}
	return from
}

// NumericRefs returns every numeric reference marker in content, with
// grouped forms like [1, 2] split into individual [N] markers.
func NumericRefs(content string) []string {
	var refs []string
	for _, m := range numericRefRe.FindAllStringSubmatch(content, -1) {
		for _, num := range strings.Split(m[1], ",") {
			refs = append(refs, "["+strings.TrimSpace(num)+"]")
		}
	}
	return refs
}

func (w *Writer) fail(out chan<- Part, err error) {
	kind := llm.Classify(err)
	msg := kind.UserMessage()
	slog.Error("Writer generation failed", "kind", kind, "error", err)
	out <- &ErrorPart{Message: msg, Kind: kind}
}

// FinalizeReport parses accumulated content into the report structure.
// Title comes from the single level-1 header or falls back to the plan's
// main question; the abstract is the body under an "Abstract" section.
func FinalizeReport(content string, plan *models.ResearchPlan, registry *CitationRegistry, iteration int) *models.ResearchReport {
	report := &models.ResearchReport{
		Content:        content,
		GeneratedAt:    time.Now(),
		IterationCount: iteration,
	}

	report.Sections = ParseSections(content)
	for _, sec := range report.Sections {
		if sec.Level == 1 && report.Title == "" {
			report.Title = sec.Title
		}
		if strings.EqualFold(sec.Title, "abstract") && report.Abstract == "" {
			report.Abstract = sec.Content
		}
	}
	if report.Title == "" && plan != nil {
		report.Title = plan.MainQuestion
	}

	// Only citations actually used in the text are attached.
	used := map[string]bool{}
	for _, m := range numericRefRe.FindAllStringSubmatch(content, -1) {
		for _, num := range strings.Split(m[1], ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(num)); err == nil {
				if c, ok := registry.ByIndex(n); ok {
					used[c.ID] = true
				}
			}
		}
	}
	for ref, c := range registry.authorYearRefs() {
		if strings.Contains(content, ref) {
			used[c.ID] = true
		}
	}
	for _, c := range registry.Citations() {
		if used[c.ID] {
			report.Citations = append(report.Citations, c)
		}
	}
	return report
}

// ParseSections splits markdown content on level 1-3 headers.
func ParseSections(content string) []models.ReportSection {
	var sections []models.ReportSection
	var current *models.ReportSection
	var body strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(body.String())
		sections = append(sections, *current)
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if m := headerRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &models.ReportSection{Level: len(m[1]), Title: strings.TrimSpace(m[2])}
			continue
		}
		if current != nil {
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	flush()
	return sections
}

// authorYearRefs exposes non-numeric refs for stream matching.
func (r *CitationRegistry) authorYearRefs() map[string]*models.Citation {
	if r.style.Numeric() {
		return nil
	}
	return r.byRef
}
