package enrich

import (
	"regexp"
	"strings"

	"github.com/paperscope/paperscope/pkg/models"
)

// headerPatterns match canonical section headers at the start of a
// line, with optional numbering ("3. Results", "IV. Discussion").
var headerPatterns = []struct {
	sectionType models.SectionType
	re          *regexp.Regexp
}{
	{models.SectionAbstract, regexp.MustCompile(`(?i)^\s*(?:[0-9IVX]+[.)]\s*)?abstract\s*:?\s*$`)},
	{models.SectionIntroduction, regexp.MustCompile(`(?i)^\s*(?:[0-9IVX]+[.)]\s*)?introduction\s*:?\s*$`)},
	{models.SectionBackground, regexp.MustCompile(`(?i)^\s*(?:[0-9IVX]+[.)]\s*)?(background|related work|literature review)\s*:?\s*$`)},
	{models.SectionMethods, regexp.MustCompile(`(?i)^\s*(?:[0-9IVX]+[.)]\s*)?(methods?|methodology|materials and methods|experimental setup)\s*:?\s*$`)},
	{models.SectionResults, regexp.MustCompile(`(?i)^\s*(?:[0-9IVX]+[.)]\s*)?(results?|findings|evaluation)\s*:?\s*$`)},
	{models.SectionDiscussion, regexp.MustCompile(`(?i)^\s*(?:[0-9IVX]+[.)]\s*)?discussion\s*:?\s*$`)},
	{models.SectionConclusion, regexp.MustCompile(`(?i)^\s*(?:[0-9IVX]+[.)]\s*)?(conclusions?|summary|future work)\s*:?\s*$`)},
	{models.SectionReferences, regexp.MustCompile(`(?i)^\s*(?:[0-9IVX]+[.)]\s*)?(references|bibliography)\s*:?\s*$`)},
	{models.SectionAcknowledgments, regexp.MustCompile(`(?i)^\s*(?:[0-9IVX]+[.)]\s*)?acknowledge?ments?\s*:?\s*$`)},
}

// maxHeaderLineLen guards against prose lines that happen to start with
// a section word.
const maxHeaderLineLen = 80

// ExtractSections splits extracted full text into typed sections by a
// line-oriented header scan. When no header matches, the whole body
// becomes one "other" section.
func ExtractSections(text string) []models.PaperSection {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var sections []models.PaperSection
	var current *models.PaperSection
	var body strings.Builder
	offset := 0

	flush := func(end int) {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(body.String())
		current.CharEnd = end
		if current.Content != "" {
			sections = append(sections, *current)
		}
		body.Reset()
	}

	for _, line := range lines {
		lineStart := offset
		offset += len(line) + 1

		if t, ok := matchHeader(line); ok {
			flush(lineStart)
			current = &models.PaperSection{
				Type:      t,
				Title:     strings.TrimSpace(line),
				CharStart: lineStart,
			}
			continue
		}
		if current != nil {
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	flush(len(text))

	if len(sections) == 0 {
		return []models.PaperSection{{
			Type:    models.SectionOther,
			Content: strings.TrimSpace(text),
			CharEnd: len(text),
		}}
	}
	return sections
}

func matchHeader(line string) (models.SectionType, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > maxHeaderLineLen {
		return "", false
	}
	for _, hp := range headerPatterns {
		if hp.re.MatchString(trimmed) {
			return hp.sectionType, true
		}
	}
	return "", false
}
