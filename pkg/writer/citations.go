package writer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
)

// CitationRegistry assigns each candidate paper a stable numeric index
// before streaming begins, so the model can emit the exact refs and the
// stream watcher can recognize them.
type CitationRegistry struct {
	style     config.CitationStyle
	citations []models.Citation
	byIndex   map[int]*models.Citation
	byRef     map[string]*models.Citation
}

// NewCitationRegistry indexes papers 1..N in the given order.
func NewCitationRegistry(papers []*models.Paper, style config.CitationStyle) *CitationRegistry {
	r := &CitationRegistry{
		style:   style,
		byIndex: make(map[int]*models.Citation, len(papers)),
		byRef:   make(map[string]*models.Citation, len(papers)),
	}
	r.citations = make([]models.Citation, 0, len(papers))
	for i, p := range papers {
		index := i + 1
		c := models.Citation{
			ID:         fmt.Sprintf("cite-%d", index),
			PaperID:    p.ID,
			Title:      p.Title,
			Authors:    authorList(p.Authors),
			Year:       p.Year,
			DOI:        p.DOI,
			URL:        p.URL,
			Journal:    p.Journal,
			Conference: p.Conference,
			Volume:     p.Volume,
			Issue:      p.Issue,
			Pages:      p.Pages,
			InTextRef:  inTextRef(index, p, style),
		}
		r.citations = append(r.citations, c)
		r.byIndex[index] = &r.citations[len(r.citations)-1]
		r.byRef[c.InTextRef] = &r.citations[len(r.citations)-1]
	}
	return r
}

// Citations returns all registered citations in index order.
func (r *CitationRegistry) Citations() []models.Citation {
	out := make([]models.Citation, len(r.citations))
	copy(out, r.citations)
	return out
}

// ByIndex resolves a numeric reference.
func (r *CitationRegistry) ByIndex(n int) (*models.Citation, bool) {
	c, ok := r.byIndex[n]
	return c, ok
}

// ByRef resolves a literal in-text reference string.
func (r *CitationRegistry) ByRef(ref string) (*models.Citation, bool) {
	c, ok := r.byRef[ref]
	return c, ok
}

// inTextRef renders the reference the model should emit for paper p.
func inTextRef(index int, p *models.Paper, style config.CitationStyle) string {
	if style.Numeric() {
		return fmt.Sprintf("[%d]", index)
	}
	surname := firstAuthorSurname(p.Authors)
	if surname == "" {
		surname = "Anon"
	}
	year := "n.d."
	if p.Year != 0 {
		year = fmt.Sprintf("%d", p.Year)
	}
	switch style {
	case config.CitationStyleAPA:
		return fmt.Sprintf("(%s, %s)", surname, year)
	default: // mla, chicago
		return fmt.Sprintf("(%s %s)", surname, year)
	}
}

// authorList renders "A. Author, B. Author et al." for the citation
// record.
func authorList(authors []models.Author) string {
	if len(authors) == 0 {
		return "Unknown"
	}
	names := make([]string, 0, 3)
	for i, a := range authors {
		if i == 3 {
			return strings.Join(names, ", ") + " et al."
		}
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

func firstAuthorSurname(authors []models.Author) string {
	if len(authors) == 0 {
		return ""
	}
	fields := strings.Fields(authors[0].Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// FormatReferences renders the References block for the final report.
func FormatReferences(citations []models.Citation, style config.CitationStyle) string {
	if len(citations) == 0 {
		return ""
	}
	sorted := make([]models.Citation, len(citations))
	copy(sorted, citations)
	if !style.Numeric() {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Authors < sorted[j].Authors })
	}

	var sb strings.Builder
	sb.WriteString("## References\n\n")
	for _, c := range sorted {
		switch {
		case style.Numeric():
			// Keep each entry under the marker the text actually uses,
			// even when the used set is sparse.
			fmt.Fprintf(&sb, "%s %s", c.InTextRef, referenceEntry(c))
		default:
			sb.WriteString(referenceEntry(c))
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func referenceEntry(c models.Citation) string {
	var parts []string
	parts = append(parts, c.Authors)
	if c.Year != 0 {
		parts = append(parts, fmt.Sprintf("(%d)", c.Year))
	}
	if c.Title != "" {
		parts = append(parts, c.Title+".")
	}
	venue := c.Journal
	if venue == "" {
		venue = c.Conference
	}
	if venue != "" {
		v := venue
		if c.Volume != "" {
			v += " " + c.Volume
			if c.Issue != "" {
				v += "(" + c.Issue + ")"
			}
		}
		if c.Pages != "" {
			v += ", " + c.Pages
		}
		parts = append(parts, v+".")
	}
	if c.DOI != "" {
		parts = append(parts, "https://doi.org/"+c.DOI)
	} else if c.URL != "" {
		parts = append(parts, c.URL)
	}
	return strings.Join(parts, " ")
}
