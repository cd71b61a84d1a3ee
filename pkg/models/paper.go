package models

import "time"

// DataAvailability describes how much of a paper's content is known locally.
// Levels form a total order; enrichment only ever moves a paper upward.
type DataAvailability int

const (
	MetadataOnly DataAvailability = iota
	WithAbstract
	WithPDFLink
	WithFullText
)

// String returns the wire name for the availability level.
func (d DataAvailability) String() string {
	switch d {
	case MetadataOnly:
		return "metadata_only"
	case WithAbstract:
		return "with_abstract"
	case WithPDFLink:
		return "with_pdf_link"
	case WithFullText:
		return "with_full_text"
	default:
		return "unknown"
	}
}

// SectionType classifies a typed section of a paper's full text.
type SectionType string

const (
	SectionAbstract        SectionType = "abstract"
	SectionIntroduction    SectionType = "introduction"
	SectionBackground      SectionType = "background"
	SectionMethods         SectionType = "methods"
	SectionResults         SectionType = "results"
	SectionDiscussion      SectionType = "discussion"
	SectionConclusion      SectionType = "conclusion"
	SectionReferences      SectionType = "references"
	SectionAcknowledgments SectionType = "acknowledgments"
	SectionOther           SectionType = "other"
)

// Author is a single entry in a paper's ordered author list.
type Author struct {
	Name         string   `json:"name"`
	Affiliations []string `json:"affiliations,omitempty"`
	ORCID        string   `json:"orcid,omitempty"`
}

// PaperSection is one extracted region of a paper's full text.
type PaperSection struct {
	Type      SectionType `json:"type"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	CharStart int         `json:"char_start"`
	CharEnd   int         `json:"char_end"`
}

// Paper is the canonical paper entity. Identity is stable once assigned;
// every reference elsewhere in the engine is a paper ID, not an owned copy.
type Paper struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Authors       []Author       `json:"authors,omitempty"`
	Abstract      string         `json:"abstract,omitempty"`
	Year          int            `json:"year,omitempty"`
	DOI           string         `json:"doi,omitempty"`
	URL           string         `json:"url,omitempty"`
	PDFURL        string         `json:"pdf_url,omitempty"`
	OpenAccess    bool           `json:"open_access"`
	CitationCount int            `json:"citation_count"`
	Subjects      []string       `json:"subjects,omitempty"`
	Journal       string         `json:"journal,omitempty"`
	Conference    string         `json:"conference,omitempty"`
	Volume        string         `json:"volume,omitempty"`
	Issue         string         `json:"issue,omitempty"`
	Pages         string         `json:"pages,omitempty"`
	Language      string         `json:"language,omitempty"`
	FullText      string         `json:"full_text,omitempty"`
	Sections      []PaperSection `json:"sections,omitempty"`

	Availability DataAvailability `json:"availability"`
	SourceOrigin []string         `json:"source_origin,omitempty"`
	LastEnriched time.Time        `json:"last_enriched,omitzero"`
}

// DeriveAvailability recomputes the availability level from present fields.
// The stored level must always equal this derivation.
func (p *Paper) DeriveAvailability() DataAvailability {
	switch {
	case p.FullText != "":
		return WithFullText
	case p.PDFURL != "":
		return WithPDFLink
	case p.Abstract != "":
		return WithAbstract
	default:
		return MetadataOnly
	}
}

// RecomputeAvailability derives the level and stores it, returning the result.
func (p *Paper) RecomputeAvailability() DataAvailability {
	p.Availability = p.DeriveAvailability()
	return p.Availability
}

// HasOrigin reports whether the paper was observed from the named source.
func (p *Paper) HasOrigin(source string) bool {
	for _, s := range p.SourceOrigin {
		if s == source {
			return true
		}
	}
	return false
}

// AddOrigin records a source the paper was observed from. The origin set
// grows monotonically; duplicates are ignored.
func (p *Paper) AddOrigin(sources ...string) {
	for _, s := range sources {
		if s != "" && !p.HasOrigin(s) {
			p.SourceOrigin = append(p.SourceOrigin, s)
		}
	}
}

// Merge folds other into p field by field. The canonical ID is kept; text
// fields prefer the longer non-empty value; authors are unioned by normalized
// name keeping the record with more affiliations; citation counts take the
// max; open-access flags OR; availability takes the higher level and the
// origin sets union. Merging never loses a non-empty field and never
// decreases the availability level.
func (p *Paper) Merge(other *Paper) {
	if other == nil {
		return
	}
	p.Title = longerOf(p.Title, other.Title)
	p.Abstract = longerOf(p.Abstract, other.Abstract)
	p.Journal = longerOf(p.Journal, other.Journal)
	p.Conference = longerOf(p.Conference, other.Conference)
	p.DOI = firstNonEmpty(p.DOI, other.DOI)
	p.URL = firstNonEmpty(p.URL, other.URL)
	p.PDFURL = firstNonEmpty(p.PDFURL, other.PDFURL)
	p.Volume = firstNonEmpty(p.Volume, other.Volume)
	p.Issue = firstNonEmpty(p.Issue, other.Issue)
	p.Pages = firstNonEmpty(p.Pages, other.Pages)
	p.Language = firstNonEmpty(p.Language, other.Language)
	p.FullText = longerOf(p.FullText, other.FullText)
	if len(p.Sections) == 0 {
		p.Sections = other.Sections
	}
	if other.Year != 0 && p.Year == 0 {
		p.Year = other.Year
	}
	if other.CitationCount > p.CitationCount {
		p.CitationCount = other.CitationCount
	}
	p.OpenAccess = p.OpenAccess || other.OpenAccess
	p.Authors = mergeAuthors(p.Authors, other.Authors)
	p.Subjects = unionStrings(p.Subjects, other.Subjects)
	p.AddOrigin(other.SourceOrigin...)
	if other.LastEnriched.After(p.LastEnriched) {
		p.LastEnriched = other.LastEnriched
	}
	if derived := p.DeriveAvailability(); derived > p.Availability {
		p.Availability = derived
	}
	if other.Availability > p.Availability {
		p.Availability = other.Availability
	}
}

func longerOf(a, b string) string {
	if len(b) > len(a) {
		return b
	}
	return a
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		if !seen[s] {
			a = append(a, s)
			seen[s] = true
		}
	}
	return a
}

// mergeAuthors unions two author lists by normalized name, keeping the
// record with more affiliations when both lists contain the same author.
func mergeAuthors(a, b []Author) []Author {
	if len(a) == 0 {
		return b
	}
	index := make(map[string]int, len(a))
	for i, au := range a {
		index[NormalizeAuthorName(au.Name)] = i
	}
	for _, au := range b {
		key := NormalizeAuthorName(au.Name)
		if i, ok := index[key]; ok {
			if len(au.Affiliations) > len(a[i].Affiliations) {
				a[i] = au
			} else if a[i].ORCID == "" && au.ORCID != "" {
				a[i].ORCID = au.ORCID
			}
			continue
		}
		index[key] = len(a)
		a = append(a, au)
	}
	return a
}
