// Package openalex implements the source adapter for the OpenAlex works
// API. OpenAlex is keyless, broad-coverage and generous with rate
// limits, which is why it anchors the fallback chain.
package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/models"
	"github.com/paperscope/paperscope/pkg/source"
)

const (
	defaultBaseURL = "https://api.openalex.org"
	idPrefix       = "oa-"
)

// Adapter talks to the OpenAlex works endpoint.
type Adapter struct {
	httpClient *http.Client
	throttle   *source.Throttle
	baseURL    string
	mailto     string
}

// New creates an OpenAlex adapter. mailto joins the polite pool and may
// be empty.
func New(httpClient *http.Client, mailto string) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Adapter{
		httpClient: httpClient,
		throttle:   source.NewThrottle(8, 4),
		baseURL:    defaultBaseURL,
		mailto:     mailto,
	}
}

func (a *Adapter) Name() config.SourceName { return config.SourceOpenAlex }
func (a *Adapter) IDPrefix() string        { return idPrefix }

// Search implements source.Adapter.
func (a *Adapter) Search(ctx context.Context, opts source.SearchOptions) (*source.SearchResult, error) {
	if err := a.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("search", opts.Query)
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	q.Set("per-page", strconv.Itoa(limit))
	if opts.Offset > 0 {
		q.Set("page", strconv.Itoa(opts.Offset/limit+1))
	}
	if filter := buildFilter(opts); filter != "" {
		q.Set("filter", filter)
	}
	switch opts.SortBy {
	case config.SortByCitations:
		q.Set("sort", "cited_by_count:desc")
	case config.SortByDate:
		q.Set("sort", "publication_date:desc")
	}
	if a.mailto != "" {
		q.Set("mailto", a.mailto)
	}

	var payload worksResponse
	if err := a.getJSON(ctx, "/works?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	papers := make([]*models.Paper, 0, len(payload.Results))
	for _, w := range payload.Results {
		papers = append(papers, w.toPaper())
	}
	return &source.SearchResult{
		Papers:    papers,
		TotalHits: payload.Meta.Count,
		Source:    config.SourceOpenAlex,
	}, nil
}

// GetPaper implements source.Adapter.
func (a *Adapter) GetPaper(ctx context.Context, id string) (*models.Paper, error) {
	workID := strings.TrimPrefix(id, idPrefix)
	if workID == "" || workID == id {
		return nil, source.ErrPaperNotFound
	}
	if err := a.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	var w work
	if err := a.getJSON(ctx, "/works/"+url.PathEscape(workID), &w); err != nil {
		var te *source.TransportError
		if errors.As(err, &te) && te.StatusCode == http.StatusNotFound {
			return nil, source.ErrPaperNotFound
		}
		return nil, err
	}
	return w.toPaper(), nil
}

// IsAvailable implements source.Adapter.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var payload worksResponse
	err := a.getJSON(ctx, "/works?per-page=1", &payload)
	return err == nil
}

func buildFilter(opts source.SearchOptions) string {
	var parts []string
	if opts.YearFrom > 0 {
		parts = append(parts, fmt.Sprintf("from_publication_date:%d-01-01", opts.YearFrom))
	}
	if opts.YearTo > 0 {
		parts = append(parts, fmt.Sprintf("to_publication_date:%d-12-31", opts.YearTo))
	}
	if opts.OpenAccess {
		parts = append(parts, "is_oa:true")
	}
	return strings.Join(parts, ",")
}

func (a *Adapter) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &source.TransportError{Source: "openalex", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &source.TransportError{
			Source:     "openalex",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &source.TransportError{Source: "openalex", Message: "decoding response: " + err.Error(), Err: err}
	}
	return nil
}

type worksResponse struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []work `json:"results"`
}

type work struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	DOI             string           `json:"doi"`
	PublicationYear int              `json:"publication_year"`
	CitedByCount    int              `json:"cited_by_count"`
	Language        string           `json:"language"`
	AbstractIndex   map[string][]int `json:"abstract_inverted_index"`
	OpenAccess      struct {
		IsOA  bool   `json:"is_oa"`
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
	PrimaryLocation struct {
		LandingPageURL string `json:"landing_page_url"`
		PDFURL         string `json:"pdf_url"`
		Source         struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	Biblio struct {
		Volume    string `json:"volume"`
		Issue     string `json:"issue"`
		FirstPage string `json:"first_page"`
		LastPage  string `json:"last_page"`
	} `json:"biblio"`
	Authorships []struct {
		Author struct {
			DisplayName string `json:"display_name"`
			ORCID       string `json:"orcid"`
		} `json:"author"`
		Institutions []struct {
			DisplayName string `json:"display_name"`
		} `json:"institutions"`
	} `json:"authorships"`
	Concepts []struct {
		DisplayName string  `json:"display_name"`
		Score       float64 `json:"score"`
	} `json:"concepts"`
}

func (w *work) toPaper() *models.Paper {
	p := &models.Paper{
		ID:            idPrefix + shortWorkID(w.ID),
		Title:         w.Title,
		Abstract:      reconstructAbstract(w.AbstractIndex),
		Year:          w.PublicationYear,
		DOI:           models.NormalizeDOI(w.DOI),
		URL:           w.PrimaryLocation.LandingPageURL,
		PDFURL:        w.PrimaryLocation.PDFURL,
		OpenAccess:    w.OpenAccess.IsOA,
		CitationCount: w.CitedByCount,
		Journal:       w.PrimaryLocation.Source.DisplayName,
		Volume:        w.Biblio.Volume,
		Issue:         w.Biblio.Issue,
		Language:      w.Language,
	}
	if p.PDFURL == "" && w.OpenAccess.OAURL != "" {
		p.PDFURL = w.OpenAccess.OAURL
	}
	if w.Biblio.FirstPage != "" {
		p.Pages = w.Biblio.FirstPage
		if w.Biblio.LastPage != "" {
			p.Pages += "-" + w.Biblio.LastPage
		}
	}
	for _, as := range w.Authorships {
		author := models.Author{
			Name:  as.Author.DisplayName,
			ORCID: strings.TrimPrefix(as.Author.ORCID, "https://orcid.org/"),
		}
		for _, inst := range as.Institutions {
			author.Affiliations = append(author.Affiliations, inst.DisplayName)
		}
		p.Authors = append(p.Authors, author)
	}
	for _, c := range w.Concepts {
		if c.Score >= 0.4 {
			p.Subjects = append(p.Subjects, c.DisplayName)
		}
	}
	p.AddOrigin(string(config.SourceOpenAlex))
	p.RecomputeAvailability()
	return p
}

// shortWorkID strips the https://openalex.org/ prefix, keeping W123....
func shortWorkID(full string) string {
	if i := strings.LastIndexByte(full, '/'); i >= 0 {
		return full[i+1:]
	}
	return full
}

// reconstructAbstract rebuilds plain text from OpenAlex's inverted
// index, which maps each word to its positions.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	maxPos := -1
	for _, positions := range index {
		for _, pos := range positions {
			if pos > maxPos {
				maxPos = pos
			}
		}
	}
	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, pos := range positions {
			if pos >= 0 && pos < len(words) {
				words[pos] = word
			}
		}
	}
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}
