// Package arxiv implements the source adapter for the arXiv Atom API.
// Every arXiv record is open access with a direct PDF link, which makes
// it the preferred enrichment source for preprint-heavy fields.
package arxiv

import (
	"context"
	"encoding/xml"
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
	defaultBaseURL = "https://export.arxiv.org/api/query"
	idPrefix       = "arxiv-"
)

// Adapter talks to the arXiv query API.
type Adapter struct {
	httpClient *http.Client
	throttle   *source.Throttle
	baseURL    string
}

// New creates an arXiv adapter. arXiv asks for no more than one request
// every three seconds per client.
func New(httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Adapter{
		httpClient: httpClient,
		throttle:   source.NewThrottle(1.0/3.0, 1),
		baseURL:    defaultBaseURL,
	}
}

func (a *Adapter) Name() config.SourceName { return config.SourceArxiv }
func (a *Adapter) IDPrefix() string        { return idPrefix }

// Search implements source.Adapter.
func (a *Adapter) Search(ctx context.Context, opts source.SearchOptions) (*source.SearchResult, error) {
	if err := a.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	q := url.Values{}
	q.Set("search_query", "all:"+opts.Query)
	q.Set("start", strconv.Itoa(opts.Offset))
	q.Set("max_results", strconv.Itoa(limit))
	if opts.SortBy == config.SortByDate {
		q.Set("sortBy", "submittedDate")
		q.Set("sortOrder", "descending")
	}

	feed, err := a.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	papers := make([]*models.Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		p := e.toPaper()
		// The API has no year filter, so apply it client side.
		if opts.YearFrom > 0 && p.Year != 0 && p.Year < opts.YearFrom {
			continue
		}
		if opts.YearTo > 0 && p.Year != 0 && p.Year > opts.YearTo {
			continue
		}
		papers = append(papers, p)
	}
	return &source.SearchResult{
		Papers:    papers,
		TotalHits: feed.TotalResults,
		Source:    config.SourceArxiv,
	}, nil
}

// GetPaper implements source.Adapter.
func (a *Adapter) GetPaper(ctx context.Context, id string) (*models.Paper, error) {
	arxivID := strings.TrimPrefix(id, idPrefix)
	if arxivID == "" || arxivID == id {
		return nil, source.ErrPaperNotFound
	}
	if err := a.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("id_list", arxivID)
	feed, err := a.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(feed.Entries) == 0 || feed.Entries[0].ID == "" {
		return nil, source.ErrPaperNotFound
	}
	return feed.Entries[0].toPaper(), nil
}

// IsAvailable implements source.Adapter.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	q := url.Values{}
	q.Set("search_query", "all:test")
	q.Set("max_results", "1")
	_, err := a.fetch(ctx, q)
	return err == nil
}

func (a *Adapter) fetch(ctx context.Context, q url.Values) (*feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &source.TransportError{Source: "arxiv", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &source.TransportError{
			Source:     "arxiv",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}
	var f feed
	if err := xml.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, &source.TransportError{Source: "arxiv", Message: "decoding feed: " + err.Error(), Err: err}
	}
	return &f, nil
}

type feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	Entries      []entry  `xml:"entry"`
}

type entry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	DOI       string `xml:"doi"`
	Authors   []struct {
		Name        string `xml:"name"`
		Affiliation string `xml:"affiliation"`
	} `xml:"author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
	} `xml:"link"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

func (e *entry) toPaper() *models.Paper {
	p := &models.Paper{
		ID:         idPrefix + shortArxivID(e.ID),
		Title:      collapseWhitespace(e.Title),
		Abstract:   collapseWhitespace(e.Summary),
		DOI:        models.NormalizeDOI(e.DOI),
		URL:        e.ID,
		OpenAccess: true,
	}
	if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
		p.Year = t.Year()
	}
	for _, au := range e.Authors {
		author := models.Author{Name: au.Name}
		if au.Affiliation != "" {
			author.Affiliations = []string{au.Affiliation}
		}
		p.Authors = append(p.Authors, author)
	}
	for _, l := range e.Links {
		if l.Type == "application/pdf" || l.Title == "pdf" {
			p.PDFURL = l.Href
		}
	}
	if p.PDFURL == "" {
		p.PDFURL = fmt.Sprintf("https://arxiv.org/pdf/%s", shortArxivID(e.ID))
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			p.Subjects = append(p.Subjects, c.Term)
		}
	}
	p.AddOrigin(string(config.SourceArxiv))
	p.RecomputeAvailability()
	return p
}

// shortArxivID reduces http://arxiv.org/abs/2301.00001v2 to 2301.00001.
func shortArxivID(full string) string {
	id := full
	if i := strings.LastIndex(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	}
	if i := strings.LastIndexByte(id, 'v'); i > 0 {
		if _, err := strconv.Atoi(id[i+1:]); err == nil {
			id = id[:i]
		}
	}
	return id
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
