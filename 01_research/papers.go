package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"topic-video-pipeline/types"
)

// DefaultMinCitations is the citation floor a paper must reach to be kept
const DefaultMinCitations = 100

// PaperStream yields search results one at a time. Next returns
// ErrStreamDone once exhausted and a *RecordError for a single bad record.
type PaperStream interface {
	Next(ctx context.Context) (types.PaperRecord, error)
}

// Stats reports how much of the stream was consumed
type Stats struct {
	Scanned   int
	Kept      int
	Skipped   int
	Malformed int
}

// FetchPapers keeps papers with at least DefaultMinCitations citations
func FetchPapers(ctx context.Context, stream PaperStream, limit int) ([]types.PaperRecord, Stats, error) {
	return PaperFilter{MinCitations: DefaultMinCitations}.Fetch(ctx, stream, limit)
}

// PaperFilter pulls from a stream until limit qualifying papers are found
type PaperFilter struct {
	MinCitations int
}

// Fetch scans without bound and stops on limit kept records or on stream
// exhaustion. Malformed records are counted and skipped; any other stream
// error aborts.
func (f PaperFilter) Fetch(ctx context.Context, stream PaperStream, limit int) ([]types.PaperRecord, Stats, error) {
	floor := f.MinCitations
	if floor < DefaultMinCitations {
		floor = DefaultMinCitations
	}

	var stats Stats
	var kept []types.PaperRecord
	for len(kept) < limit {
		if err := ctx.Err(); err != nil {
			return kept, stats, err
		}
		rec, err := stream.Next(ctx)
		if errors.Is(err, ErrStreamDone) {
			break
		}
		var recErr *RecordError
		if errors.As(err, &recErr) {
			stats.Scanned++
			stats.Malformed++
			continue
		}
		if err != nil {
			return kept, stats, err
		}
		stats.Scanned++
		if rec.Citations < floor {
			stats.Skipped++
			continue
		}
		kept = append(kept, rec)
		stats.Kept++
	}

	log.Printf("[research] Checked %d papers to find %d that meet the criteria (%d below %d citations, %d malformed)",
		stats.Scanned, stats.Kept, stats.Skipped, floor, stats.Malformed)
	return kept, stats, nil
}

// SemanticScholarStream pages through the Semantic Scholar paper search
type SemanticScholarStream struct {
	baseURL    string
	apiKey     string
	query      string
	pageSize   int
	httpClient *http.Client
	retryDelay time.Duration

	offset   int
	position int
	buf      []json.RawMessage
	done     bool
}

// NewSemanticScholarStream builds a stream for query. apiKey may be empty.
func NewSemanticScholarStream(baseURL, apiKey, query string, pageSize int, client *http.Client) *SemanticScholarStream {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &SemanticScholarStream{
		baseURL:    baseURL,
		apiKey:     apiKey,
		query:      query,
		pageSize:   pageSize,
		httpClient: client,
		retryDelay: 2 * time.Second,
	}
}

type paperPage struct {
	Total  int               `json:"total"`
	Offset int               `json:"offset"`
	Next   *int              `json:"next"`
	Data   []json.RawMessage `json:"data"`
}

type scholarPaper struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Abstract      *string `json:"abstract"`
	Year          *int    `json:"year"`
	CitationCount *int    `json:"citationCount"`
	URL           string  `json:"url"`
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

func (s *SemanticScholarStream) Next(ctx context.Context) (types.PaperRecord, error) {
	if len(s.buf) == 0 {
		if s.done {
			return types.PaperRecord{}, ErrStreamDone
		}
		if err := s.fetchPage(ctx); err != nil {
			return types.PaperRecord{}, err
		}
		if len(s.buf) == 0 {
			return types.PaperRecord{}, ErrStreamDone
		}
	}

	raw := s.buf[0]
	s.buf = s.buf[1:]
	s.position++

	rec, err := decodePaper(raw)
	if err != nil {
		return types.PaperRecord{}, &RecordError{Position: s.position, Err: err}
	}
	return rec, nil
}

func decodePaper(raw json.RawMessage) (types.PaperRecord, error) {
	var p scholarPaper
	if err := json.Unmarshal(raw, &p); err != nil {
		return types.PaperRecord{}, err
	}
	if strings.TrimSpace(p.Title) == "" {
		return types.PaperRecord{}, fmt.Errorf("paper without title")
	}
	if p.CitationCount == nil {
		return types.PaperRecord{}, fmt.Errorf("paper %q without citation count", p.Title)
	}

	rec := types.PaperRecord{
		Title:     strings.TrimSpace(p.Title),
		Abstract:  types.NotAvailable,
		Year:      types.NotAvailable,
		Citations: *p.CitationCount,
		Link:      types.NotAvailable,
		PDFLink:   types.NotAvailable,
	}
	for _, a := range p.Authors {
		if a.Name != "" {
			rec.Authors = append(rec.Authors, a.Name)
		}
	}
	if len(rec.Authors) == 0 {
		rec.Authors = []string{types.NotAvailable}
	}
	if p.Abstract != nil && strings.TrimSpace(*p.Abstract) != "" {
		rec.Abstract = strings.TrimSpace(*p.Abstract)
	}
	if p.Year != nil {
		rec.Year = strconv.Itoa(*p.Year)
	}
	if p.URL != "" {
		rec.Link = p.URL
	}
	if p.OpenAccessPDF != nil && p.OpenAccessPDF.URL != "" {
		rec.PDFLink = p.OpenAccessPDF.URL
	}
	return rec, nil
}

func (s *SemanticScholarStream) fetchPage(ctx context.Context) error {
	params := url.Values{}
	params.Set("query", s.query)
	params.Set("offset", strconv.Itoa(s.offset))
	params.Set("limit", strconv.Itoa(s.pageSize))
	params.Set("fields", "title,authors,abstract,year,citationCount,url,openAccessPdf")
	reqURL := s.baseURL + "?" + params.Encode()

	var page paperPage
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		page, err = s.getPage(ctx, reqURL)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[research] Paper page attempt %d failed: %v — retrying...", attempt, err)
		if attempt < 3 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.retryDelay):
			}
		}
	}
	if err != nil {
		return &RetrievalError{Source: types.SourcePapers, Err: err}
	}

	s.buf = page.Data
	if page.Next == nil || len(page.Data) == 0 {
		s.done = true
	} else {
		s.offset = *page.Next
	}
	return nil
}

func (s *SemanticScholarStream) getPage(ctx context.Context, reqURL string) (paperPage, error) {
	var page paperPage
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return page, err
	}
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return page, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return page, fmt.Errorf("paper search returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return page, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}
