package research

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"topic-video-pipeline/types"

	"github.com/mmcdole/gofeed/rss"
)

var (
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// NewsFeed queries a Google News style RSS search endpoint
type NewsFeed struct {
	BaseURL    string
	HTTPClient *http.Client
}

// FetchNews returns at most limit items for topic, in feed order
func (n *NewsFeed) FetchNews(ctx context.Context, topic string, limit int) ([]types.NewsRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	feedURL := n.BaseURL + "?q=" + url.QueryEscape(topic) + "&hl=en-US&gl=US&ceid=US:en"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &RetrievalError{Source: types.SourceNews, Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; TopicVideoPipeline/1.0)")

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return nil, &RetrievalError{Source: types.SourceNews, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &RetrievalError{Source: types.SourceNews, Err: fmt.Errorf("feed returned HTTP %d", resp.StatusCode)}
	}

	parser := &rss.Parser{}
	feed, err := parser.Parse(resp.Body)
	if err != nil {
		return nil, &RetrievalError{Source: types.SourceNews, Err: fmt.Errorf("parse feed: %w", err)}
	}

	var records []types.NewsRecord
	for _, item := range feed.Items {
		if len(records) == limit {
			break
		}
		records = append(records, newsRecordFromItem(item))
	}
	return records, nil
}

func newsRecordFromItem(item *rss.Item) types.NewsRecord {
	rec := types.NewsRecord{
		Title:       strings.TrimSpace(item.Title),
		Summary:     stripHTML(item.Description),
		Source:      types.NotAvailable,
		PublishedAt: types.NotAvailable,
		Link:        strings.TrimSpace(item.Link),
	}
	if item.Source != nil && strings.TrimSpace(item.Source.Title) != "" {
		rec.Source = strings.TrimSpace(item.Source.Title)
	}
	if strings.TrimSpace(item.PubDate) != "" {
		rec.PublishedAt = strings.TrimSpace(item.PubDate)
	}
	return rec
}

func stripHTML(s string) string {
	s = htmlTag.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(html.UnescapeString(s), "\u00a0", " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
