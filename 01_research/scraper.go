package research

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"topic-video-pipeline/config"
	"topic-video-pipeline/types"
)

// Scraper holds all retrieval dependencies
type Scraper struct {
	cfg        *config.Config
	httpClient *http.Client
	news       *NewsFeed
	papers     func(topic string) PaperStream
	reddit     func() (*Discussions, error)
}

// New creates a new Scraper
func New(cfg *config.Config) *Scraper {
	client := &http.Client{Timeout: time.Duration(cfg.Research.RequestTimeoutSec) * time.Second}
	s := &Scraper{
		cfg:        cfg,
		httpClient: client,
		news:       &NewsFeed{BaseURL: cfg.Research.NewsFeedURL, HTTPClient: client},
	}
	s.papers = func(topic string) PaperStream {
		return NewSemanticScholarStream(cfg.Research.PapersAPIURL, os.Getenv("SEMANTIC_SCHOLAR_API_KEY"),
			topic, cfg.Research.PapersPageSize, client)
	}
	s.reddit = func() (*Discussions, error) {
		return NewDiscussions(cfg.Research.Subreddits, cfg.Research.MinRedditScore)
	}
	return s
}

// Run fetches the corpus the query asks for
func (s *Scraper) Run(ctx context.Context, q types.Query) (*types.Corpus, error) {
	log.Printf("[research] Fetching up to %d %s records for %q...", q.Count, q.Source, q.Topic)

	corpus := &types.Corpus{}
	switch q.Source {
	case types.SourceNews:
		news, err := s.news.FetchNews(ctx, q.Topic, q.Count)
		if err != nil {
			return nil, err
		}
		corpus.News = news

	case types.SourcePapers:
		papers, _, err := PaperFilter{MinCitations: s.cfg.Research.MinCitations}.Fetch(ctx, s.papers(q.Topic), q.Count)
		if err != nil {
			return nil, err
		}
		corpus.Papers = papers

	case types.SourceReddit:
		d, err := s.reddit()
		if err != nil {
			return nil, &RetrievalError{Source: types.SourceReddit, Err: err}
		}
		posts, err := d.FetchDiscussions(ctx, q.Topic, q.Count)
		if err != nil {
			return nil, err
		}
		corpus.Discussions = posts

	default:
		return nil, fmt.Errorf("unsupported source kind %q", q.Source)
	}

	if corpus.Len() == 0 {
		log.Printf("[research] ⚠️  No %s records found for %q", q.Source, q.Topic)
	} else {
		log.Printf("[research] ✅ %d %s records", corpus.Len(), q.Source)
	}
	return corpus, nil
}
