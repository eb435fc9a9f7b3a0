package research

import (
	"context"
	"fmt"
	"log"
	"time"

	"topic-video-pipeline/types"

	"github.com/vartanbeno/go-reddit/v2/reddit"
)

// PostSearcher is the slice of the Reddit subreddit service used here
type PostSearcher interface {
	SearchPosts(ctx context.Context, query, subreddit string, opts *reddit.ListPostSearchOptions) ([]*reddit.Post, *reddit.Response, error)
}

// Discussions searches Reddit posts about a topic
type Discussions struct {
	Search     PostSearcher
	Subreddits []string
	MinScore   int
}

// NewDiscussions uses the read-only Reddit client, which needs no credentials
func NewDiscussions(subreddits []string, minScore int) (*Discussions, error) {
	client, err := reddit.NewReadonlyClient(reddit.WithUserAgent("topic-video-pipeline/1.0"))
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &Discussions{Search: client.Subreddit, Subreddits: subreddits, MinScore: minScore}, nil
}

// FetchDiscussions returns up to limit posts scoring at least MinScore
func (d *Discussions) FetchDiscussions(ctx context.Context, topic string, limit int) ([]types.DiscussionRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	var records []types.DiscussionRecord
	var lastErr error
	failed := 0
	for _, sub := range d.Subreddits {
		posts, _, err := d.Search.SearchPosts(ctx, topic, sub, &reddit.ListPostSearchOptions{
			ListPostOptions: reddit.ListPostOptions{
				ListOptions: reddit.ListOptions{Limit: 25},
				Time:        "year",
			},
			Sort: "relevance",
		})
		if err != nil {
			log.Printf("[research] Reddit r/%s error: %v", sub, err)
			lastErr = err
			failed++
			continue
		}
		for _, post := range posts {
			if post.Score < d.MinScore {
				continue
			}
			records = append(records, discussionFromPost(post))
			if len(records) == limit {
				return records, nil
			}
		}
	}
	if failed == len(d.Subreddits) && lastErr != nil {
		return nil, &RetrievalError{Source: types.SourceReddit, Err: lastErr}
	}
	return records, nil
}

func discussionFromPost(p *reddit.Post) types.DiscussionRecord {
	rec := types.DiscussionRecord{
		Title:     p.Title,
		Body:      p.Body,
		Subreddit: p.SubredditName,
		Author:    p.Author,
		Score:     p.Score,
		Comments:  p.NumberOfComments,
		PostedAt:  types.NotAvailable,
		Link:      "https://reddit.com" + p.Permalink,
	}
	if rec.Body == "" {
		rec.Body = types.NotAvailable
	}
	if p.Created != nil && !p.Created.IsZero() {
		rec.PostedAt = p.Created.UTC().Format(time.RFC3339)
	}
	return rec
}
