package visuals

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// ImageFinder returns the URL of a still that can seed a scene
type ImageFinder interface {
	FindImage(ctx context.Context, query string) (string, error)
}

// SearchImages finds reference images through a Google Programmable Search
// engine configured for image search
type SearchImages struct {
	svc  *customsearch.Service
	cx   string
	pick func(n int) int
}

// NewSearchImages builds the finder. opts are passed to the API client.
func NewSearchImages(ctx context.Context, apiKey, cx string, opts ...option.ClientOption) (*SearchImages, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY and GOOGLE_CSE_ID must both be set")
	}
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("custom search client: %w", err)
	}
	return &SearchImages{svc: svc, cx: cx, pick: rand.Intn}, nil
}

func (s *SearchImages) FindImage(ctx context.Context, query string) (string, error) {
	query = searchQuery(query)
	res, err := s.svc.Cse.List().Cx(s.cx).Q(query).SearchType("image").Num(10).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("image search %q: %w", query, err)
	}

	var links []string
	for _, item := range res.Items {
		if item.Link != "" && strings.HasPrefix(item.Link, "http") {
			links = append(links, item.Link)
		}
	}
	if len(links) == 0 {
		return "", fmt.Errorf("no image results for %q", query)
	}
	link := links[s.pick(len(links))]
	log.Printf("[visuals] Reference image for %q: %s", query, truncate(link, 60))
	return link, nil
}

// searchQuery keeps the first meaningful words of a visual description
func searchQuery(text string) string {
	filler := map[string]bool{
		"the": true, "a": true, "an": true, "of": true, "and": true, "with": true,
		"in": true, "on": true, "shot": true, "camera": true, "slowly": true,
		"showing": true, "view": true, "close-up": true, "wide": true,
	}
	var kept []string
	for _, w := range strings.Fields(text) {
		clean := strings.ToLower(strings.Trim(w, ".,!?\"'()"))
		if clean == "" || filler[clean] {
			continue
		}
		kept = append(kept, clean)
		if len(kept) == 6 {
			break
		}
	}
	return strings.Join(kept, " ")
}
