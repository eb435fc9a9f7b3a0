package visuals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Keyframe seeds a generation from an earlier generation or an image
type Keyframe struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	URL  string `json:"url,omitempty"`
}

type Keyframes struct {
	Frame0 *Keyframe `json:"frame0,omitempty"`
}

// GenerationRequest is the body of POST /generations
type GenerationRequest struct {
	Prompt      string     `json:"prompt"`
	AspectRatio string     `json:"aspect_ratio,omitempty"`
	Model       string     `json:"model,omitempty"`
	Keyframes   *Keyframes `json:"keyframes,omitempty"`
}

type GenerationAssets struct {
	Video string `json:"video"`
	Image string `json:"image"`
}

// Generation is the service's view of one job
type Generation struct {
	ID            string            `json:"id"`
	State         string            `json:"state"`
	FailureReason string            `json:"failure_reason"`
	Assets        *GenerationAssets `json:"assets"`
	CreatedAt     string            `json:"created_at"`
}

// VideoURL returns the rendered clip location, empty until completed
func (g *Generation) VideoURL() string {
	if g.Assets == nil {
		return ""
	}
	return g.Assets.Video
}

// GenerationAPI is the asynchronous video generation service
type GenerationAPI interface {
	Create(ctx context.Context, req GenerationRequest) (*Generation, error)
	Get(ctx context.Context, id string) (*Generation, error)
}

// LumaClient talks to the Dream Machine generation API
type LumaClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewLumaClient creates a new client
func NewLumaClient(baseURL, apiKey string) *LumaClient {
	return &LumaClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *LumaClient) Create(ctx context.Context, genReq GenerationRequest) (*Generation, error) {
	body, err := json.Marshal(genReq)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/generations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *LumaClient) Get(ctx context.Context, id string) (*Generation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/generations/"+id, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *LumaClient) do(req *http.Request) (*Generation, error) {
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: HTTP %d: %s", req.Method, req.URL.Path, resp.StatusCode, truncate(string(data), 200))
	}

	var gen Generation
	if err := json.Unmarshal(data, &gen); err != nil {
		return nil, fmt.Errorf("parse generation: %w", err)
	}
	if gen.ID == "" {
		return nil, fmt.Errorf("generation response without id")
	}
	return &gen, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
