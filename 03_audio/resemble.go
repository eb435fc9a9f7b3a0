package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ResembleClient creates synchronous clips through the Resemble v2 API
type ResembleClient struct {
	BaseURL     string
	APIKey      string
	ProjectUUID string
	VoiceUUID   string
	HTTPClient  *http.Client
}

type clipRequest struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	VoiceUUID  string `json:"voice_uuid"`
	IsArchived bool   `json:"is_archived"`
	Sync       bool   `json:"sync"`
}

type clipResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Item    *struct {
		UUID     string `json:"uuid"`
		AudioSrc string `json:"audio_src"`
	} `json:"item"`
}

// statusError is an HTTP failure; 5xx and 429 are worth retrying
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func (e *statusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// CreateClip synthesizes text and returns the audio reference, which is
// empty when the service accepted the call but produced no audio
func (c *ResembleClient) CreateClip(ctx context.Context, title, text string) (string, error) {
	body, err := json.Marshal(clipRequest{
		Title:     title,
		Body:      text,
		VoiceUUID: c.VoiceUUID,
		Sync:      true,
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/projects/%s/clips", strings.TrimRight(c.BaseURL, "/"), c.ProjectUUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token token="+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", &statusError{Code: resp.StatusCode, Body: truncate(string(respBytes), 200)}
	}

	var clip clipResponse
	if err := json.Unmarshal(respBytes, &clip); err != nil {
		return "", fmt.Errorf("parse clip response: %w", err)
	}
	if clip.Item == nil {
		return "", nil
	}
	return clip.Item.AudioSrc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
