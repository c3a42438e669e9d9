package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"takeoff-workers/internal/common/logger"
)

// RESTProvider calls the internal model gateway over HTTP.
type RESTProvider struct {
	baseURL    string
	apiKey     string
	maxRetries int
	client     *http.Client
	logger     logger.Logger
}

func NewRESTProvider(baseURL, apiKey string, maxRetries int, log logger.Logger) *RESTProvider {
	return &RESTProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		maxRetries: maxRetries,
		client:     &http.Client{
			// No client timeout; the per-pass context bounds the call.
		},
		logger: log.WithFields(map[string]interface{}{"provider": "rest"}),
	}
}

type restImage struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
}

type restRequest struct {
	Model        string      `json:"model"`
	SystemPrompt string      `json:"system_prompt,omitempty"`
	Prompt       string      `json:"prompt"`
	Images       []restImage `json:"images,omitempty"`
	MaxTokens    int         `json:"max_tokens,omitempty"`
	Temperature  float64     `json:"temperature"`
	ResponseJSON bool        `json:"response_json,omitempty"`
}

type restResponse struct {
	Text string `json:"text"`
}

func (p *RESTProvider) Generate(ctx context.Context, req *Request) (string, error) {
	payload := restRequest{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Prompt:       req.UserPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		ResponseJSON: req.ForceJSON,
	}
	for _, img := range req.Images {
		payload.Images = append(payload.Images, restImage{URL: img.URL, MimeType: img.MimeType})
	}

	body, _ := json.Marshal(payload)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ErrGenerateTimeout
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/ai/generate", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrGenerateFailed, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, lastErr = p.client.Do(httpReq)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			return "", ErrGenerateTimeout
		}

		p.logger.Warn("provider call failed, retrying", map[string]interface{}{
			"attempt": attempt,
			"error":   lastErr.Error(),
		})
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", ErrGenerateTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrGenerateFailed, lastErr)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: no successful response after retries", ErrGenerateFailed)
	}
	defer resp.Body.Close()

	var apiResponse restResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", fmt.Errorf("%w: decode error: %v", ErrGenerateFailed, err)
	}

	if strings.TrimSpace(apiResponse.Text) == "" {
		return "", fmt.Errorf("%w: empty response text", ErrGenerateFailed)
	}

	return apiResponse.Text, nil
}
