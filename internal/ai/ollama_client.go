package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClient talks to a local Ollama instance over its HTTP API.
type OllamaClient struct {
	baseURL     string
	visionModel string
	textModel   string
	httpClient  *http.Client
}

func NewOllamaClient(baseURL, visionModel, textModel string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL:     baseURL,
		visionModel: visionModel,
		textModel:   textModel,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Images  []string               `json:"images,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Available probes /api/tags for the configured vision model. Returns
// ErrModelUnavailable when the backend is down or the model is missing.
func (c *OllamaClient) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: backend returned %d", ErrModelUnavailable, resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	for _, m := range tags.Models {
		if m.Name == c.visionModel {
			return nil
		}
	}
	return fmt.Errorf("%w: model %q not loaded", ErrModelUnavailable, c.visionModel)
}

// AnalyzeImage sends one frame to the vision model and returns the raw
// model output.
func (c *OllamaClient) AnalyzeImage(ctx context.Context, imageData []byte, prompt string) (string, error) {
	return c.generate(ctx, ollamaGenerateRequest{
		Model:  c.visionModel,
		Prompt: prompt,
		Images: []string{base64.StdEncoding.EncodeToString(imageData)},
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0.2,
		},
	})
}

// GenerateText runs the text model, used for plan rationale prose.
func (c *OllamaClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, ollamaGenerateRequest{
		Model:  c.textModel,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0.3,
		},
	})
}

func (c *OllamaClient) generate(ctx context.Context, reqBody ollamaGenerateRequest) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call inference backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var genResp ollamaGenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if genResp.Error != "" {
		return "", fmt.Errorf("inference backend error: %s", genResp.Error)
	}

	return genResp.Response, nil
}
