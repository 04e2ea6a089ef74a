package aigenerate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/loomhq/loom/pkg/engine"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client calls the generation provider's REST API. The base URL is
// overridable so tests can point it at a local server.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{baseURL: baseURL, http: httpClient}
}

type generateRequest struct {
	SystemInstruction *content  `json:"system_instruction,omitempty"`
	Contents          []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// GenerateText sends the prompts to the provider and extracts the first text
// segment of the response.
func (c *Client) GenerateText(ctx context.Context, apiKey, model, systemPrompt, userPrompt string) (string, error) {
	payload := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: systemPrompt}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: userPrompt}}}},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("failed to build generation request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("x-goog-api-key", apiKey)

	response, err := c.http.Do(request)
	if err != nil {
		return "", engine.Retriable(fmt.Errorf("generation request failed: %w", err))
	}

	defer func() {
		_ = response.Body.Close()
	}()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return "", engine.Retriable(fmt.Errorf("failed to read generation response: %w", err))
	}

	if response.StatusCode >= http.StatusInternalServerError {
		return "", engine.Retriable(fmt.Errorf("generation provider returned %s", response.Status))
	}

	if response.StatusCode != http.StatusOK {
		return "", engine.NonRetriablef("generation provider returned %s: %s", response.Status, string(raw))
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", engine.NonRetriablef("generation response contained no text")
	}

	return decoded.Candidates[0].Content.Parts[0].Text, nil
}
