package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/shotcoach/pkg/client"
	"github.com/menta2k/shotcoach/pkg/types"
)

// Client locates subjects through a llama.cpp server's OpenAI-compatible API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ client.VisionClient = (*Client)(nil)

// Message is an OpenAI-compatible chat message; Content is a string or []ContentPart
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// NewClient creates a client for serverURL, defaulting to http://localhost:8080
func NewClient(serverURL string) *Client {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// LocateSubject asks the model for the main subject box
func (c *Client) LocateSubject(ctx context.Context, model, prompt, imgB64 string) (*types.Location, error) {
	if imgB64 == "" {
		return nil, errors.New("image is required")
	}
	if prompt == "" {
		prompt = client.LocatePrompt
	}

	req := ChatCompletionRequest{
		Model: model,
		Messages: []Message{
			{
				Role: "user",
				Content: []ContentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &ImageURL{URL: "data:image/jpeg;base64," + imgB64}},
				},
			},
		},
		Temperature: 0.1,
		MaxTokens:   512,
	}

	body, err := c.post(ctx, "/v1/chat/completions", req)
	if err != nil {
		return nil, err
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in completion")
	}

	text := messageText(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, errors.New("empty response from llama.cpp server")
	}
	return client.ParseLocation(text)
}

// messageText extracts the reply from string or content-part messages
func messageText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		for _, item := range c {
			if part, ok := item.(map[string]any); ok {
				if text, ok := part["text"].(string); ok && text != "" {
					return text
				}
			}
		}
	}
	return ""
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
