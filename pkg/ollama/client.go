package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/shotcoach/pkg/client"
	"github.com/menta2k/shotcoach/pkg/types"
)

const defaultTimeout = 2 * time.Minute

// Client locates subjects through an Ollama server
type Client struct {
	client *api.Client
}

var _ client.VisionClient = (*Client)(nil)

// NewClient creates a client for the server at ollamaURL. Any path in the URL is
// ignored. A nil httpClient uses http.DefaultClient.
func NewClient(ollamaURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid ollama URL %q: scheme and host required", ollamaURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &Client{client: api.NewClient(base, httpClient)}, nil
}

// LocateSubject asks the model for the main subject box
func (c *Client) LocateSubject(ctx context.Context, model, prompt, imgB64 string) (*types.Location, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	if prompt == "" {
		prompt = client.LocatePrompt
	}

	stream := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &stream,
		Options: options(model),
	}

	var content strings.Builder
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("empty response from ollama")
	}

	return client.ParseLocation(content.String())
}

// options keeps localization replies short and deterministic
func options(model string) map[string]any {
	opts := map[string]any{"temperature": 0.1}
	if m := strings.ToLower(model); strings.Contains(m, "minicpm-v") || strings.Contains(m, "minicpmv") {
		opts["num_ctx"] = 4096
	}
	return opts
}
