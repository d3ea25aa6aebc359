package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cjbpq/ai-note-app/internal/common"
)

// OpenAIConfig configures the OpenAI-compatible chat-completions client.
type OpenAIConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// OpenAIClient talks to an OpenAI-compatible vision endpoint. Images are
// embedded as base64 data URLs in the user message.
type OpenAIClient struct {
	cfg  OpenAIConfig
	http *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIClient) Available() (bool, string) {
	if c.cfg.APIKey == "" {
		return false, "vision API key is not configured"
	}
	if c.cfg.Endpoint == "" {
		return false, "vision endpoint is not configured"
	}
	if c.cfg.Model == "" {
		return false, "vision model is not configured"
	}
	return true, ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *OpenAIClient) Generate(ctx context.Context, images []Image, prompt Prompt) (*Result, error) {
	if ok, reason := c.Available(); !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrCollaboratorUnavailable, reason)
	}

	parts := make([]contentPart, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURL(img)},
		})
	}
	parts = append(parts, contentPart{Type: "text", Text: prompt.User})

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt.System},
			{Role: "user", Content: parts},
		},
	}
	if prompt.Schema != nil {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.Endpoint, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &CollaboratorError{Reason: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &CollaboratorError{Reason: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &CollaboratorError{
			Reason: fmt.Sprintf("provider returned status %d", resp.StatusCode),
			Raw:    string(raw),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &CollaboratorError{Reason: "unparseable provider response", Raw: string(raw)}
	}
	if parsed.Error != nil {
		return nil, &CollaboratorError{Reason: parsed.Error.Message, Raw: string(raw)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &CollaboratorError{Reason: "provider returned no choices", Raw: string(raw)}
	}

	content := parsed.Choices[0].Message.Content
	structured, title, err := extractStructured(content, prompt.Schema)
	if err != nil {
		return nil, &CollaboratorError{Reason: err.Error(), Raw: content}
	}

	return &Result{
		Structured:  structured,
		Title:       title,
		RawText:     content,
		RawResponse: raw,
	}, nil
}

// extractStructured pulls the JSON object out of the model output (models
// occasionally wrap it in a fenced code block), validates it against the
// profile schema when present and returns the payload with its title.
func extractStructured(content string, schema *jsonschema.Schema) (json.RawMessage, string, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, "", fmt.Errorf("no JSON object in model output")
	}
	payload := text[start : end+1]

	if schema != nil {
		inst, err := jsonschema.UnmarshalJSON(strings.NewReader(payload))
		if err != nil {
			return nil, "", fmt.Errorf("invalid JSON in model output: %v", err)
		}
		if err := schema.Validate(inst); err != nil {
			return nil, "", fmt.Errorf("model output does not match schema: %v", err)
		}
	}

	var meta struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return nil, "", fmt.Errorf("invalid JSON in model output: %v", err)
	}
	return json.RawMessage(payload), meta.Title, nil
}

func dataURL(img Image) string {
	ct := img.ContentType
	if ct == "" {
		ct = "image/png"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
