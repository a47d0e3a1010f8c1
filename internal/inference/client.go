package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client calls an OpenAI-compatible chat-completions endpoint with multimodal
// (text + image) prompts and returns the model output as raw JSON.
type Client struct {
	client    *resty.Client
	model     string
	endpoint  string
	maxTokens int
}

// Config holds configuration for the inference client.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// Image is one artifact attached to a request.
type Image struct {
	Data   []byte
	Format string // jpg, png, webp, pdf
}

// Request is one structured prompt sent to the model. System carries the
// stage instructions, User the stage input (including prior-stage results
// for later stages), Images the raw plan artifacts.
type Request struct {
	System string
	User   string
	Images []Image
}

// NewClient creates a new inference client.
// Parameters:
//   - cfg: inference configuration including provider, model, and API key.
//
// Returns:
//   - *Client: initialized client wrapper.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &Client{
		client:    client,
		model:     cfg.Model,
		endpoint:  baseURL + "/chat/completions",
		maxTokens: maxTokens,
	}
}

// GetModel returns the model name being used.
func (c *Client) GetModel() string {
	return c.model
}

// OpenAI-compatible Chat Completion API request/response structures
type openAIRequest struct {
	Model          string               `json:"model"`
	Messages       []openAIMessage      `json:"messages"`
	MaxTokens      int                  `json:"max_tokens"`
	ResponseFormat openAIResponseFormat `json:"response_format"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type openAITextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageContent struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends one structured prompt and returns the model output as raw
// JSON. The response is requested in JSON mode; stray markdown fences are
// stripped before returning.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: prompt and attached artifacts.
//
// Returns:
//   - json.RawMessage: raw model output, expected to be a JSON object.
//   - error: non-nil if the API request fails or returns no content.
func (c *Client) Complete(ctx context.Context, req *Request) (json.RawMessage, error) {
	userContent := make([]interface{}, 0, len(req.Images)+1)
	userContent = append(userContent, openAITextContent{
		Type: "text",
		Text: req.User,
	})
	for _, img := range req.Images {
		dataURL := fmt.Sprintf("data:%s;base64,%s",
			mimeType(img.Format),
			base64.StdEncoding.EncodeToString(img.Data))
		userContent = append(userContent, openAIImageContent{
			Type: "image_url",
			ImageURL: openAIImageURL{
				URL:    dataURL,
				Detail: "high", // plan drawings carry small annotations
			},
		})
	}

	apiReq := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: userContent},
		},
		MaxTokens:      c.maxTokens,
		ResponseFormat: openAIResponseFormat{Type: "json_object"},
	}

	var resp openAIResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(apiReq).
		SetResult(&resp).
		Post(c.endpoint)

	if err != nil {
		return nil, fmt.Errorf("failed to call inference API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return nil, fmt.Errorf("inference API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("inference API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from inference API (status: %d)", httpResp.StatusCode())
	}

	content := stripFences(resp.Choices[0].Message.Content)
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("inference API returned non-JSON content")
	}
	return json.RawMessage(content), nil
}

// stripFences removes a surrounding markdown code fence, which some models
// emit even in JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func mimeType(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "pdf":
		return "application/pdf"
	default:
		return "image/jpeg"
	}
}
