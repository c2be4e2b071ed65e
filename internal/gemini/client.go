// Package gemini is a thin client for the Google Gemini generateContent
// API. It backs both the chat completion gateway and the screen-frame
// analyzer.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultBaseURL is the default Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// markdownSuffix is appended to chat prompts so replies render well in the
// client's chat bubbles.
const markdownSuffix = "\n\nPlease format your response using Markdown (headings, bold, bullet points, code blocks only when relevant). Respond concisely and clearly."

// frameInstruction steers frame analysis toward actionable screen help.
const frameInstruction = "You are watching a live screen share. Briefly describe what the user is doing and point out anything they appear stuck on. Two sentences maximum."

// ErrEmptyResponse is returned when the provider answers without a usable
// text candidate.
var ErrEmptyResponse = errors.New("gemini: no text candidate in response")

// Client calls the Gemini REST API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL sets the base URL for API requests.
// Default: https://generativelanguage.googleapis.com/v1beta
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// New creates a Gemini client for the given model.
func New(apiKey, model string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends a chat prompt and returns the model's reply text.
// attachment, when non-empty, is a descriptor of a user-uploaded file and
// is folded into the prompt.
func (c *Client) Complete(ctx context.Context, message, attachment string) (string, error) {
	prompt := message
	if attachment != "" {
		prompt += "\nUser uploaded a file: " + attachment
	}
	return c.generate(ctx, []part{{Text: prompt + markdownSuffix}})
}

// AnalyzeFrame sends one base64-encoded JPEG screen frame for analysis and
// returns the analysis text.
func (c *Client) AnalyzeFrame(ctx context.Context, imageB64 string) (string, error) {
	parts := []part{
		{Text: frameInstruction},
		{InlineData: &blob{MIMEType: "image/jpeg", Data: imageB64}},
	}
	return c.generate(ctx, parts)
}

// Wire types. The Gemini API uses camelCase field names.

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("gemini: %s (status %d)", apiErr.Error.Message, resp.StatusCode)
		}
		return "", fmt.Errorf("gemini: unexpected status %d", resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	for _, cand := range genResp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return p.Text, nil
			}
		}
	}
	return "", ErrEmptyResponse
}
