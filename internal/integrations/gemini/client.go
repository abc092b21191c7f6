package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"response-broker/internal/integrations/httpjson"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Client calls the Gemini generateContent REST endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: httpjson.DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// generateURL accepts both "gemini-1.5-flash" and "models/gemini-1.5-flash".
func generateURL(baseURL, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	return base + "/models/" + model + ":generateContent"
}

// Generate sends prompt as a single user turn and joins the text parts of
// the first candidate.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	if strings.TrimSpace(model) == "" {
		return "", errors.New("gemini: model must not be empty")
	}

	// The key travels in a header so it never ends up in error URLs.
	headers := map[string]string{"x-goog-api-key": c.apiKey}

	var payload generateResponse
	err := httpjson.PostJSON(ctx, c.httpClient, generateURL(c.baseURL, model), headers, generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}, &payload)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}
	if len(payload.Candidates) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}

	var sb strings.Builder
	for _, p := range payload.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}
