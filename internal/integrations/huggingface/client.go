package huggingface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"response-broker/internal/integrations/httpjson"
)

const DefaultBaseURL = "https://api-inference.huggingface.co"

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

// Client calls the Hugging Face Inference API text-generation task.
type Client struct {
	baseURL    string
	token      string
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

func NewClient(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("huggingface: token must not be empty")
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: httpjson.DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func modelURL(baseURL, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "/models/" + strings.Trim(strings.TrimSpace(model), "/")
}

// Generate returns the first generated_text of the model's answer.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	if strings.TrimSpace(model) == "" {
		return "", errors.New("huggingface: model must not be empty")
	}

	var out []generation
	err := httpjson.PostJSON(ctx, c.httpClient, modelURL(c.baseURL, model),
		map[string]string{"Authorization": "Bearer " + c.token},
		inferenceRequest{Inputs: prompt}, &out)
	if err != nil {
		return "", fmt.Errorf("huggingface: request failed: %w", err)
	}
	if len(out) == 0 {
		return "", errors.New("huggingface: no generations in response")
	}
	return strings.TrimSpace(out[0].GeneratedText), nil
}
