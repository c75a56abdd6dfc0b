// internal/gpt/client.go
package gpt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"coloring-pages/internal/apperr"

	"github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-image-1"

// Upload is one image or mask sent to the edits endpoint.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

type GenerateParams struct {
	Prompt            string
	Count             int
	Size              string
	Quality           string
	Background        string
	Moderation        string
	OutputFormat      string
	OutputCompression *int
}

type EditParams struct {
	Prompt  string
	Count   int
	Size    string
	Quality string
	Images  []Upload
	Mask    *Upload
}

type Image struct {
	B64JSON string
}

type Usage struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Result struct {
	Images []Image
	Usage  *Usage
}

type Client struct {
	client     *openai.Client
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	httpClient := &http.Client{Timeout: timeout}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = httpClient

	return &Client{
		client:     openai.NewClientWithConfig(cfg),
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    cfg.BaseURL,
		model:      DefaultModel,
	}
}

func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

func (c *Client) Model() string {
	return c.model
}

// Generate creates images from text alone.
func (c *Client) Generate(ctx context.Context, p GenerateParams) (*Result, error) {
	req := openai.ImageRequest{
		Prompt:       p.Prompt,
		Model:        c.model,
		N:            p.Count,
		Size:         p.Size,
		Quality:      p.Quality,
		Background:   p.Background,
		Moderation:   p.Moderation,
		OutputFormat: p.OutputFormat,
	}
	if p.OutputCompression != nil {
		req.OutputCompression = *p.OutputCompression
	}

	resp, err := c.client.CreateImage(ctx, req)
	if err != nil {
		return nil, upstreamError(err)
	}

	result := &Result{Images: make([]Image, 0, len(resp.Data))}
	for _, d := range resp.Data {
		result.Images = append(result.Images, Image{B64JSON: d.B64JSON})
	}
	if resp.Usage.TotalTokens > 0 || resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		result.Usage = &Usage{
			TotalTokens:  resp.Usage.TotalTokens,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		}
	}
	return result, nil
}

// upstreamError keeps the status the API answered with so handlers can relay it.
func upstreamError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Upstream(http.StatusGatewayTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apperr.Error{
			Kind:    apperr.KindUpstream,
			Code:    apperr.CodeUpstreamAPIError,
			Message: apiErr.Message,
			Status:  statusOrDefault(apiErr.HTTPStatusCode),
			Err:     err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return apperr.Upstream(reqErr.HTTPStatusCode, err)
	}

	return apperr.Upstream(http.StatusInternalServerError, fmt.Errorf("image api: %w", err))
}

func statusOrDefault(status int) int {
	if status < 400 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}
