// Package gemini calls the Google Generative Language API. The service only
// proxies text generation; the API key never reaches browsers.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrMissingAPIKey means the service was started without a key.
	ErrMissingAPIKey = errors.New("gemini: API key is not configured")
	// ErrTimeout means the upstream did not answer within the deadline.
	ErrTimeout = errors.New("gemini: upstream request timed out")
)

// UpstreamError is a non-2xx answer from the API, preserved verbatim so the
// proxy can relay status and body.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gemini: upstream returned %d: %s", e.Status, e.Body)
}

// Result is a successful generation.
type Result struct {
	// Text is the first candidate's text, or empty when the answer had none.
	Text string
	// Raw is the upstream response body, decoded.
	Raw map[string]any
}

// Client calls one model with a fixed per-request timeout.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient builds a client. The timeout bounds the whole upstream exchange.
func NewClient(apiKey, model, baseURL string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		timeout: timeout,
		http:    &http.Client{},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// Generate sends the prompt and returns the first candidate's text along
// with the raw response. A single attempt; timeouts surface as ErrTimeout.
func (c *Client) Generate(ctx context.Context, prompt string) (*Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("gemini: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("gemini: failed to decode response: %w", err)
	}
	return &Result{Text: firstCandidateText(raw), Raw: raw}, nil
}

// firstCandidateText digs candidates[0].content.parts[0].text out of the
// response, falling back to the legacy output[0].content.text shape; empty
// string when any link in the chain is absent.
func firstCandidateText(raw map[string]any) string {
	if candidates, _ := raw["candidates"].([]any); len(candidates) > 0 {
		first, _ := candidates[0].(map[string]any)
		content, _ := first["content"].(map[string]any)
		parts, _ := content["parts"].([]any)
		if len(parts) > 0 {
			p, _ := parts[0].(map[string]any)
			if text, _ := p["text"].(string); text != "" {
				return text
			}
		}
	}
	if output, _ := raw["output"].([]any); len(output) > 0 {
		first, _ := output[0].(map[string]any)
		content, _ := first["content"].(map[string]any)
		text, _ := content["text"].(string)
		return text
	}
	return ""
}
