package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultHuggingFaceBaseURL = "https://api-inference.huggingface.co/pipeline/feature-extraction"

type huggingfaceConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// huggingfaceEmbedProvider calls the HF inference feature-extraction
// pipeline. The request shape is {"inputs": text}; the answer is either a
// flat vector or a single-element batch, depending on the deployment.
type huggingfaceEmbedProvider struct {
	apiKey  string
	baseURL string
}

type huggingfaceEmbedRequest struct {
	Inputs string `json:"inputs"`
}

func (p *huggingfaceEmbedProvider) Name() string {
	return "huggingface"
}

func (p *huggingfaceEmbedProvider) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	endpoint := strings.TrimRight(p.baseURL, "/")
	if model != "" {
		endpoint += "/" + model
	}
	data, err := json.Marshal(huggingfaceEmbedRequest{Inputs: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseEmbeddingBody(body)
}

func parseEmbeddingBody(body []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(body, &flat); err == nil {
		return flat, nil
	}
	var nested [][]float32
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		return nested[0], nil
	}
	return nil, fmt.Errorf("%w: unexpected embedding payload", ErrBadResponse)
}

func createHuggingFaceEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &huggingfaceConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultHuggingFaceBaseURL
	}
	provider := &huggingfaceEmbedProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
	}
	return provider, nil
}

func init() {
	RegisterEmbed("huggingface", createHuggingFaceEmbedFactory)
}
