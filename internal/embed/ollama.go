package embed

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/disintegration/imaging"
	"github.com/ollama/ollama/api"

	// Registers the webp decoder so imaging.Open accepts .webp support images.
	_ "github.com/chai2010/webp"
)

// maxEdge is the longest image edge sent to the backbone. Larger images are
// downscaled before encoding; embedding models normalize to small inputs
// anyway and oversized payloads dominate request latency.
const maxEdge = 768

// OllamaProvider extracts embeddings from a multimodal embedding model served
// by Ollama. Images are loaded, downscaled, and sent base64-encoded to the
// /api/embed endpoint.
type OllamaProvider struct {
	client *api.Client
	model  string
}

// NewOllama creates a provider against the Ollama server at baseURL using the
// given embedding model.
func NewOllama(baseURL, model string) (*OllamaProvider, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL %q: %w", baseURL, err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &OllamaProvider{
		client: api.NewClient(base, http.DefaultClient),
		model:  model,
	}, nil
}

// ID returns "ollama/<model>".
func (p *OllamaProvider) ID() string { return "ollama/" + p.model }

// Extract loads the image, downscales it to maxEdge, and requests one
// embedding from the backbone.
func (p *OllamaProvider) Extract(ctx context.Context, path string) ([]float32, error) {
	payload, err := encodeImage(path)
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.model,
		Input: payload,
	})
	if err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("ollama embed: %w", err)}
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, &Error{Path: path, Err: fmt.Errorf("ollama embed: empty response")}
	}
	return resp.Embeddings[0], nil
}

// encodeImage reads, downscales, and base64-encodes an image file as JPEG.
func encodeImage(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > maxEdge || bounds.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
