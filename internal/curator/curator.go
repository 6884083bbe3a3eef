package curator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/aliskhannn/album-curator/internal/model"
)

// SourceImage is one image of a batch handed to the curator: its storage
// key and a time-limited read URL issued by the object storage.
type SourceImage struct {
	StorageKey string
	ReadURL    string
}

// Curator proposes thematic album groupings for a batch of photos using
// a single multimodal model invocation per batch. One call per job is the
// cost-control decision: batch size does not change the number of model
// invocations.
type Curator struct {
	apiKey      string
	model       string
	temperature float32
	httpClient  *http.Client
}

// New creates a Curator for the given model. The API key and model name
// are injected rather than read from the environment at call time.
func New(apiKey, modelName string, temperature float64) *Curator {
	return &Curator{
		apiKey:      apiKey,
		model:       modelName,
		temperature: float32(temperature),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Curate sends one structured request carrying the grouping instruction
// and the binary content of every image, then parses and validates the
// model's proposal. On any failure (download, network, parse, validation)
// the caller is expected to substitute Fallback — the error return makes
// that decision explicit instead of burying it in a catch-all.
func (c *Curator) Curate(ctx context.Context, images []SourceImage) (model.Proposal, error) {
	if len(images) == 0 {
		return model.Proposal{}, fmt.Errorf("curate: empty batch")
	}

	keys := imageKeys(images)
	parts := make([]genai.Part, 0, len(images)+1)
	parts = append(parts, genai.Text(buildPrompt(len(images), keys)))

	for _, img := range images {
		data, format, err := c.download(ctx, img.ReadURL)
		if err != nil {
			return model.Proposal{}, fmt.Errorf("curate: failed to fetch image %s: %w", img.StorageKey, err)
		}

		parts = append(parts, genai.ImageData(format, data))
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return model.Proposal{}, fmt.Errorf("curate: failed to create gemini client: %w", err)
	}
	defer client.Close()

	m := client.GenerativeModel(c.model)
	m.SetTemperature(c.temperature)

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return model.Proposal{}, fmt.Errorf("curate: failed to generate content: %w", err)
	}

	reply, err := candidateText(resp)
	if err != nil {
		return model.Proposal{}, fmt.Errorf("curate: %w", err)
	}

	proposal, err := ParseProposal(reply, keys)
	if err != nil {
		return model.Proposal{}, fmt.Errorf("curate: %w", err)
	}

	return proposal, nil
}

// download fetches the image bytes behind a presigned read URL and
// reports the image format for the model request.
func (c *Curator) download(ctx context.Context, readURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, readURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}

	return data, imageFormat(resp.Header.Get("Content-Type")), nil
}

// candidateText unwraps the first text part of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from model")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from model")
	}

	if txt, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return string(txt), nil
	}

	return "", fmt.Errorf("unexpected response format from model")
}

// imageFormat maps a content type to the subtype the model request wants.
func imageFormat(contentType string) string {
	switch contentType {
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "jpeg"
	}
}

func imageKeys(images []SourceImage) []string {
	keys := make([]string, len(images))
	for i, img := range images {
		keys[i] = img.StorageKey
	}
	return keys
}
