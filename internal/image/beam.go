package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/samber/do"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const maxErrorBody = 4 << 10

// BeamGenerator posts prompts to a Beam endpoint serving an image model.
// Field names the payload key: "prompt" or "content".
type BeamGenerator struct {
	Client *http.Client
	URL    string
	Token  string
	Field  string
	Blobs  Blobs
}

func NewBeamGenerator(i *do.Injector) (Generator, error) {
	url := do.MustInvokeNamed[string](i, "image_api_url")
	if url == "" {
		return nil, fmt.Errorf("IMAGE_API_URL is required")
	}
	token, err := do.InvokeNamed[string](i, "image_auth_token")
	if err != nil {
		return nil, err
	}
	return &BeamGenerator{
		Client: do.MustInvoke[*http.Client](i),
		URL:    url,
		Token:  token,
		Field:  do.MustInvokeNamed[string](i, "image_prompt_field"),
		Blobs:  do.MustInvoke[Blobs](i),
	}, nil
}

func (g *BeamGenerator) Generate(ctx context.Context, prompt string) Result {
	ctx, span := otel.Tracer("github.com/dmorgan81/beamshim/internal/image").Start(ctx, "image.generate")
	defer span.End()

	log := log.FromContextOrDiscard(ctx).WithGroup("generator").With("url", g.URL, "field", g.field())
	log.Info("generating image", "prompt", prompt)

	res := g.generate(ctx, prompt)
	if f, ok := res.(Failure); ok {
		span.RecordError(f)
		span.SetStatus(codes.Error, f.Error())
		log.Warn("image generation failed", "error", f.Reason)
		return res
	}
	s := res.(Success)
	span.SetAttributes(attribute.Bool("image.binary", s.Data != nil))
	log.Info("received image", "binary", s.Data != nil, "content-type", s.ContentType)
	return res
}

func (g *BeamGenerator) generate(ctx context.Context, prompt string) Result {
	body, err := json.Marshal(map[string]string{g.field(): prompt})
	if err != nil {
		return Failure{err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return Failure{fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.client().Do(req)
	if err != nil {
		return Failure{fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Failure{&StatusError{StatusCode: resp.StatusCode, Body: string(data)}}
	}

	contentType := resp.Header.Get("Content-Type")
	if isBinary(contentType) {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return Failure{fmt.Errorf("failed to read image: %w", err)}
		}
		if len(data) == 0 {
			return Failure{ErrMissingImage}
		}
		mediaType := sniff(contentType, data)
		ref, err := g.blobs().Put(ctx, data, mediaType)
		if err != nil {
			return Failure{fmt.Errorf("failed to store image: %w", err)}
		}
		return Success{Image: ref, Data: data, ContentType: mediaType}
	}

	var result struct {
		Image *string `json:"image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Failure{fmt.Errorf("failed to decode response: %w", err)}
	}
	if result.Image == nil || *result.Image == "" {
		return Failure{ErrMissingImage}
	}
	return Success{Image: *result.Image}
}

func (g *BeamGenerator) field() string {
	if g.Field == "" {
		return "prompt"
	}
	return g.Field
}

func (g *BeamGenerator) client() *http.Client {
	if g.Client == nil {
		return http.DefaultClient
	}
	return g.Client
}

func (g *BeamGenerator) blobs() Blobs {
	if g.Blobs == nil {
		return DataURLs{}
	}
	return g.Blobs
}

func isBinary(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") || mediaType == "application/octet-stream"
}

// sniff prefers a declared image type and otherwise detects one from data.
func sniff(contentType string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}
