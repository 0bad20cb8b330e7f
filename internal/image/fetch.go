package image

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vincent-petithory/dataurl"
)

// Fetch resolves an image reference into bytes. Data URLs are decoded in
// place; http(s) URLs are downloaded.
func Fetch(ctx context.Context, client *http.Client, ref string) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		du, err := dataurl.DecodeString(ref)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode data url: %w", err)
		}
		return du.Data, du.ContentType(), nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return download(ctx, client, ref)
	default:
		return nil, "", fmt.Errorf("unsupported image reference %q", truncate(ref, 64))
	}
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, "", &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	return data, sniff(resp.Header.Get("Content-Type"), data), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
