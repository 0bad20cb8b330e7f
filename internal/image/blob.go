package image

import (
	"context"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vincent-petithory/dataurl"
)

// Blobs turns downloaded image bytes into a locally addressable reference.
type Blobs interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Extension is the file extension for an image content type, ".png" when
// the type is unknown.
func Extension(contentType string) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if ext, ok := extensions[mediaType]; ok {
		return ext
	}
	return ".png"
}

// DataURLs inlines the bytes as a base64 data URL.
type DataURLs struct{}

func (DataURLs) Put(_ context.Context, data []byte, contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.Contains(mediaType, "/") {
		mediaType = "application/octet-stream"
	}
	return dataurl.New(data, mediaType).String(), nil
}

type blob struct {
	data        []byte
	contentType string
}

// MemoryBlobs keeps the most recent blobs in memory and serves them over HTTP
// under Prefix. Older entries are evicted once Limit is exceeded.
type MemoryBlobs struct {
	Prefix string
	Limit  int

	mu      sync.Mutex
	entries map[string]blob
	order   []string
}

func NewMemoryBlobs(prefix string, limit int) *MemoryBlobs {
	return &MemoryBlobs{
		Prefix:  strings.TrimRight(prefix, "/") + "/",
		Limit:   limit,
		entries: make(map[string]blob),
	}
}

func (b *MemoryBlobs) Put(_ context.Context, data []byte, contentType string) (string, error) {
	id := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[id] = blob{data: data, contentType: contentType}
	b.order = append(b.order, id)
	for b.Limit > 0 && len(b.order) > b.Limit {
		delete(b.entries, b.order[0])
		b.order = b.order[1:]
	}
	return b.Prefix + id, nil
}

func (b *MemoryBlobs) Get(id string) ([]byte, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	return e.data, e.contentType, ok
}

// Len reports how many blobs are retained.
func (b *MemoryBlobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// ServeHTTP expects to be mounted on a pattern with an {id} wildcard.
func (b *MemoryBlobs) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, contentType, ok := b.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}
