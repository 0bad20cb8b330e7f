package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmorgan81/beamshim/internal/deploy"
	"github.com/dmorgan81/beamshim/internal/event"
	"github.com/dmorgan81/beamshim/internal/image"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/dmorgan81/beamshim/internal/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	row  deploy.Row
	body string
	err  error
}

func (h fakeHandle) Info() deploy.Row { return h.row }

func (h fakeHandle) Call(context.Context, any) ([]byte, error) {
	return []byte(h.body), h.err
}

type fakeLister []deploy.Handle

func (l fakeLister) List(context.Context) ([]deploy.Handle, error) { return l, nil }

type fakePublisher struct {
	mu     sync.Mutex
	events []event.Generated
}

func (p *fakePublisher) Publish(_ context.Context, g event.Generated) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, g)
	return "evt-1", nil
}

type feedFunc func(context.Context) ([]byte, error)

func (f feedFunc) Generate(ctx context.Context) ([]byte, error) { return f(ctx) }

func newTestServer(handles ...deploy.Handle) *Server {
	connect := func(context.Context) (deploy.Lister, error) { return fakeLister(handles), nil }
	return &Server{
		Browser:   deploy.NewBrowser(connect),
		Connect:   connect,
		Templator: &page.Templator{},
		Blobs:     image.NewMemoryBlobs("/blobs", 8),
	}
}

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	s.Handler(log.New(io.Discard, slog.LevelInfo)).ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func TestHello(t *testing.T) {
	s := newTestServer()
	for _, target := range []string{"/api/hello", "/api/hello?name=x"} {
		rec := serve(t, s, http.MethodGet, target, `{"ignored":true}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `{"message":"Hello from Beam!"}`, rec.Body.String())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}

	rec := serve(t, s, http.MethodPost, "/api/hello", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := serve(t, newTestServer(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"message":"Server is healthy"}`, rec.Body.String())
}

func TestData(t *testing.T) {
	s := newTestServer()

	rec := serve(t, s, http.MethodPost, "/api/data", `{"a":1}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"message":"Data received successfully","data":{"a":1}}`, rec.Body.String())

	rec = serve(t, s, http.MethodPost, "/api/data", "{\n  \"a\": [1, 2]\n}\n")
	assert.Equal(t, `{"message":"Data received successfully","data":{"a":[1,2]}}`, rec.Body.String())

	rec = serve(t, s, http.MethodPost, "/api/data", "")
	assert.Equal(t, `{"message":"Data received successfully","data":{}}`, rec.Body.String())

	rec = serve(t, s, http.MethodPost, "/api/data", `{"html":"<b>&</b>"}`)
	assert.Equal(t, `{"message":"Data received successfully","data":{"html":"<b>&</b>"}}`, rec.Body.String())

	rec = serve(t, s, http.MethodPost, "/api/data", `[1,"two"]`)
	assert.Equal(t, `{"message":"Data received successfully","data":[1,"two"]}`, rec.Body.String())

	for _, body := range []string{`{"a":`, `1`, `"text"`, `null`} {
		rec = serve(t, s, http.MethodPost, "/api/data", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestDeploymentRelaysFirstCall(t *testing.T) {
	s := newTestServer(
		fakeHandle{row: deploy.Row{ID: "d1", Name: "first"}, body: `{"result":"first"}`},
		fakeHandle{row: deploy.Row{ID: "d2", Name: "second"}, body: `{"result":"second"}`},
	)

	rec := serve(t, s, http.MethodGet, "/deployment", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"result":"first"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestDeploymentFailures(t *testing.T) {
	rec := serve(t, newTestServer(), http.MethodGet, "/deployment", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s := newTestServer(fakeHandle{row: deploy.Row{ID: "d1"}, err: errors.New("cold start timeout")})
	rec = serve(t, s, http.MethodGet, "/deployment", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"cold start timeout"}`, rec.Body.String())

	s.Connect = func(context.Context) (deploy.Lister, error) { return nil, errors.New("beam: unauthorized") }
	rec = serve(t, s, http.MethodGet, "/deployment", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGenerate(t *testing.T) {
	s := newTestServer()
	publisher := &fakePublisher{}
	s.Publisher = publisher
	s.Generator = image.GeneratorFunc(func(_ context.Context, prompt string) image.Result {
		if prompt == "cat" {
			return image.Success{Image: "data:image/png;base64,AAAA"}
		}
		return image.Failure{Reason: &image.StatusError{StatusCode: 500, Body: "boom"}}
	})

	rec := serve(t, s, http.MethodPost, "/api/generate", `{"prompt":"cat"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"image":"data:image/png;base64,AAAA"}`, rec.Body.String())
	assert.Equal(t, []event.Generated{{Prompt: "cat", Image: "data:image/png;base64,AAAA", Origin: "proxy"}}, publisher.events)

	rec = serve(t, s, http.MethodPost, "/api/generate", `{"prompt":"dog"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "500")
	assert.Len(t, publisher.events, 1)

	rec = serve(t, s, http.MethodPost, "/api/generate", `{"prompt":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.Generator = nil
	rec = serve(t, s, http.MethodPost, "/api/generate", `{"prompt":"cat"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGenerateServesBinaryImageFromBlobs(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("RIFFwebp"))
	}))
	t.Cleanup(backend.Close)

	s := newTestServer()
	s.Generator = &image.BeamGenerator{URL: backend.URL, Blobs: s.Blobs}

	rec := serve(t, s, http.MethodPost, "/api/generate", `{"prompt":"a red fox"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.Image, "/blobs/"), resp.Image)

	rec = serve(t, s, http.MethodGet, resp.Image, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Equal(t, "RIFFwebp", rec.Body.String())
}

func TestIndexAndCall(t *testing.T) {
	s := newTestServer(
		fakeHandle{row: deploy.Row{Name: "sdxl", ID: "d1", Type: "endpoint/deployment"}, body: `{"ok":true}`},
		fakeHandle{row: deploy.Row{Name: "whisper", ID: "d2", Type: "taskqueue/deployment"}, body: `{}`},
		fakeHandle{row: deploy.Row{Name: "broken", ID: "d3", Type: "function/deployment"}, err: errors.New("exploded")},
	)

	rec := serve(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "Make API Request</button>"))

	rec = serve(t, s, http.MethodPost, "/deployments/d1/call", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = serve(t, s, http.MethodGet, "/", "")
	assert.Contains(t, rec.Body.String(), "&#34;ok&#34;: true")

	serve(t, s, http.MethodPost, "/deployments/d3/call", "")
	rec = serve(t, s, http.MethodGet, "/", "")
	assert.Contains(t, rec.Body.String(), "exploded")
	assert.Contains(t, rec.Body.String(), "&#34;ok&#34;: true")
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "Make API Request</button>"))

	rec = serve(t, s, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBlobsAndFeed(t *testing.T) {
	s := newTestServer()
	url, err := s.Blobs.Put(context.Background(), []byte("png"), "image/png")
	require.NoError(t, err)

	rec := serve(t, s, http.MethodGet, url, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())

	rec = serve(t, s, http.MethodGet, "/feed.xml", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.Feed = feedFunc(func(context.Context) ([]byte, error) { return []byte("<rss/>"), nil })
	rec = serve(t, s, http.MethodGet, "/feed.xml", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<rss/>", rec.Body.String())
}

func TestLogRequest(t *testing.T) {
	var buf bytes.Buffer
	h := WithLogger(log.New(&buf, slog.LevelInfo), LogRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/brew"`)
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestServer().Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
