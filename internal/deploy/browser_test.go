package deploy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmorgan81/beamshim/internal/beam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	row  Row
	body string
	err  error
}

func (h fakeHandle) Info() Row { return h.row }

func (h fakeHandle) Call(context.Context, any) ([]byte, error) {
	if h.err != nil {
		return nil, h.err
	}
	return []byte(h.body), nil
}

type fakeLister struct {
	handles []Handle
	err     error
}

func (l fakeLister) List(context.Context) ([]Handle, error) { return l.handles, l.err }

func connectTo(l Lister) Connector {
	return func(context.Context) (Lister, error) { return l, nil }
}

var three = []Handle{
	fakeHandle{row: Row{Name: "sdxl", ID: "d1", Type: "endpoint/deployment"}, body: `{"image":"https://img.example/1.png"}`},
	fakeHandle{row: Row{Name: "whisper", ID: "d2", Type: "taskqueue/deployment"}, body: `not json`},
	fakeHandle{row: Row{Name: "broken", ID: "d3", Type: "function/deployment"}, err: errors.New("gpu on fire")},
}

func TestLoadRendersOneRowPerDeployment(t *testing.T) {
	b := NewBrowser(connectTo(fakeLister{handles: three}))
	require.NoError(t, b.Load(context.Background()))

	assert.True(t, b.Loaded())
	assert.Equal(t, []Row{
		{Name: "sdxl", ID: "d1", Type: "endpoint/deployment"},
		{Name: "whisper", ID: "d2", Type: "taskqueue/deployment"},
		{Name: "broken", ID: "d3", Type: "function/deployment"},
	}, b.Rows())
	assert.NoError(t, b.Err())
	assert.Equal(t, "", b.LastResponse())
}

func TestInvokeReplacesLastResponse(t *testing.T) {
	ctx := context.Background()
	b := NewBrowser(connectTo(fakeLister{handles: three}))
	require.NoError(t, b.Load(ctx))

	require.NoError(t, b.Invoke(ctx, "d1"))
	assert.Equal(t, "{\n  \"image\": \"https://img.example/1.png\"\n}", b.LastResponse())

	require.NoError(t, b.Invoke(ctx, "d2"))
	assert.Equal(t, `"not json"`, b.LastResponse())
}

func TestInvokeFailsSoft(t *testing.T) {
	ctx := context.Background()
	b := NewBrowser(connectTo(fakeLister{handles: three}))
	require.NoError(t, b.Load(ctx))
	require.NoError(t, b.Invoke(ctx, "d1"))
	before := b.LastResponse()

	err := b.Invoke(ctx, "d3")
	assert.ErrorContains(t, err, "gpu on fire")
	assert.ErrorContains(t, b.Err(), "gpu on fire")
	assert.Equal(t, before, b.LastResponse())
	assert.Len(t, b.Rows(), 3)

	err = b.Invoke(ctx, "nope")
	assert.ErrorIs(t, err, ErrUnknownDeployment)

	require.NoError(t, b.Invoke(ctx, "d1"))
	assert.NoError(t, b.Err())
}

func TestLoadKeepsInvokeError(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{handles: three}
	b := NewBrowser(func(context.Context) (Lister, error) { return *lister, nil })
	require.NoError(t, b.Load(ctx))

	require.Error(t, b.Invoke(ctx, "d3"))
	require.NoError(t, b.Load(ctx))
	assert.NoError(t, b.LoadErr())
	assert.ErrorContains(t, b.InvokeErr(), "gpu on fire")
	assert.ErrorContains(t, b.Err(), "gpu on fire")

	lister.err = errors.New("api down")
	require.Error(t, b.Load(ctx))
	assert.ErrorContains(t, b.Err(), "api down")
	assert.ErrorContains(t, b.Err(), "gpu on fire")

	require.NoError(t, b.Invoke(ctx, "d1"))
	assert.NoError(t, b.InvokeErr())
	assert.ErrorContains(t, b.Err(), "api down")
}

func TestLoadFailureKeepsRows(t *testing.T) {
	ctx := context.Background()
	lister := &fakeLister{handles: three}
	b := NewBrowser(func(context.Context) (Lister, error) { return *lister, nil })
	require.NoError(t, b.Load(ctx))

	lister.err = errors.New("api down")
	err := b.Load(ctx)
	assert.ErrorContains(t, err, "failed to list deployments")
	assert.Len(t, b.Rows(), 3)

	failing := NewBrowser(func(context.Context) (Lister, error) { return nil, beam.ErrUnauthorized })
	err = failing.Load(ctx)
	assert.ErrorIs(t, err, beam.ErrUnauthorized)
	assert.False(t, failing.Loaded())
	assert.Empty(t, failing.Rows())
}

func TestBeamConnector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/workspace/current/":
			_, _ = io.WriteString(w, `{"id":"ws"}`)
		case r.URL.Path == "/v2/deployment/":
			_, _ = io.WriteString(w, `[
				{"id":"d1","name":"a","stub_type":"endpoint/deployment"},
				{"id":"d2","name":"b","stub_type":"taskqueue/deployment"},
				{"id":"d3","name":"c","stub_type":"function/deployment"}
			]`)
		case strings.HasSuffix(r.URL.Path, "/id/d2"):
			_, _ = io.WriteString(w, `{"task_id":"t-1"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	b := NewBrowser(BeamConnector("tok", beam.WithAPIURL(srv.URL), beam.WithGatewayURL(srv.URL)))
	require.NoError(t, b.Load(ctx))
	require.Len(t, b.Rows(), 3)
	assert.Equal(t, Row{Name: "b", ID: "d2", Type: "taskqueue/deployment"}, b.Rows()[1])

	require.NoError(t, b.Invoke(ctx, "d2"))
	assert.Equal(t, "{\n  \"task_id\": \"t-1\"\n}", b.LastResponse())
}

func TestRefresher(t *testing.T) {
	loads := make(chan struct{}, 4)
	b := NewBrowser(func(context.Context) (Lister, error) {
		loads <- struct{}{}
		return fakeLister{handles: three}, nil
	})

	_, err := NewRefresher(context.Background(), b, "not a schedule")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r, err := NewRefresher(ctx, b, "@every 1s")
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-loads:
	case <-time.After(3 * time.Second):
		t.Fatal("refresher never loaded")
	}
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, b.Rows(), 3)
}
