// Package deploy holds the state behind the deployment list: rows fetched on
// load, and the single last response of an explicit invocation.
package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dmorgan81/beamshim/internal/beam"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/samber/lo"
)

var ErrUnknownDeployment = errors.New("unknown deployment")

// Handle is one invocable deployment.
type Handle interface {
	Info() Row
	Call(ctx context.Context, payload any) ([]byte, error)
}

// Lister returns the current deployments.
type Lister interface {
	List(ctx context.Context) ([]Handle, error)
}

// Connector authenticates and returns a ready Lister.
type Connector func(ctx context.Context) (Lister, error)

type Row struct {
	Name string
	ID   string
	Type string
}

type Browser struct {
	connect Connector

	mu        sync.Mutex
	handles   []Handle
	last      []byte
	loadErr   error
	invokeErr error
	loaded    bool
}

func NewBrowser(connect Connector) *Browser {
	return &Browser{connect: connect}
}

// Load authenticates and fetches the list. Rows from an earlier successful
// load are kept when it fails.
func (b *Browser) Load(ctx context.Context) error {
	log := log.FromContextOrDiscard(ctx).WithGroup("browser")
	log.Info("loading deployments")

	handles, err := b.fetch(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.loadErr = err
		log.Error("failed to load deployments", "error", err)
		return err
	}
	b.handles = handles
	b.loaded = true
	b.loadErr = nil
	log.Info("loaded deployments", "count", len(handles))
	return nil
}

func (b *Browser) fetch(ctx context.Context) ([]Handle, error) {
	lister, err := b.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	handles, err := lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	return handles, nil
}

func (b *Browser) Rows() []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	return lo.Map(b.handles, func(h Handle, _ int) Row { return h.Info() })
}

func (b *Browser) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Invoke calls the deployment with the given id and makes its response the
// last response. On failure the last response is left as it was.
func (b *Browser) Invoke(ctx context.Context, id string) error {
	log := log.FromContextOrDiscard(ctx).WithGroup("browser").With("id", id)

	b.mu.Lock()
	h, ok := lo.Find(b.handles, func(h Handle) bool { return h.Info().ID == id })
	b.mu.Unlock()

	var data []byte
	var err error
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownDeployment, id)
	} else {
		log.Info("invoking deployment")
		data, err = h.Call(ctx, nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.invokeErr = err
		log.Error("invocation failed", "error", err)
		return err
	}
	b.last = data
	b.invokeErr = nil
	return nil
}

// LastResponse is the last response body as JSON indented by two spaces.
// Bodies that are not JSON are shown as a JSON string. It is "" before the
// first successful invocation.
func (b *Browser) LastResponse() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return ""
	}
	data := b.last
	if !json.Valid(data) {
		data = lo.Must(json.Marshal(string(data)))
	}
	var out bytes.Buffer
	lo.Must0(json.Indent(&out, data, "", "  "))
	return out.String()
}

// LoadErr is the error of the most recent Load, if it failed.
func (b *Browser) LoadErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadErr
}

// InvokeErr is the error of the most recent Invoke, if it failed.
func (b *Browser) InvokeErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.invokeErr
}

// Err joins the load and invoke errors. Each is cleared only by a later
// success of the same operation.
func (b *Browser) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.loadErr, b.invokeErr)
}

// BeamConnector authenticates against Beam with token on every call.
func BeamConnector(token string, opts ...beam.Option) Connector {
	return func(ctx context.Context) (Lister, error) {
		client, err := beam.Init(ctx, token, opts...)
		if err != nil {
			return nil, err
		}
		return beamLister{client.Deployments}, nil
	}
}

type beamLister struct {
	deployments *beam.DeploymentService
}

func (l beamLister) List(ctx context.Context) ([]Handle, error) {
	deps, err := l.deployments.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(deps, func(d beam.Deployment, _ int) Handle { return beamHandle{d} }), nil
}

type beamHandle struct {
	d beam.Deployment
}

func (h beamHandle) Info() Row {
	return Row{Name: h.d.Name, ID: h.d.ID, Type: h.d.StubType}
}

func (h beamHandle) Call(ctx context.Context, payload any) ([]byte, error) {
	resp, err := h.d.Call(ctx, payload)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
