package beam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Deployment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StubID    string `json:"stub_id,omitempty"`
	StubType  string `json:"stub_type"`
	Version   int    `json:"version,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`

	client *Client
}

// Kind is the invocation family of the deployment, e.g. "endpoint" for a
// stub type of "endpoint/deployment".
func (d Deployment) Kind() string {
	kind, _, _ := strings.Cut(d.StubType, "/")
	return lo.Ternary(kind != "", kind, "endpoint")
}

// URL is where Call sends its request.
func (d Deployment) URL() string {
	id := lo.Ternary(d.StubID != "", d.StubID, d.ID)
	gateway := DefaultGatewayURL
	if d.client != nil {
		gateway = d.client.gatewayURL
	}
	return fmt.Sprintf("%s/%s/id/%s", gateway, d.Kind(), id)
}

// Call invokes the deployment with payload, or an empty JSON object when
// payload is nil.
func (d Deployment) Call(ctx context.Context, payload any) (*Response, error) {
	if d.client == nil {
		return nil, fmt.Errorf("beam: deployment %s is not bound to a client", d.ID)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	ctx, span := d.client.tracer.Start(ctx, "beam.deployment.call", trace.WithAttributes(
		attribute.String("beam.deployment.id", d.ID),
		attribute.String("beam.deployment.name", d.Name),
	))
	defer span.End()

	log.FromContextOrDiscard(ctx).WithGroup("beam").Info("calling deployment", "id", d.ID, "name", d.Name, "url", d.URL())

	resp, err := d.client.do(ctx, "call", http.MethodPost, d.URL(), payload)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

// Response is the raw result of a deployment call.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type DeploymentService struct {
	client *Client
}

// List returns the workspace's deployments in the order the API reports them.
func (s *DeploymentService) List(ctx context.Context) ([]Deployment, error) {
	c := s.client
	ctx, span := c.tracer.Start(ctx, "beam.deployments.list")
	defer span.End()

	log.FromContextOrDiscard(ctx).WithGroup("beam").Info("listing deployments", "workspace", c.Workspace.ID)

	endpoint := c.apiURL + "/v2/deployment/"
	if c.Workspace.ID != "" {
		endpoint += "?" + url.Values{"workspace_id": {c.Workspace.ID}}.Encode()
	}
	resp, err := c.do(ctx, "list", http.MethodGet, endpoint, nil)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	deployments, err := decodeDeployments(resp.Body)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("beam.deployments.count", len(deployments)))

	return lo.Map(deployments, func(d Deployment, _ int) Deployment {
		d.client = c
		return d
	}), nil
}

// decodeDeployments accepts a bare array or a {"data": [...]} envelope.
func decodeDeployments(body []byte) ([]Deployment, error) {
	var list []Deployment
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Data []Deployment `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("beam: failed to decode deployments: %w", err)
	}
	return envelope.Data, nil
}
