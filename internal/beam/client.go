// Package beam is a small client for the Beam platform API: authenticate with
// a token, list deployments and invoke them.
package beam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmorgan81/beamshim/internal/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultAPIURL     = "https://api.beam.cloud"
	DefaultGatewayURL = "https://app.beam.cloud"
)

var (
	ErrUnauthorized = errors.New("beam: unauthorized")
	ErrNoToken      = errors.New("beam: token is required")
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("beam: %s: unexpected status code: %d, body: %s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client is an authenticated handle on one workspace. Build it with Init.
type Client struct {
	httpClient *http.Client
	token      string
	apiURL     string
	gatewayURL string
	tracer     trace.Tracer

	Workspace   Workspace
	Deployments *DeploymentService
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithAPIURL(u string) Option {
	return func(cl *Client) { cl.apiURL = strings.TrimRight(u, "/") }
}

func WithGatewayURL(u string) Option {
	return func(cl *Client) { cl.gatewayURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.httpClient = &http.Client{Timeout: d} }
}

// Init authenticates token against the API and resolves its workspace.
func Init(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	c := &Client{
		httpClient: &http.Client{Timeout: time.Minute},
		token:      token,
		apiURL:     DefaultAPIURL,
		gatewayURL: DefaultGatewayURL,
		tracer:     otel.Tracer("github.com/dmorgan81/beamshim/internal/beam"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Deployments = &DeploymentService{client: c}

	ctx, span := c.tracer.Start(ctx, "beam.init")
	defer span.End()

	log.FromContextOrDiscard(ctx).WithGroup("beam").Info("authenticating", "api", c.apiURL)

	resp, err := c.do(ctx, "init", http.MethodGet, c.apiURL+"/v2/workspace/current/", nil)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	if err := json.Unmarshal(resp.Body, &c.Workspace); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("beam: failed to decode workspace: %w", err)
	}
	span.SetAttributes(attribute.String("beam.workspace.id", c.Workspace.ID))
	return c, nil
}

// do sends one request and returns any 2xx response.
func (c *Client) do(ctx context.Context, op, method, url string, payload any) (*Response, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("beam: failed to marshal %s payload: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("beam: failed to create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("beam: failed to send %s request: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("beam: failed to read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return &Response{StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: body}, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
