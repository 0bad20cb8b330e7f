package event

import (
	"context"
	"fmt"
	"strings"
	"time"

	ce "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/client"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/google/uuid"
	"github.com/samber/do"
)

const TypeImageGenerated = "cloud.beam.image.generated"

// Generated announces a successfully generated image.
type Generated struct {
	Prompt string
	Image  string
	Origin string
}

type Publisher interface {
	Publish(context.Context, Generated) (string, error)
}

type CloudEventsPublisher struct {
	client client.Client
	sink   string
	source string
	now    func() time.Time
}

func NewPublisher(i *do.Injector) (Publisher, error) {
	sink := do.MustInvokeNamed[string](i, "event_sink")
	source := do.MustInvokeNamed[string](i, "event_source")
	return NewCloudEventsPublisher(sink, source)
}

// NewCloudEventsPublisher sends to sink over HTTP. With an empty sink events
// are only logged.
func NewCloudEventsPublisher(sink, source string) (*CloudEventsPublisher, error) {
	p := &CloudEventsPublisher{sink: sink, source: source, now: time.Now}
	if sink == "" {
		return p, nil
	}
	c, err := ce.NewClientHTTP(ce.WithTarget(sink))
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudEvents client: %w", err)
	}
	p.client = c
	return p, nil
}

func (p *CloudEventsPublisher) Publish(ctx context.Context, g Generated) (string, error) {
	event := ce.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(p.source)
	event.SetType(TypeImageGenerated)
	event.SetTime(p.now())
	event.SetExtension("origin", g.Origin)

	data := map[string]string{"prompt": g.Prompt}
	if strings.HasPrefix(g.Image, "http://") || strings.HasPrefix(g.Image, "https://") {
		data["image_url"] = g.Image
	}
	if err := event.SetData(ce.ApplicationJSON, data); err != nil {
		return "", fmt.Errorf("failed to set event data: %w", err)
	}

	log := log.FromContextOrDiscard(ctx).WithGroup("event").With("id", event.ID(), "type", event.Type())
	if p.client == nil {
		log.Info("no sink configured, dropping event")
		return event.ID(), nil
	}

	if result := p.client.Send(ctx, event); !ce.IsACK(result) {
		return "", fmt.Errorf("failed to deliver event: %w", result)
	}
	log.Info("sent event", "sink", p.sink)
	return event.ID(), nil
}
