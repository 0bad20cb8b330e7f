package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dmorgan81/beamshim/internal/event"
	"github.com/dmorgan81/beamshim/internal/image"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/dmorgan81/beamshim/internal/prompt"
	"github.com/dmorgan81/beamshim/internal/store"
	"github.com/samber/do"
	"github.com/samber/lo"
)

type Input struct {
	Date   string `json:"date,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

type Output struct {
	Date   string `json:"date"`
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
}

type Handler struct {
	randomizer  *prompt.Randomizer
	generator   image.Generator
	client      *http.Client
	uploader    store.Uploader
	invalidator store.Invalidator
	publisher   event.Publisher
	siteURL     string
	now         func() time.Time
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return &Handler{
		randomizer:  do.MustInvoke[*prompt.Randomizer](i),
		generator:   do.MustInvoke[image.Generator](i),
		client:      do.MustInvoke[*http.Client](i),
		uploader:    do.MustInvoke[store.Uploader](i),
		invalidator: do.MustInvoke[store.Invalidator](i),
		publisher:   do.MustInvoke[event.Publisher](i),
		siteURL:     do.MustInvokeNamed[string](i, "site_url"),
		now:         time.Now,
	}, nil
}

func (h *Handler) Handle(ctx context.Context, input Input) (Output, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("handler").With("input", input)
	log.Info("handling lambda invocation")

	if input.Prompt == "" {
		p, err := h.randomizer.Randomize(ctx)
		if err != nil {
			return Output{}, err
		}
		input.Prompt = p
	}

	latest := false
	if input.Date == "" {
		input.Date = h.now().UTC().Format("20060102")
		latest = true
	}

	var img image.Success
	switch res := h.generator.Generate(ctx, input.Prompt).(type) {
	case image.Success:
		img = res
	case image.Failure:
		return Output{}, fmt.Errorf("failed to generate image: %w", res)
	}

	data, contentType := img.Data, img.ContentType
	if data == nil {
		var err error
		if data, contentType, err = image.Fetch(ctx, h.client, img.Image); err != nil {
			return Output{}, err
		}
	}
	ext := image.Extension(contentType)

	metadata := map[string]string{
		"date":   input.Date,
		"prompt": input.Prompt,
		"source": "beam",
	}
	names := []string{input.Date + ext}
	if latest {
		names = append(names, "latest"+ext)
	}
	for _, name := range names {
		err := h.uploader.Upload(ctx, store.UploadParams{
			Name:        name,
			Data:        data,
			ContentType: contentType,
			Metadata:    metadata,
		})
		if err != nil {
			return Output{}, err
		}
	}

	paths := lo.Map(names, func(name string, _ int) string { return "/" + name })
	if err := h.invalidator.Invalidate(ctx, paths); err != nil {
		return Output{}, err
	}

	out := Output{
		Date:   input.Date,
		Prompt: input.Prompt,
		Image:  lo.Ternary(h.siteURL != "", h.siteURL+"/", "") + names[0],
	}
	if _, err := h.publisher.Publish(ctx, event.Generated{Prompt: out.Prompt, Image: out.Image, Origin: "lambda"}); err != nil {
		log.Error("failed to publish event", "error", err)
	}
	return out, nil
}
