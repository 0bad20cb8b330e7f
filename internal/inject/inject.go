package inject

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/beamshim/internal/beam"
	"github.com/dmorgan81/beamshim/internal/config"
	"github.com/dmorgan81/beamshim/internal/deploy"
	"github.com/dmorgan81/beamshim/internal/event"
	"github.com/dmorgan81/beamshim/internal/feed"
	"github.com/dmorgan81/beamshim/internal/handler"
	"github.com/dmorgan81/beamshim/internal/image"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/dmorgan81/beamshim/internal/page"
	"github.com/dmorgan81/beamshim/internal/param"
	"github.com/dmorgan81/beamshim/internal/prompt"
	"github.com/dmorgan81/beamshim/internal/server"
	"github.com/dmorgan81/beamshim/internal/store"
	"github.com/samber/do"
)

const blobLimit = 32

type options struct {
	memoryBlobs bool
	blobDir     string
}

type Option func(*options)

// WithMemoryBlobs keeps binary images in memory for the proxy's /blobs route.
func WithMemoryBlobs() Option {
	return func(o *options) { o.memoryBlobs = true }
}

// WithFileBlobs writes binary images under dir.
func WithFileBlobs(dir string) Option {
	return func(o *options) { o.blobDir = dir }
}

// Setup registers every provider. Binary images become data URLs unless an
// option picks another store.
func Setup(ctx context.Context, cfg *config.Config, opts ...Option) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.ProvideValue[*config.Config](injector, cfg)

	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.ProvideValue[*http.Client](injector, &http.Client{Timeout: cfg.Timeout})

	do.Provide[param.Fetcher](injector, param.NewParameterStoreFetcher)

	do.ProvideNamed[string](injector, "beam_token", func(i *do.Injector) (string, error) {
		return secret(ctx, i, cfg.BeamToken, cfg.BeamTokenParam)
	})
	do.ProvideNamed[string](injector, "image_auth_token", func(i *do.Injector) (string, error) {
		return secret(ctx, i, cfg.ImageAuthToken, cfg.ImageAuthTokenParam)
	})
	do.ProvideNamed[[]string](injector, "prompts", func(i *do.Injector) ([]string, error) {
		var f param.Fetcher
		if cfg.PromptsParam != "" {
			f = do.MustInvoke[param.Fetcher](i)
		}
		prompts, err := param.ResolveAll(ctx, f, cfg.Prompts, cfg.PromptsParam)
		if errors.Is(err, param.ErrNotConfigured) {
			return nil, nil
		}
		return prompts, err
	})
	do.ProvideNamedValue[string](injector, "image_api_url", cfg.ImageAPIURL)
	do.ProvideNamedValue[string](injector, "image_prompt_field", cfg.ImagePromptField)
	do.ProvideNamedValue[string](injector, "bucket", cfg.Bucket)
	do.ProvideNamedValue[string](injector, "distribution", cfg.Distribution)
	do.ProvideNamedValue[string](injector, "site_url", cfg.SiteURL)
	do.ProvideNamedValue[string](injector, "event_sink", cfg.EventSink)
	do.ProvideNamedValue[string](injector, "event_source", cfg.EventSource)

	memory := image.NewMemoryBlobs("/blobs", blobLimit)
	do.ProvideValue[*image.MemoryBlobs](injector, memory)
	switch {
	case o.memoryBlobs:
		do.ProvideValue[image.Blobs](injector, memory)
	case o.blobDir != "":
		do.ProvideValue[image.Blobs](injector, &store.FileBlobs{Files: &store.FileUploader{Dir: o.blobDir}})
	default:
		do.ProvideValue[image.Blobs](injector, image.DataURLs{})
	}
	do.Provide[image.Generator](injector, image.NewBeamGenerator)

	do.Provide[deploy.Connector](injector, func(i *do.Injector) (deploy.Connector, error) {
		token, err := do.InvokeNamed[string](i, "beam_token")
		if err != nil {
			return nil, err
		}
		return deploy.BeamConnector(token,
			beam.WithAPIURL(cfg.BeamAPIURL),
			beam.WithGatewayURL(cfg.BeamGatewayURL),
			beam.WithTimeout(cfg.Timeout),
		), nil
	})
	do.Provide[*deploy.Browser](injector, func(i *do.Injector) (*deploy.Browser, error) {
		return deploy.NewBrowser(do.MustInvoke[deploy.Connector](i)), nil
	})

	do.Provide[*page.Templator](injector, page.NewTemplator)
	do.Provide[store.Uploader](injector, store.NewUploader)
	do.Provide[store.Invalidator](injector, store.NewInvalidator)
	do.Provide[server.FeedGenerator](injector, func(i *do.Injector) (server.FeedGenerator, error) {
		if cfg.Bucket == "" {
			return nil, errors.New("no bucket configured")
		}
		return feed.NewS3Generator(i)
	})
	do.Provide[event.Publisher](injector, event.NewPublisher)
	do.Provide[*prompt.Randomizer](injector, prompt.NewRandomizer)

	do.Provide[*handler.Handler](injector, handler.NewHandler)
	do.Provide[*server.Server](injector, server.NewServer)

	return injector
}

// secret resolves a literal value or an SSM parameter name. Neither being
// set yields "".
func secret(ctx context.Context, i *do.Injector, value, name string) (string, error) {
	var f param.Fetcher
	if value == "" && name != "" {
		f = do.MustInvoke[param.Fetcher](i)
	}
	v, err := param.Resolve(ctx, f, value, name)
	if errors.Is(err, param.ErrNotConfigured) {
		return "", nil
	}
	return v, err
}
