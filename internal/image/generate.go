package image

import (
	"context"
	"errors"
	"fmt"
)

var ErrMissingImage = errors.New("response has no image")

// Result is either Success or Failure.
type Result interface {
	result()
}

// Success carries the reference to render. Data and ContentType are set
// only when the backend answered with a binary body.
type Success struct {
	Image       string
	Data        []byte
	ContentType string
}

type Failure struct {
	Reason error
}

func (Success) result() {}
func (Failure) result() {}

func (f Failure) Error() string {
	if f.Reason == nil {
		return "image generation failed"
	}
	return f.Reason.Error()
}

func (f Failure) Unwrap() error { return f.Reason }

// StatusError is a non-2xx answer from the generation backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}

type Generator interface {
	Generate(context.Context, string) Result
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(context.Context, string) Result

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) Result {
	return f(ctx, prompt)
}
