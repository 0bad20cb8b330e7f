package prompt

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/samber/do"
)

var ErrNoPrompts = errors.New("no prompts configured")

type Randomizer struct {
	prompts []string
	rnd     *rand.Rand
}

func NewRandomizer(i *do.Injector) (*Randomizer, error) {
	prompts, err := do.InvokeNamed[[]string](i, "prompts")
	if err != nil {
		return nil, err
	}
	return NewRandomizerFrom(prompts, time.Now().UTC().Unix()), nil
}

func NewRandomizerFrom(prompts []string, seed int64) *Randomizer {
	return &Randomizer{prompts, rand.New(rand.NewSource(seed))}
}

func (r *Randomizer) Randomize(ctx context.Context) (string, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("randomizer")
	log.Info("getting random prompt", "choices", len(r.prompts))
	if len(r.prompts) == 0 {
		return "", ErrNoPrompts
	}
	return r.prompts[r.rnd.Intn(len(r.prompts))], nil
}
