package deploy

import (
	"context"
	"fmt"

	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/robfig/cron/v3"
)

// Refresher reloads a Browser on a cron schedule such as "@every 5m".
type Refresher struct {
	browser *Browser
	cron    *cron.Cron
}

func NewRefresher(ctx context.Context, browser *Browser, spec string) (*Refresher, error) {
	r := &Refresher{browser: browser, cron: cron.New()}
	_, err := r.cron.AddFunc(spec, func() {
		log.FromContextOrDiscard(ctx).WithGroup("refresher").Info("refreshing deployments")
		_ = r.browser.Load(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return r, nil
}

// Run starts the schedule and blocks until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
	return nil
}
