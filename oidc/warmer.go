package oidckit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	jwtkit "github.com/PaulFidika/ocidkit/jwt"
)

// DefaultWarmSchedule refreshes key sets ahead of the one hour cache TTL.
const DefaultWarmSchedule = "@every 50m"

// KeySetRefresher fetches a key set unconditionally and replaces the cached copy.
type KeySetRefresher interface {
	Refresh(ctx context.Context, url string) ([]jwtkit.JWK, error)
}

// KeySetWarmer keeps key-set cache entries fresh on a cron schedule so that
// logins rarely wait on a key-set fetch.
type KeySetWarmer struct {
	keys    KeySetRefresher
	urls    []string
	cron    *cron.Cron
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewKeySetWarmer schedules refreshes of urls. An empty schedule means
// DefaultWarmSchedule.
func NewKeySetWarmer(keys KeySetRefresher, schedule string, urls []string, log logrus.FieldLogger) (*KeySetWarmer, error) {
	if keys == nil {
		return nil, errors.New("oidc: warmer needs a key-set refresher")
	}
	if schedule == "" {
		schedule = DefaultWarmSchedule
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	w := &KeySetWarmer{
		keys:    keys,
		urls:    urls,
		cron:    cron.New(),
		timeout: jwtkit.DefaultFetchTimeout,
		log:     log,
	}
	if _, err := w.cron.AddFunc(schedule, func() { _ = w.Warm(context.Background()) }); err != nil {
		return nil, fmt.Errorf("oidc: invalid warm schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Warm refreshes every URL once and returns the joined failures.
func (w *KeySetWarmer) Warm(ctx context.Context) error {
	var errs []error
	for _, u := range w.urls {
		fctx, cancel := context.WithTimeout(ctx, w.timeout)
		keys, err := w.keys.Refresh(fctx, u)
		cancel()
		if err != nil {
			w.log.WithField("url", u).WithError(err).Warn("key set warm failed")
			errs = append(errs, err)
			continue
		}
		w.log.WithFields(logrus.Fields{"url": u, "keys": len(keys)}).Debug("key set warmed")
	}
	return errors.Join(errs...)
}

// Start warms once, then runs the schedule in the background.
func (w *KeySetWarmer) Start(ctx context.Context) {
	_ = w.Warm(ctx)
	w.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to finish.
func (w *KeySetWarmer) Stop() {
	<-w.cron.Stop().Done()
}
