package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

const (
	defaultPollBaseInterval = 5 * time.Second
	defaultPollMaxInterval  = 60 * time.Second
	defaultPollMultiplier   = 1.5
)

type PollerConfig struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration
	Multiplier   float64
}

// Poller waits for an indexing task to reach a terminal state.
type Poller struct {
	provider VideoProvider
	cfg      PollerConfig
	log      logrus.FieldLogger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type PollerOption func(*Poller)

// WithClock overrides the time source and the sleep between attempts (useful for tests).
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) PollerOption {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

func NewPoller(provider VideoProvider, cfg PollerConfig, log logrus.FieldLogger, opts ...PollerOption) *Poller {
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = defaultPollBaseInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaultPollMaxInterval
	}
	if cfg.MaxInterval < cfg.BaseInterval {
		cfg.MaxInterval = cfg.BaseInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = defaultPollMultiplier
	}

	p := &Poller{
		provider: provider,
		cfg:      cfg,
		log:      log.WithField("component", "poller"),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollUntilReady returns the provider video id once the task is ready.
// Transient status failures are logged and retried until the deadline.
func (p *Poller) PollUntilReady(ctx context.Context, taskID string, timeout time.Duration) (string, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.cfg.BaseInterval,
		RandomizationFactor: 0,
		Multiplier:          p.cfg.Multiplier,
		MaxInterval:         p.cfg.MaxInterval,
	}
	b.Reset()

	deadline := p.now().Add(timeout)
	lastStatus := "unknown"
	log := p.log.WithField("task_id", taskID)

	for p.now().Before(deadline) {
		st, err := p.provider.GetTaskStatus(ctx, taskID)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			if !isTransientProviderError(err) {
				return "", err
			}
			log.WithError(err).Warn("task status check failed, will retry")
		case st.Status == TaskStatusReady:
			if st.VideoID == "" {
				return "", &ProviderProcessingError{Message: "TwelveLabs task ready but no video_id in response"}
			}
			log.WithField("video_id", st.VideoID).Info("task ready")
			return st.VideoID, nil
		case st.Status == TaskStatusFailed:
			msg := st.Message
			if msg == "" {
				msg = "Indexing failed"
			}
			return "", &ProviderProcessingError{Message: "TwelveLabs task failed: " + msg}
		default:
			lastStatus = st.Status
		}

		remaining := deadline.Sub(p.now())
		if remaining <= 0 {
			break
		}
		wait := b.NextBackOff()
		if wait > remaining {
			wait = remaining
		}
		log.WithFields(logrus.Fields{"status": lastStatus, "wait": wait}).Debug("task not ready")
		if err := p.sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	return "", &TimeoutError{TaskID: taskID, LastStatus: lastStatus, Timeout: timeout.String()}
}

// isTransientProviderError reports whether polling should continue after err.
// Client errors other than 429 will not change on retry.
func isTransientProviderError(err error) bool {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return false
	}
	var reqErr *ProviderRequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode >= 400 && reqErr.StatusCode < 500 {
		return reqErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
