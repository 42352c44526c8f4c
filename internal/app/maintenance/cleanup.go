package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/keyloom/keyloom/internal/passkey"
	"github.com/keyloom/keyloom/internal/services"
	"github.com/keyloom/keyloom/pkg/logger"
)

const (
	defaultTokenSpec   = "@hourly"
	defaultOptionsSpec = "@hourly"
)

// Cleaner coordinates background maintenance: sweeping expired recovery
// tokens and abandoned registration-ceremony options. Correctness never
// depends on it running — expired rows are rejected on read — so the sweeps
// are pure storage hygiene.
type Cleaner struct {
	tokens   *services.RecoveryTokenService
	passkeys *passkey.Service
	cron     *cron.Cron
	log      *zap.Logger
	enabled  bool

	tokenSchedule   string
	optionsSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithTokenSchedule overrides the cron specification for token sweeps.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithOptionsSchedule overrides the cron specification for ceremony-options sweeps.
func WithOptionsSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.optionsSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency
// results in the corresponding sweep being skipped.
func NewCleaner(tokens *services.RecoveryTokenService, passkeys *passkey.Service, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		tokens:          tokens,
		passkeys:        passkeys,
		tokenSchedule:   defaultTokenSpec,
		optionsSchedule: defaultOptionsSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.tokens != nil || cleaner.passkeys != nil

	return cleaner
}

// Start registers the sweeps with the cron scheduler and launches it if at
// least one is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.tokens != nil {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			if _, err := c.tokens.DeleteExpired(context.Background()); err != nil {
				c.log.Warn("recovery token sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.passkeys != nil {
		if _, err := c.cron.AddFunc(c.optionsSchedule, func() {
			if _, err := c.passkeys.DeleteExpiredOptions(context.Background()); err != nil {
				c.log.Warn("ceremony options sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured sweeps sequentially. Primarily used in
// tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.tokens != nil {
		if _, err := c.tokens.DeleteExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.passkeys != nil {
		if _, err := c.passkeys.DeleteExpiredOptions(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
