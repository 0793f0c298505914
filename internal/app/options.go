package app

import (
	"time"

	"github.com/okian/lcarun/internal/config"
	"github.com/okian/lcarun/internal/domain/extract"
	"github.com/okian/lcarun/internal/domain/resolve"
	"github.com/okian/lcarun/pkg/logger"
	"github.com/okian/lcarun/pkg/metrics"
)

// Option applies a configuration option to the Workflow.
type Option func(*Workflow)

// WithLogger sets a custom logger for the workflow.
func WithLogger(l logger.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetrics sets the metrics manager resolutions and impacts are recorded on.
func WithMetrics(m *metrics.Manager) Option {
	return func(w *Workflow) {
		if m != nil {
			w.metrics = m
		}
	}
}

// WithProcessQuery replaces the target process query.
func WithProcessQuery(q resolve.Query) Option {
	return func(w *Workflow) {
		w.processQuery = q
	}
}

// WithMethodQuery replaces the impact method query.
func WithMethodQuery(q resolve.Query) Option {
	return func(w *Workflow) {
		w.methodQuery = q
	}
}

// WithAmount sets the reference flow amount of the target process.
func WithAmount(amount float64) Option {
	return func(w *Workflow) {
		if amount > 0 {
			w.amount = amount
		}
	}
}

// WithSimulate toggles the extra simulation submitted before calculating.
func WithSimulate(enabled bool) Option {
	return func(w *Workflow) {
		w.simulate = enabled
	}
}

// WithWaitTimeout bounds the wait for the calculation; zero waits until ctx is done.
func WithWaitTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		if d >= 0 {
			w.waitTimeout = d
		}
	}
}

// WithExtractOptions tunes the indicator extraction.
func WithExtractOptions(opts extract.Options) Option {
	return func(w *Workflow) {
		w.extract = opts
	}
}

// FromConfig maps a loaded configuration onto workflow options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithProcessQuery(resolve.ProcessQuery(cfg.ProcessName, cfg.ProcessKeywords...)),
		WithMethodQuery(resolve.MethodQuery(cfg.MethodName, cfg.MethodKeywords, cfg.MethodRawKeywords)),
		WithAmount(cfg.Amount),
		WithSimulate(cfg.Simulate),
		WithWaitTimeout(cfg.WaitTimeout()),
		WithExtractOptions(extract.Options{
			ClimateKeywords: cfg.ClimateKeywords,
			FallbackLimit:   cfg.FallbackLimit,
		}),
	}
}
