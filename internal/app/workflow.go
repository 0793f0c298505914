// Package app runs the lookup, calculate, extract workflow against a
// running LCA application.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/lcarun/internal/adapters/ipc"
	"github.com/okian/lcarun/internal/config"
	"github.com/okian/lcarun/internal/domain/extract"
	"github.com/okian/lcarun/internal/domain/resolve"
	"github.com/okian/lcarun/internal/domain/schema"
	"github.com/okian/lcarun/pkg/logger"
	"github.com/okian/lcarun/pkg/metrics"
)

// disposeTimeout bounds releasing result handles after the run context
// may already be done.
const disposeTimeout = 5 * time.Second

// Workflow drives one calculation through the application.
type Workflow struct {
	client *ipc.Client

	processQuery resolve.Query
	methodQuery  resolve.Query
	amount       float64
	simulate     bool
	waitTimeout  time.Duration
	extract      extract.Options

	logger  logger.Logger
	metrics *metrics.Manager
}

// Outcome is everything a run produced. Fields are filled in workflow
// order, so a failed run still carries what was reached before the failure.
type Outcome struct {
	Process  resolve.Match
	Method   resolve.Match
	ResultID string
	Report   extract.Report
	// Disposed counts result handles the application released.
	Disposed int
}

// New creates a workflow that talks to the application through client.
// Defaults match config.New.
func New(client *ipc.Client, opts ...Option) *Workflow {
	defaults := config.New()
	w := &Workflow{
		client:       client,
		processQuery: resolve.ProcessQuery(defaults.ProcessName, defaults.ProcessKeywords...),
		methodQuery:  resolve.MethodQuery(defaults.MethodName, defaults.MethodKeywords, defaults.MethodRawKeywords),
		amount:       defaults.Amount,
		simulate:     defaults.Simulate,
		logger:       logger.Nop(),
		metrics:      metrics.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run resolves the process and method, calculates, waits for the result,
// and extracts the indicator values. Every result handle obtained is
// disposed before Run returns, whatever the outcome.
func (w *Workflow) Run(ctx context.Context) (out Outcome, err error) {
	w.logger.Info(ctx, "connecting to application", logger.String("endpoint", w.client.Endpoint()))

	out.Process, err = resolve.Process(ctx, w.client, w.processQuery)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrProcess, err)
	}
	w.recordMatch(ctx, "process", out.Process)

	out.Method, err = resolve.Method(ctx, w.client, w.methodQuery)
	if err != nil {
		if errors.Is(err, resolve.ErrNoMatch) {
			err = fmt.Errorf("no impact assessment method: %w", err)
		}
		return out, fmt.Errorf("%w: %w", ErrMethod, err)
	}
	w.recordMatch(ctx, "method", out.Method)

	var handles []*ipc.Result
	defer func() {
		out.Disposed = w.dispose(ctx, handles)
	}()

	setup := w.setup(out.Process.Ref, out.Method.Ref)

	if w.simulate {
		sim, err := w.client.Simulate(ctx, setup)
		if err != nil {
			return out, fmt.Errorf("%w: simulate: %w", ErrCalculation, err)
		}
		handles = append(handles, sim)
	}

	w.logger.Info(ctx, "running calculation", logger.Float64("amount", setup.Amount))
	result, err := w.client.Calculate(ctx, setup)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrCalculation, err)
	}
	handles = append(handles, result)
	out.ResultID = result.ID()

	if err := w.wait(ctx, result); err != nil {
		return out, fmt.Errorf("%w: %w", ErrCalculation, err)
	}
	w.logger.Info(ctx, "calculation finished", logger.String("result", result.ID()))

	out.Report, err = extract.Extract(ctx, result, out.Process.Ref.ID, w.extract)
	w.recordImpacts(out.Report)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	return out, nil
}

func (w *Workflow) setup(process, method schema.Ref) schema.CalculationSetup {
	m := schema.NewRef(schema.RefImpactMethod, method.ID)
	return schema.CalculationSetup{
		Target:       schema.NewRef(schema.RefProcess, process.ID),
		ImpactMethod: &m,
		Amount:       w.amount,
	}
}

func (w *Workflow) wait(ctx context.Context, result *ipc.Result) error {
	if w.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.waitTimeout)
		defer cancel()
	}
	_, err := result.WaitUntilReady(ctx)
	return err
}

// dispose releases handles best-effort; failures are logged only.
func (w *Workflow) dispose(ctx context.Context, handles []*ipc.Result) int {
	if len(handles) == 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disposeTimeout)
	defer cancel()

	released := 0
	for _, h := range handles {
		ok, err := h.Dispose(ctx)
		switch {
		case err != nil:
			w.logger.Warn(ctx, "dispose failed", logger.String("result", h.ID()), logger.Error(err))
		case ok:
			released++
		default:
			w.logger.Debug(ctx, "dispose not supported", logger.String("result", h.ID()))
		}
	}
	return released
}

func (w *Workflow) recordMatch(ctx context.Context, kind string, m resolve.Match) {
	w.metrics.RecordResolution(kind, string(m.Tier))
	fields := []logger.Field{
		logger.String("name", m.Ref.Name),
		logger.String("id", m.Ref.ID),
		logger.String("tier", string(m.Tier)),
	}
	if m.LookupErr != nil {
		fields = append(fields, logger.Error(m.LookupErr))
	}
	if m.Tier == resolve.TierExact {
		w.logger.Info(ctx, "found "+kind, fields...)
		return
	}
	w.logger.Warn(ctx, "exact "+kind+" not found, using fallback", fields...)
}

func (w *Workflow) recordImpacts(r extract.Report) {
	for _, line := range r.Lines {
		if line.Err == nil {
			w.metrics.SetImpactAmount(line.Category.Name, line.Unit, line.Amount)
		}
	}
}
