package ipc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/lcarun/internal/domain/schema"
	"github.com/okian/lcarun/pkg/logger"
	"github.com/okian/lcarun/pkg/metrics"
)

// Result is a handle to a calculation result held by the application.
// It stays valid until disposed.
type Result struct {
	client *Client
	state  schema.ResultState
}

// Calculate submits a calculation and returns its result handle. The
// result is usually not ready yet; see WaitUntilReady.
func (c *Client) Calculate(ctx context.Context, setup schema.CalculationSetup) (*Result, error) {
	return c.submit(ctx, MethodCalculate, setup)
}

// Simulate submits a Monte-Carlo simulation for the setup.
func (c *Client) Simulate(ctx context.Context, setup schema.CalculationSetup) (*Result, error) {
	return c.submit(ctx, MethodSimulate, setup)
}

func (c *Client) submit(ctx context.Context, method string, setup schema.CalculationSetup) (*Result, error) {
	var state schema.ResultState
	if err := c.call(ctx, method, setup, &state); err != nil {
		return nil, err
	}
	if state.Failed() {
		return nil, fmt.Errorf("%w: %s", ErrResultFailed, state.Error)
	}
	if state.ID == "" {
		return nil, fmt.Errorf("%w: %s: missing result id", ErrProtocol, method)
	}
	return &Result{client: c, state: state}, nil
}

// ID returns the result handle id.
func (r *Result) ID() string {
	return r.state.ID
}

// LastState returns the most recently observed state.
func (r *Result) LastState() schema.ResultState {
	return r.state
}

// State fetches the current state of the result.
func (r *Result) State(ctx context.Context) (schema.ResultState, error) {
	var state schema.ResultState
	if err := r.client.call(ctx, MethodState, resultParams{ID: r.state.ID}, &state); err != nil {
		return schema.ResultState{}, err
	}
	r.state = state
	return state, nil
}

// WaitUntilReady polls the result state until it is ready, the
// application reports an error, or ctx is done.
func (r *Result) WaitUntilReady(ctx context.Context) (schema.ResultState, error) {
	start := time.Now()
	defer func() {
		r.client.metrics.RecordCalculationWait(float64(time.Since(start).Nanoseconds()) / nanosPerMillisecond)
	}()

	state := r.state
	ticker := time.NewTicker(r.client.pollInterval)
	defer ticker.Stop()

	for {
		if state.Failed() {
			return state, fmt.Errorf("%w: %s", ErrResultFailed, state.Error)
		}
		if state.IsReady {
			r.client.logger.Debug(ctx, "result ready",
				logger.String("result", r.state.ID),
				logger.Duration("waited", time.Since(start)))
			return state, nil
		}

		select {
		case <-ctx.Done():
			return state, fmt.Errorf("waiting for result %s: %w", r.state.ID, ctx.Err())
		case <-ticker.C:
		}

		r.client.metrics.RecordCalculationPoll()
		next, err := r.State(ctx)
		if err != nil {
			return state, err
		}
		state = next
	}
}

// ImpactCategories lists the impact categories of the result.
func (r *Result) ImpactCategories(ctx context.Context) ([]schema.Ref, error) {
	var refs []schema.Ref
	if err := r.client.call(ctx, MethodImpactCategories, resultParams{ID: r.state.ID}, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// TechFlows lists the technical flows of the result.
func (r *Result) TechFlows(ctx context.Context) ([]schema.TechFlow, error) {
	var flows []schema.TechFlow
	if err := r.client.call(ctx, MethodTechFlows, resultParams{ID: r.state.ID}, &flows); err != nil {
		return nil, err
	}
	return flows, nil
}

// TotalImpactValueOf returns the total impact of a category for the given
// technical flow.
func (r *Result) TotalImpactValueOf(ctx context.Context, category schema.Ref, techFlow schema.TechFlow) (schema.ImpactValue, error) {
	params := impactValueParams{ID: r.state.ID, ImpactCategory: category, TechFlow: techFlow}
	var value schema.ImpactValue
	if err := r.client.call(ctx, MethodTotalImpactValueOf, params, &value); err != nil {
		return schema.ImpactValue{}, err
	}
	return value, nil
}

// Dispose releases the result on the application side. Servers without
// dispose support are tolerated; the returned bool reports whether
// anything was released.
func (r *Result) Dispose(ctx context.Context) (bool, error) {
	err := r.client.call(ctx, MethodDispose, resultParams{ID: r.state.ID}, nil)
	switch {
	case err == nil:
		r.client.metrics.RecordDisposal(metrics.OutcomeOK)
		return true, nil
	case errors.Is(err, ErrNotSupported):
		r.client.metrics.RecordDisposal("unsupported")
		return false, nil
	default:
		r.client.metrics.RecordDisposal(metrics.OutcomeFailed)
		return false, err
	}
}
