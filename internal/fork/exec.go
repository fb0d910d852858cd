package fork

import (
	"context"
	"fmt"
	"runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// #region mode
// Mode selects how broadcasts are executed.
type Mode string

const (
	ModeSerial   Mode = "serial"
	ModeParallel Mode = "parallel"
	// ModeDistributed runs branches concurrently; metric evaluation is
	// expected to be delegated to remote workers by the caller.
	ModeDistributed Mode = "distributed"
)

// ParseMode validates a mode name. The empty string means serial.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSerial:
		return ModeSerial, nil
	case ModeParallel, ModeDistributed:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown execution mode %q (want serial, parallel or distributed)", s)
}
// #endregion mode

// #region executor
// Executor runs fn once per branch index. Implementations must run every
// index exactly once and report failures as a *BroadcastError.
type Executor interface {
	Mode() Mode
	Execute(ctx context.Context, labels []string, fn func(ctx context.Context, i int) error) error
}

// Serial runs branches one after the other and stops at the first failure.
type Serial struct{}

func (Serial) Mode() Mode { return ModeSerial }

func (Serial) Execute(ctx context.Context, labels []string, fn func(ctx context.Context, i int) error) error {
	for i, label := range labels {
		if err := ctx.Err(); err != nil {
			return &BroadcastError{Failures: []BranchFailure{{Label: label, Err: err}}}
		}
		if err := runBranch(ctx, label, i, fn); err != nil {
			return &BroadcastError{Failures: []BranchFailure{{Label: label, Err: err}}}
		}
	}
	return nil
}

// Parallel runs branches on an errgroup bounded by Limit. Every branch runs to
// completion and all failures are reported together.
type Parallel struct {
	Limit int
	mode  Mode
}

// NewParallel bounds concurrency at limit, or GOMAXPROCS when limit < 1.
func NewParallel(limit int) *Parallel {
	if limit < 1 {
		limit = runtime.GOMAXPROCS(0)
	}
	return &Parallel{Limit: limit, mode: ModeParallel}
}

// NewDistributed is a Parallel executor that reports ModeDistributed.
func NewDistributed(limit int) *Parallel {
	p := NewParallel(limit)
	p.mode = ModeDistributed
	return p
}

func (p *Parallel) Mode() Mode {
	if p.mode == "" {
		return ModeParallel
	}
	return p.mode
}

func (p *Parallel) Execute(ctx context.Context, labels []string, fn func(ctx context.Context, i int) error) error {
	errs := make([]error, len(labels))
	var g errgroup.Group
	if p.Limit > 0 {
		g.SetLimit(p.Limit)
	}
	for i, label := range labels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = runBranch(ctx, label, i, fn)
			return nil
		})
	}
	_ = g.Wait()

	var failures []BranchFailure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, BranchFailure{Label: labels[i], Err: err})
		}
	}
	if len(failures) > 0 {
		return &BroadcastError{Failures: failures}
	}
	return nil
}

var tracer = otel.Tracer("fairaudit/fork")

func runBranch(ctx context.Context, label string, i int, fn func(ctx context.Context, i int) error) (err error) {
	ctx, span := tracer.Start(ctx, "fork.branch", trace.WithAttributes(
		attribute.String("fork.label", label),
		attribute.Int("fork.index", i),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return fn(ctx, i)
}
// #endregion executor

// #region context
type executorKey struct{}

// WithExecutor scopes an executor to ctx and everything derived from it.
func WithExecutor(ctx context.Context, e Executor) context.Context {
	return context.WithValue(ctx, executorKey{}, e)
}

// WithMode scopes the default executor for mode to ctx.
func WithMode(ctx context.Context, mode Mode, limit int) context.Context {
	switch mode {
	case ModeParallel:
		return WithExecutor(ctx, NewParallel(limit))
	case ModeDistributed:
		return WithExecutor(ctx, NewDistributed(limit))
	}
	return WithExecutor(ctx, Serial{})
}

// ExecutorFrom returns the scoped executor, Serial when none is set.
func ExecutorFrom(ctx context.Context) Executor {
	if e, ok := ctx.Value(executorKey{}).(Executor); ok && e != nil {
		return e
	}
	return Serial{}
}
// #endregion context

// #region map
// Map applies fn to every branch with the executor scoped to ctx. Results keep
// the input label order regardless of completion order.
func Map[T, U any](ctx context.Context, f *Fork[T], fn func(ctx context.Context, label string, v T) (U, error)) (*Fork[U], error) {
	labels := f.Labels()
	out := make([]U, len(labels))
	err := ExecutorFrom(ctx).Execute(ctx, labels, func(ctx context.Context, i int) error {
		u, err := fn(ctx, labels[i], f.values[labels[i]])
		if err != nil {
			return err
		}
		out[i] = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return build(labels, out), nil
}

// Zip applies fn to matching branches of two forks with identical label sets.
func Zip[T, U, V any](ctx context.Context, a *Fork[T], b *Fork[U], fn func(ctx context.Context, label string, x T, y U) (V, error)) (*Fork[V], error) {
	if !SameLabels(a, b) {
		return nil, fmt.Errorf("%w: %v vs %v", ErrLabelMismatch, a.labels, b.labels)
	}
	return Map(ctx, a, func(ctx context.Context, label string, x T) (V, error) {
		return fn(ctx, label, x, b.values[label])
	})
}

func build[T any](labels []string, values []T) *Fork[T] {
	f := &Fork[T]{labels: labels, values: make(map[string]T, len(labels))}
	for i, l := range labels {
		f.values[l] = values[i]
	}
	return f
}
// #endregion map
