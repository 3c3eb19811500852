// Package coordinator runs sagas: an ordered list of steps, each with a
// compensating action, executed sequentially and undone in reverse order when
// a later step fails.
package coordinator

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/fulfillment-saga/internal/coordinator/sagalog"
)

const tracerName = "github.com/jcmexdev/fulfillment-saga/internal/coordinator"

// Step is a single unit of work in a saga. Compensate is only called if
// Execute succeeded and a later step failed.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

type Option func(*Orchestrator)

// WithLog records every transition of the saga in repo.
func WithLog(repo sagalog.Repository) Option {
	return func(o *Orchestrator) { o.log = repo }
}

// WithPayload stores the input that started the saga on the STARTED entry.
func WithPayload(payload string) Option {
	return func(o *Orchestrator) { o.payload = payload }
}

type Orchestrator struct {
	sagaID  string
	steps   []Step
	log     sagalog.Repository
	payload string
	tracer  trace.Tracer

	completed        []Step
	compensationErrs []error
}

func NewOrchestrator(sagaID string, steps []Step, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sagaID: sagaID,
		steps:  steps,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start runs the steps in order. When one fails, every step that already
// succeeded is compensated in reverse order and the failing step's error is
// returned as is.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.record(ctx, sagalog.StatusStarted, "", o.payload, nil)
	o.completed = nil

	done := make([]Step, 0, len(o.steps))
	for _, step := range o.steps {
		if err := o.execute(ctx, step); err != nil {
			var f *Failure
			if errors.As(err, &f) && f.Step == "" {
				f.Step = step.Name()
			}

			slog.WarnContext(ctx, "saga step failed, compensating",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			o.record(ctx, sagalog.StatusCompensating, step.Name(), "", []string{err.Error()})

			o.compensationErrs = o.Compensate(ctx, done)

			msgs := []string{err.Error()}
			for _, cerr := range o.compensationErrs {
				msgs = append(msgs, cerr.Error())
			}
			o.record(ctx, sagalog.StatusFailed, step.Name(), "", msgs)
			return err
		}
		done = append(done, step)
		o.record(ctx, sagalog.StatusStepDone, step.Name(), "", nil)
	}

	o.completed = done
	slog.InfoContext(ctx, "saga completed", "saga_id", o.sagaID, "steps", len(done))
	o.record(ctx, sagalog.StatusCompleted, "", "", nil)
	return nil
}

// Compensate undoes steps in reverse order. Every compensation is attempted
// even if an earlier one fails, and none of them can be cancelled by ctx.
func (o *Orchestrator) Compensate(ctx context.Context, steps []Step) []error {
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := o.compensate(ctx, step); err != nil {
			slog.ErrorContext(ctx, "compensation failed",
				"saga_id", o.sagaID, "step", step.Name(), "error", err)
			errs = append(errs, &Failure{Step: step.Name(), Detail: "compensation failed", Cause: err})
		}
	}
	return errs
}

// Completed returns the steps of the last Start when every one of them
// succeeded, and nil otherwise. Callers use it to undo a saga whose outcome
// was discarded after the fact, for example by a failed commit.
func (o *Orchestrator) Completed() []Step {
	return o.completed
}

// CompensationErrors returns the compensation failures of the last Start.
func (o *Orchestrator) CompensationErrors() []error {
	return o.compensationErrs
}

func (o *Orchestrator) execute(ctx context.Context, step Step) error {
	ctx, span := o.tracer.Start(ctx, "saga.step "+step.Name(), trace.WithAttributes(
		attribute.String("saga.id", o.sagaID),
		attribute.String("saga.step", step.Name()),
	))
	defer span.End()

	slog.DebugContext(ctx, "executing saga step", "saga_id", o.sagaID, "step", step.Name())
	if err := step.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) compensate(ctx context.Context, step Step) error {
	ctx, span := o.tracer.Start(ctx, "saga.compensate "+step.Name(), trace.WithAttributes(
		attribute.String("saga.id", o.sagaID),
		attribute.String("saga.step", step.Name()),
	))
	defer span.End()

	slog.InfoContext(ctx, "compensating saga step", "saga_id", o.sagaID, "step", step.Name())
	if err := step.Compensate(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, status sagalog.Status, step, payload string, errs []string) {
	if o.log == nil {
		return
	}
	entry := sagalog.NewEntry(ctx, o.sagaID, status, step, payload, errs)
	if err := o.log.Save(context.WithoutCancel(ctx), entry); err != nil {
		slog.WarnContext(ctx, "failed to write saga log", "saga_id", o.sagaID, "status", status, "error", err)
	}
}
