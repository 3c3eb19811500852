// Package fallback routes capability calls to a preferred implementation and,
// when allowed, to a fallback implementation if the preferred one fails.
//
// The decision is re-evaluated on every call; nothing is cached between calls
// and no call is retried.
package fallback

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/fulfillment-saga/internal/capability"
)

// Policy is the per-capability routing configuration.
type Policy struct {
	UsePreferred  bool
	AllowFallback bool
}

// UnavailableError reports that both the preferred and the fallback
// implementation failed. It matches capability.ErrUnavailable and unwraps to
// both causes.
type UnavailableError struct {
	Capability string
	Method     string
	Preferred  error
	Fallback   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: preferred %s failed (%v), fallback also failed (%v)",
		e.Capability, e.Method, e.Preferred, e.Fallback)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{capability.ErrUnavailable, e.Preferred, e.Fallback}
}

// Fallback pairs two implementations of the same capability C.
type Fallback[C any] struct {
	name      string
	preferred C
	fallback  C
	policy    Policy
}

func New[C any](name string, preferred, fallback C, policy Policy) *Fallback[C] {
	return &Fallback[C]{
		name:      name,
		preferred: preferred,
		fallback:  fallback,
		policy:    policy,
	}
}

func (f *Fallback[C]) Name() string   { return f.name }
func (f *Fallback[C]) Policy() Policy { return f.policy }

// Call invokes fn against the implementation selected by f's policy.
func Call[C, R any](ctx context.Context, f *Fallback[C], method string, fn func(C) (R, error)) (R, error) {
	if !f.policy.UsePreferred {
		slog.DebugContext(ctx, "using fallback implementation", "capability", f.name, "method", method)
		return fn(f.fallback)
	}

	res, err := fn(f.preferred)
	if err == nil {
		return res, nil
	}

	slog.WarnContext(ctx, "preferred implementation failed",
		"capability", f.name, "method", method, "error", err)

	if !f.policy.AllowFallback {
		return res, err
	}

	trace.SpanFromContext(ctx).AddEvent("capability.fallback", trace.WithAttributes(
		attribute.String("capability.name", f.name),
		attribute.String("capability.method", method),
		attribute.String("capability.preferred_error", err.Error()),
	))

	fbRes, fbErr := fn(f.fallback)
	if fbErr != nil {
		slog.ErrorContext(ctx, "preferred and fallback implementations failed",
			"capability", f.name, "method", method, "preferred_error", err, "fallback_error", fbErr)
		var zero R
		return zero, &UnavailableError{
			Capability: f.name,
			Method:     method,
			Preferred:  err,
			Fallback:   fbErr,
		}
	}

	slog.InfoContext(ctx, "fallback implementation succeeded", "capability", f.name, "method", method)
	return fbRes, nil
}
