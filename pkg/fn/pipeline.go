package fn

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/WessleyAI/wessley-fitment/pkg/fn"

// Stage is one step of a pipeline.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// Then runs second on the output of first. An error from first skips second.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, a A) Result[C] {
		b, err := first(ctx, a).Unwrap()
		if err != nil {
			return Err[C](err)
		}
		return second(ctx, b)
	}
}

// TracedStage runs stage inside a span named name and records its error.
func TracedStage[In, Out any](name string, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		result := stage(ctx, in)
		if _, err := result.Unwrap(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return result
	}
}

// LoggedStage wraps a stage with stage.enter/stage.exit logs. The exit line
// carries the duration and, on failure, the error.
func LoggedStage[In, Out any](name string, log *slog.Logger, stage Stage[In, Out]) Stage[In, Out] {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, in In) Result[Out] {
		log.DebugContext(ctx, "stage.enter", "stage", name)
		start := time.Now()
		result := stage(ctx, in)
		if _, err := result.Unwrap(); err != nil {
			log.WarnContext(ctx, "stage.exit", "stage", name, "duration", time.Since(start), "error", err)
			return result
		}
		log.DebugContext(ctx, "stage.exit", "stage", name, "duration", time.Since(start))
		return result
	}
}
