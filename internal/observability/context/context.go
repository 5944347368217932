package obscontext

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type runIDKey struct{}
type jobKey struct{}
type actorKey struct{}

type actorValue struct {
	actorType string
	actorID   string
}

// WithRunID sets the pipeline run identifier onto the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext fetches the pipeline run identifier from the context if present.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(runIDKey{}).(string); ok {
		return val
	}
	return ""
}

// EnsureRunID guarantees a run identifier on the context, generating one when missing.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	runID := RunIDFromContext(ctx)
	if runID == "" {
		runID = NewRunID()
	}
	return WithRunID(ctx, runID), runID
}

// NewRunID returns a fresh lexicographically sortable run identifier.
func NewRunID() string {
	return ulid.Make().String()
}

// WithJob sets the worker job name onto the context.
func WithJob(ctx context.Context, job string) context.Context {
	job = strings.TrimSpace(job)
	if job == "" {
		return ctx
	}
	return context.WithValue(ctx, jobKey{}, job)
}

// JobFromContext fetches the worker job name from the context if present.
func JobFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(jobKey{}).(string); ok {
		return val
	}
	return ""
}

// WithActor records who initiated the work, e.g. ("cli", username) or ("worker", instance id).
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	actorType = strings.TrimSpace(actorType)
	actorID = strings.TrimSpace(actorID)
	if actorType == "" && actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorValue{actorType: actorType, actorID: actorID})
}

// ActorFromContext fetches the actor type and id from the context if present.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if val, ok := ctx.Value(actorKey{}).(actorValue); ok {
		return val.actorType, val.actorID
	}
	return "", ""
}
