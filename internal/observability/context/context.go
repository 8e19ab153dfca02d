// Package context carries request-scoped correlation values used by logging
// and tracing.
package context

import (
	"context"
	"strings"
)

type (
	requestIDKey struct{}
	projectKey   struct{}
	runIDKey     struct{}
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

// WithProject tags the context with the project code a request works on.
func WithProject(ctx context.Context, project string) context.Context {
	project = strings.TrimSpace(project)
	if project == "" {
		return ctx
	}
	return context.WithValue(ctx, projectKey{}, project)
}

func ProjectFromContext(ctx context.Context) string {
	return stringValue(ctx, projectKey{})
}

// WithRunID tags the context with the load run being built or read.
func WithRunID(ctx context.Context, runID string) context.Context {
	runID = strings.TrimSpace(runID)
	if runID == "" || runID == "0" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx context.Context) string {
	return stringValue(ctx, runIDKey{})
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
