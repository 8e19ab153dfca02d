package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, RunIDFromContext(nil))

	ctx = WithRequestID(ctx, " req-1 ")
	ctx = WithProject(ctx, "spinempire")
	ctx = WithRunID(ctx, "0")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "spinempire", ProjectFromContext(ctx))
	assert.Empty(t, RunIDFromContext(ctx), "zero run id is ignored")

	ctx = WithRunID(ctx, "1834")
	assert.Equal(t, "1834", RunIDFromContext(ctx))
}
