package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("env", "prod"),
		attribute.String("login", "user_1DEP"),
		attribute.String("geo", "DE"),
		attribute.String("reason", "rejected"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("env"), attrs[0].Key)
	assert.Equal(t, attribute.Key("reason"), attrs[1].Key)
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordLoginFetch(ctx, "prod", "")
	m.RecordExport(ctx, "xlsx", "multi")
	m.RecordSynthetic(ctx, "hardcoded", 0)

	var nilMetrics *Metrics
	nilMetrics.RecordRateLimitDenied(ctx, "/api/methods/load", "load-rate")
}
