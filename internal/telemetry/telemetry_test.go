package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"vigil/internal/config"
	"vigil/pkg/logger"
)

func TestInit_NoEndpointIsNoop(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), config.TracingConfig{}, logger.Discard())
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_WithEndpoint(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), config.TracingConfig{
		Endpoint: "localhost:4317",
		Insecure: true,
	}, logger.Discard())
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
