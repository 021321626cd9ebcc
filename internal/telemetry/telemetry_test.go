package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilamate/kilamate/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "kilamate-test",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.NotNil(t, provider)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)

	// Noop provider should have nil TracerProvider and MeterProvider
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)

	// Shutdown should not error
	err = provider.Shutdown(ctx)
	assert.NoError(t, err)
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	err := provider.Shutdown(context.Background())
	assert.NoError(t, err)
}

func TestStart_EndRecordsError(t *testing.T) {
	ctx, span := telemetry.Start(context.Background(), "dashboard.build", telemetry.Coordinates(34.08, 74.79)...)
	require.NotNil(t, ctx)
	require.NotNil(t, span)

	// With no SDK installed spans are non-recording; End must still be safe.
	telemetry.End(span, errors.New("upstream down"))
	telemetry.End(span, nil)
}

func TestCoordinates(t *testing.T) {
	attrs := telemetry.Coordinates(34.08, 74.79)
	require.Len(t, attrs, 2)
	assert.Equal(t, "geo.lat", string(attrs[0].Key))
	assert.Equal(t, 74.79, attrs[1].Value.AsFloat64())
}

func TestTracer_ReturnsGlobalTracer(t *testing.T) {
	tracer := telemetry.Tracer("test-tracer")
	assert.NotNil(t, tracer)
}

func TestMeter_ReturnsGlobalMeter(t *testing.T) {
	meter := telemetry.Meter("test-meter")
	assert.NotNil(t, meter)
}
