package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "memoir-test", "test", "")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_WithEndpoint(t *testing.T) {
	// The exporter connects lazily, so setup succeeds without a collector
	shutdown, err := Setup(context.Background(), "memoir-test", "test", "http://127.0.0.1:4318")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	t.Cleanup(func() { _ = shutdown(context.Background()) })
}
