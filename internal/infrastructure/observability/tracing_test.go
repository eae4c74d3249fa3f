package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/query-tools/internal/infrastructure/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), &config.Config{OTELEnabled: false, OTELEndpoint: "collector:4318"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabledWithoutEndpointIsDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), &config.Config{OTELEnabled: true})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
