package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerSharesOneInstance(t *testing.T) {
	// Startup code logs through GetLogger before InitLogger has run;
	// repeated calls must hand back the same fallback instance.
	first := GetLogger()
	require.NotNil(t, first)
	assert.Same(t, first, GetLogger())
}

func TestInitLoggerReplacesGlobal(t *testing.T) {
	config := NewDefaultConfig()
	config.Logging.Output = []string{"stdout"}
	config.Logging.Level = "debug"

	logger := InitLogger(config)
	require.NotNil(t, logger)
	assert.Same(t, logger, GetLogger())
}
