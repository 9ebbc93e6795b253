package logger_test

import (
	"context"
	"testing"

	"github.com/KaramelBytes/geopower/internal/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetWithoutSetupIsUsable(t *testing.T) {
	l := logger.Get(context.Background())
	require.NotNil(t, l)
	require.NotPanics(t, func() {
		logger.Info(context.Background(), "nothing to see")
	})
}

func TestSetup(t *testing.T) {
	for _, env := range []string{logger.DevelopmentEnvironment, logger.ProductionEnvironment} {
		t.Run(env, func(t *testing.T) {
			require.NoError(t, logger.Setup(env, false))
			require.NotNil(t, logger.Get(context.Background()))
		})
	}
	require.NoError(t, logger.Setup(logger.DevelopmentEnvironment, true))
	require.True(t, logger.Get(context.Background()).Core().Enabled(zap.DebugLevel))
}

func TestWithFieldsCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := logger.WithLogger(context.Background(), zap.New(core))
	ctx = logger.WithFields(ctx, zap.String("study", "demo"))

	logger.Warn(ctx, "regions size do not add up to 1")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "regions size do not add up to 1", entries[0].Message)
	require.Equal(t, "demo", entries[0].ContextMap()["study"])
}

func TestReplaceRestoresPrevious(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := logger.Replace(zap.New(core))
	logger.Info(context.Background(), "captured")
	restore()
	logger.Info(context.Background(), "not captured")

	require.Len(t, logs.All(), 1)
	require.Equal(t, "captured", logs.All()[0].Message)
}
