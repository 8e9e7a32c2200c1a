package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunProxyStatus_EmptyWhenNoHandles(t *testing.T) {
	t.Setenv("FLM_DATA_DIR", t.TempDir())
	t.Setenv("FLM_DISABLE_KEYRING", "1")
	logger := initLogger()

	require.NoError(t, runProxyStatus(nil, logger))
}

func TestRunProxyStop_NoMatchingHandleIsUserError(t *testing.T) {
	t.Setenv("FLM_DATA_DIR", t.TempDir())
	t.Setenv("FLM_DISABLE_KEYRING", "1")
	logger := initLogger()

	err := runProxyStop([]string{"--port", "59999"}, logger)
	require.Error(t, err)
}

func TestRunProxyReload_NoMatchingHandleIsUserError(t *testing.T) {
	t.Setenv("FLM_DATA_DIR", t.TempDir())
	t.Setenv("FLM_DISABLE_KEYRING", "1")
	logger := initLogger()

	err := runProxyReload([]string{"--all"}, logger)
	require.Error(t, err)
}

func TestRunProxyStart_InvalidModeRejectedBeforeDaemonizing(t *testing.T) {
	t.Setenv("FLM_DATA_DIR", t.TempDir())
	t.Setenv("FLM_DISABLE_KEYRING", "1")
	logger := initLogger()

	err := runProxyStart([]string{"--mode", "not-a-real-mode"}, logger)
	require.Error(t, err)
}

func TestRunProxyStart_AcmeWithoutDomainRejected(t *testing.T) {
	t.Setenv("FLM_DATA_DIR", t.TempDir())
	t.Setenv("FLM_DISABLE_KEYRING", "1")
	logger := initLogger()

	err := runProxyStart([]string{"--mode", "https-acme"}, logger)
	require.Error(t, err)
}
