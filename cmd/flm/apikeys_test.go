package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flm-run/flm-proxy/core"
)

func TestDispatchAPIKeys_CreateListRevoke(t *testing.T) {
	t.Setenv("FLM_DATA_DIR", t.TempDir())
	t.Setenv("FLM_DISABLE_KEYRING", "1")
	logger := initLogger()

	require.NoError(t, dispatchAPIKeys([]string{"create", "--label", "ci"}, logger))

	st, err := openStores(logger)
	require.NoError(t, err)
	keys, err := st.security.ListAPIKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	st.Close()

	require.NoError(t, dispatchAPIKeys([]string{"revoke", "--id", keys[0].ID}, logger))

	st2, err := openStores(logger)
	require.NoError(t, err)
	defer st2.Close()
	active, err := st2.security.ListActiveAPIKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 0)
}

func TestDispatchAPIKeys_RevokeMissingIDIsUserError(t *testing.T) {
	t.Setenv("FLM_DATA_DIR", t.TempDir())
	t.Setenv("FLM_DISABLE_KEYRING", "1")
	logger := initLogger()

	err := dispatchAPIKeys([]string{"revoke"}, logger)
	require.Error(t, err)
	e, ok := core.AsError(err)
	require.True(t, ok)
	assert.Equal(t, core.FamilyUser, e.Family)
	assert.Equal(t, 1, core.ExitCodeFor(err))
}
