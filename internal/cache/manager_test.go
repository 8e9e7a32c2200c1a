package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := zap.NewNop()
	manager, err := NewManager(Config{DefaultTTL: time.Minute, SweepInterval: time.Hour}, logger)
	require.NoError(t, err)
	return manager
}

func TestNewManager(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	assert.NotNil(t, manager)
	assert.NotNil(t, manager.logger)
}

func TestManager_SetAndGet(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	ctx := context.Background()

	err := manager.Set(ctx, "test-key", "test-value", time.Minute)
	require.NoError(t, err)

	value, err := manager.Get(ctx, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)
}

func TestManager_GetNonExistent(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	value, err := manager.Get(context.Background(), "non-existent")
	assert.Error(t, err)
	assert.Equal(t, "", value)
}

func TestManager_Delete(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	ctx := context.Background()
	require.NoError(t, manager.Set(ctx, "test-key", "test-value", time.Minute))
	require.NoError(t, manager.Delete(ctx, "test-key"))

	_, err := manager.Get(ctx, "test-key")
	assert.Error(t, err)
}

func TestManager_SetJSON(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	ctx := context.Background()
	type TestData struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	data := TestData{Name: "test", Value: 123}

	require.NoError(t, manager.SetJSON(ctx, "test-json", data, time.Minute))

	var result TestData
	require.NoError(t, manager.GetJSON(ctx, "test-json", &result))
	assert.Equal(t, data, result)
}

func TestManager_GetJSONNonExistent(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	var result map[string]any
	err := manager.GetJSON(context.Background(), "non-existent", &result)
	assert.Error(t, err)
}

func TestManager_SetJSONInvalidData(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	invalidData := make(chan int)
	err := manager.SetJSON(context.Background(), "test-invalid", invalidData, time.Minute)
	assert.Error(t, err)
}

func TestManager_GetJSONInvalidJSON(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	ctx := context.Background()
	require.NoError(t, manager.Set(ctx, "test-invalid-json", "not a json", time.Minute))

	var result map[string]any
	err := manager.GetJSON(ctx, "test-invalid-json", &result)
	assert.Error(t, err)
}

func TestManager_TTL(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	ctx := context.Background()
	require.NoError(t, manager.Set(ctx, "test-ttl", "value", 50*time.Millisecond))

	value, err := manager.Get(ctx, "test-ttl")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	time.Sleep(100 * time.Millisecond)

	_, err = manager.Get(ctx, "test-ttl")
	assert.Error(t, err)
}

func TestManager_Expire(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	ctx := context.Background()
	require.NoError(t, manager.Set(ctx, "test-expire", "value", time.Minute))
	require.NoError(t, manager.Expire(ctx, "test-expire", 50*time.Millisecond))

	time.Sleep(100 * time.Millisecond)
	_, err := manager.Get(ctx, "test-expire")
	assert.Error(t, err)
}

func TestManager_ConcurrentOperations(t *testing.T) {
	manager := newTestManager(t)
	defer manager.Close()

	ctx := context.Background()
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			key := "concurrent-" + string(rune('0'+id))
			assert.NoError(t, manager.Set(ctx, key, "value", time.Minute))
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	for i := 0; i < 10; i++ {
		go func(id int) {
			key := "concurrent-" + string(rune('0'+id))
			value, err := manager.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, "value", value)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
