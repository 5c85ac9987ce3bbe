package utils_test

import (
	"sync"
	"testing"
	"time"

	"creative-backend/internal/core/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holdFor = 100 * time.Millisecond

func holdKeys(t *testing.T, m *utils.MutexMap[string], keys ...string) time.Duration {
	var wg sync.WaitGroup
	start := time.Now()
	for _, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Lock(key); err != nil {
				t.Errorf("error locking key %s: %v", key, err)
				return
			}
			time.Sleep(holdFor)
			if err := m.Unlock(key); err != nil {
				t.Errorf("error unlocking key %s: %v", key, err)
			}
		}()
	}
	wg.Wait()
	return time.Since(start)
}

func TestMutexMap_RunSequentiallyWhenSameKey(t *testing.T) {
	m := utils.NewMutexMap[string](10)

	elapsed := holdKeys(t, m, "test", "test")
	assert.GreaterOrEqual(t, elapsed, 2*holdFor)
	assert.Equal(t, 0, m.Len())
}

func TestMutexMap_RunConcurrentlyWhenDifferentKeys(t *testing.T) {
	m := utils.NewMutexMap[string](10)

	elapsed := holdKeys(t, m, "key1", "key2")
	assert.Less(t, elapsed, 2*holdFor)
}

func TestMutexMap_ErrorWhenMaxSizeReached(t *testing.T) {
	m := utils.NewMutexMap[uuid.UUID](1)
	first, second := uuid.New(), uuid.New()

	require.NoError(t, m.Lock(first))
	assert.ErrorIs(t, m.Lock(second), utils.ErrMutexMapFull)

	require.NoError(t, m.Unlock(first))
	require.NoError(t, m.Lock(second))
	require.NoError(t, m.Unlock(second))
}

func TestMutexMap_UnlockErrorWhenKeyNotFound(t *testing.T) {
	m := utils.NewMutexMap[string](10)
	assert.Error(t, m.Unlock("test"))
}
