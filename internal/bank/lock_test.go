package bank

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, LockOrder("b", "", "a", "b"))
	assert.Empty(t, LockOrder())
}

// TestKeyedLockerSerializes 驗證同一鍵的臨界區不會重疊。
func TestKeyedLockerSerializes(t *testing.T) {
	l := NewKeyedLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "B", "A")
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.slots, "idle keys are removed")
}

// TestKeyedLockerContextCancel 驗證等待中的取鎖可被 ctx 取消，且不殘留已取得的鎖。
func TestKeyedLockerContextCancel(t *testing.T) {
	l := NewKeyedLocker()
	unlock, err := l.Lock(context.Background(), "B")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "A", "B")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// A 必須已被釋放。
	unlockA, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)
	require.NoError(t, unlockA())
	require.NoError(t, unlock())
	require.NoError(t, unlock(), "unlock is idempotent")
	assert.Empty(t, l.slots)
}
