package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/bank"
	"ledger/internal/storage"
)

func newLocker(t *testing.T, opts Options) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l, err := NewRedisLocker(client, opts, nil)
	require.NoError(t, err)
	return l, mr
}

func TestNewRedisLockerValidation(t *testing.T) {
	_, err := NewRedisLocker(nil, DefaultOptions(), nil)
	assert.ErrorIs(t, err, ErrNilClient)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, err = NewRedisLocker(client, Options{}, nil)
	assert.Error(t, err)
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	l, mr := newLocker(t, DefaultOptions())
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "B", "A", "A")
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"A"))
	assert.True(t, mr.Exists(keyPrefix+"B"))

	require.NoError(t, unlock())
	assert.False(t, mr.Exists(keyPrefix+"A"))
	assert.False(t, mr.Exists(keyPrefix+"B"))
}

// TestRedisLockerContended 驗證已被持有的鎖在嘗試次數用盡後失敗，且不殘留部分取得的鎖。
func TestRedisLockerContended(t *testing.T) {
	l, mr := newLocker(t, Options{Expiry: 5 * time.Second, Tries: 2, RetryDelay: 5 * time.Millisecond})
	ctx := context.Background()

	unlockB, err := l.Lock(ctx, "B")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "A", "B")
	require.ErrorIs(t, err, bank.ErrAccountBusy)
	assert.False(t, mr.Exists(keyPrefix+"A"), "partially acquired lock is released")

	require.NoError(t, unlockB())
	unlock, err := l.Lock(ctx, "A", "B")
	require.NoError(t, err)
	require.NoError(t, unlock())
}

// TestRedisLockerSerializesEngine 以 Redis 鎖執行引擎的雙向併發轉帳，驗證資金守恆。
func TestRedisLockerSerializesEngine(t *testing.T) {
	l, _ := newLocker(t, Options{Expiry: 5 * time.Second, Tries: 1000, RetryDelay: 2 * time.Millisecond})
	ctx := context.Background()
	m := storage.NewMemory()
	a, err := m.CreateAccount(ctx, "alice", bank.AccountPersonal, decimal.NewFromInt(100))
	require.NoError(t, err)
	b, err := m.CreateAccount(ctx, "bob", bank.AccountPersonal, decimal.NewFromInt(100))
	require.NoError(t, err)
	e := bank.NewEngine(m, m, bank.WithLocker(l))

	var ok int32
	var wg sync.WaitGroup
	move := func(fromID, toID string) {
		defer wg.Done()
		for {
			from, _ := m.ReadAccount(ctx, fromID)
			to, _ := m.ReadAccount(ctx, toID)
			_, err := e.PayAnyone(ctx, from, to, decimal.NewFromInt(1), "ping")
			if err == nil {
				atomic.AddInt32(&ok, 1)
				return
			}
			if !errors.Is(err, bank.ErrConcurrentModification) && !assert.ErrorIs(t, err, bank.ErrAccountBusy) {
				return
			}
		}
	}
	const n = 10
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go move(a.ID, b.ID)
		go move(b.ID, a.ID)
	}
	wg.Wait()

	a, _ = m.ReadAccount(ctx, a.ID)
	b, _ = m.ReadAccount(ctx, b.ID)
	assert.True(t, a.Balance.Add(b.Balance).Equal(decimal.NewFromInt(200)))
	assert.Equal(t, int32(2*n), ok)
}
