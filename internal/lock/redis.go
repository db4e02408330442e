// internal/lock/redis.go

// Package lock 提供跨行程的帳戶鎖：以 Redis（RedLock 演算法）序列化多個實例對同一帳戶的寫入。
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ledger/internal/bank"
)

const keyPrefix = "ledger:account:"

var (
	// ErrNilClient 代表未提供 Redis client。
	ErrNilClient = errors.New("redis client is nil")
	// ErrLockNotHeld 代表釋放時鎖已過期或不屬於本實例。
	ErrLockNotHeld = errors.New("lock was not held or already expired")
)

// Options 設定取鎖行為。
type Options struct {
	// Expiry 為鎖自動過期時間，避免持有者當機造成死結。
	Expiry time.Duration
	// Tries 為取鎖嘗試次數。
	Tries int
	// RetryDelay 為兩次嘗試之間的等待時間。
	RetryDelay time.Duration
}

// DefaultOptions 回傳預設設定。
func DefaultOptions() Options {
	return Options{Expiry: 10 * time.Second, Tries: 32, RetryDelay: 50 * time.Millisecond}
}

// RedisLocker 實作 bank.Locker。
type RedisLocker struct {
	rs     *redsync.Redsync
	opts   Options
	logger *zap.Logger
}

var _ bank.Locker = (*RedisLocker)(nil)

// NewRedisLocker 建立分散式鎖。
func NewRedisLocker(client redis.UniversalClient, opts Options, logger *zap.Logger) (*RedisLocker, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Expiry <= 0 || opts.Tries < 1 || opts.RetryDelay < 0 {
		return nil, fmt.Errorf("invalid lock options: %+v", opts)
	}
	return &RedisLocker{rs: redsync.New(goredis.NewPool(client)), opts: opts, logger: logger}, nil
}

// Lock 依排序後的順序取得每個帳戶的鎖。任一失敗時釋放已取得的鎖。
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func() error, error) {
	var held []*redsync.Mutex

	release := func() error {
		var errs []error
		for i := len(held) - 1; i >= 0; i-- {
			ok, err := held[i].UnlockContext(context.WithoutCancel(ctx))
			switch {
			case err != nil:
				errs = append(errs, fmt.Errorf("unlock %s: %w", held[i].Name(), err))
			case !ok:
				errs = append(errs, fmt.Errorf("unlock %s: %w", held[i].Name(), ErrLockNotHeld))
			}
		}
		held = nil
		return errors.Join(errs...)
	}

	for _, k := range bank.LockOrder(keys...) {
		m := l.rs.NewMutex(keyPrefix+k,
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.opts.Tries),
			redsync.WithRetryDelay(l.opts.RetryDelay))
		if err := m.LockContext(ctx); err != nil {
			if uerr := release(); uerr != nil {
				l.logger.Warn("release partially acquired account locks", zap.Error(uerr))
			}
			if cerr := ctx.Err(); cerr != nil {
				return nil, fmt.Errorf("lock account %s: %w", k, cerr)
			}
			return nil, fmt.Errorf("lock account %s: %w: %w", k, bank.ErrAccountBusy, err)
		}
		held = append(held, m)
	}
	return release, nil
}
