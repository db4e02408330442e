// internal/storage/guarded.go
//
// Guarded 以熔斷器包裝任一儲存層：連續 I/O 失敗後暫停呼叫，快速回傳錯誤。
// 帳戶不存在與條件式寫入衝突屬於正常的領域結果，不計入失敗次數。
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"ledger/internal/bank"
)

// Backend 為 Guarded 可包裝的儲存層。
type Backend interface {
	bank.AccountStore
	bank.TransactionLog
	bank.PresetSource
}

// BreakerConfig 設定熔斷器。
type BreakerConfig struct {
	Name string
	// ConsecutiveFailures 達到此值時開啟熔斷器。
	ConsecutiveFailures uint32
	// OpenTimeout 為開啟狀態持續時間，之後進入半開狀態試探。
	OpenTimeout time.Duration
}

// DefaultBreakerConfig 回傳預設設定。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Name: "ledger-store", ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// Guarded 實作 Backend。
type Guarded struct {
	next    Backend
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded 以熔斷器包裝 next。
func NewGuarded(next Backend, cfg BreakerConfig, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, bank.ErrNotFound) || errors.Is(err, bank.ErrConcurrentModification)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Guarded{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

// State 回傳熔斷器目前狀態。
func (g *Guarded) State() gobreaker.State { return g.breaker.State() }

func (g *Guarded) ReadAccount(ctx context.Context, id string) (bank.Account, error) {
	return call(g, func() (bank.Account, error) { return g.next.ReadAccount(ctx, id) })
}

func (g *Guarded) WriteAccountBalance(ctx context.Context, id string, expected, next decimal.Decimal) error {
	_, err := call(g, func() (struct{}, error) {
		return struct{}{}, g.next.WriteAccountBalance(ctx, id, expected, next)
	})
	return err
}

func (g *Guarded) InsertTransaction(ctx context.Context, tx bank.Transaction) (string, error) {
	return call(g, func() (string, error) { return g.next.InsertTransaction(ctx, tx) })
}

func (g *Guarded) QueryTransactionsByAccount(ctx context.Context, accountID string) ([]bank.Transaction, error) {
	return call(g, func() ([]bank.Transaction, error) { return g.next.QueryTransactionsByAccount(ctx, accountID) })
}

func (g *Guarded) ListPresets(ctx context.Context) ([]bank.TransactionPreset, error) {
	return call(g, func() ([]bank.TransactionPreset, error) { return g.next.ListPresets(ctx) })
}

func call[T any](g *Guarded, fn func() (T, error)) (T, error) {
	v, err := g.breaker.Execute(func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
