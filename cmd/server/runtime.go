// cmd/server/runtime.go

// 本檔依設定組裝各模組：儲存層（記憶體或 PostgreSQL，外包熔斷器）、
// 帳戶鎖（行程內或 Redis）、指標、追蹤，以及交易引擎。

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"ledger/internal/bank"
	"ledger/internal/config"
	"ledger/internal/lock"
	"ledger/internal/server"
	"ledger/internal/storage"
)

// runtime 為組裝完成的服務元件。
type runtime struct {
	engine   *bank.Engine
	history  *bank.History
	presets  *bank.Presets
	accounts server.Registry
	store    *storage.Guarded
	metrics  *prometheus.Registry
	// persist 在記憶體模式下寫入 JSON 快照；PostgreSQL 模式為 nil。
	persist func() error
	closers []func()
}

// openRuntime 依設定建立所有元件；呼叫端須在結束時呼叫 close。
func openRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *runtime, err error) {
	rt := &runtime{metrics: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	rt.closers = append(rt.closers, func() { _ = tp.Shutdown(context.Background()) })

	var backend storage.Backend
	if cfg.DatabaseURL != "" {
		pg, err := storage.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		backend, rt.accounts = pg, pg
		logger.Info("using postgres store")
	} else {
		m := storage.NewMemory()
		snap, err := storage.LoadSnapshot(cfg.DataFile)
		switch {
		case err == nil:
			m.Restore(snap)
			logger.Info("snapshot restored", zap.String("file", cfg.DataFile), zap.Int("accounts", len(snap.Accounts)))
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("no snapshot, starting empty", zap.String("file", cfg.DataFile))
		default:
			return nil, err
		}
		backend, rt.accounts = m, m
		rt.persist = func() error { return storage.SaveSnapshot(cfg.DataFile, m.Snapshot()) }
	}
	rt.store = storage.NewGuarded(backend, storage.DefaultBreakerConfig(), logger)

	var locker bank.Locker = bank.NewKeyedLocker()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		opts := lock.DefaultOptions()
		opts.Expiry = cfg.LockTTL
		rl, err := lock.NewRedisLocker(client, opts, logger)
		if err != nil {
			return nil, err
		}
		locker = rl
		logger.Info("using redis account locks", zap.String("addr", cfg.RedisAddr))
	}

	rt.engine = bank.NewEngine(rt.store, rt.store,
		bank.WithCompensationStore(backend),
		bank.WithLogger(logger),
		bank.WithLocker(locker),
		bank.WithMetrics(bank.NewMetrics(rt.metrics)))
	rt.history = bank.NewHistory(rt.store)
	rt.presets = bank.NewPresets(rt.store)
	return rt, nil
}

// server 建立 HTTP 層。
func (rt *runtime) server(logger *zap.Logger) *server.Server {
	opts := []server.Option{server.WithLogger(logger), server.WithGatherer(rt.metrics)}
	if rt.persist != nil {
		opts = append(opts, server.WithPersist(rt.persist))
	}
	return server.NewServer(rt.engine, rt.accounts, rt.history, rt.presets, opts...)
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
