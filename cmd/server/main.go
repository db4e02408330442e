// cmd/server/main.go

// 帳本服務進入點。提供兩個子命令：
//   - serve：啟動 HTTP 伺服器；記憶體模式下啟動時載入、結束時保存 JSON 快照。
//   - history <account-id>：輸出指定帳戶的交易紀錄（金額以該帳戶視角正負號呈現）。

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ledger/internal/config"
	"ledger/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd 建立根命令；旗標只在明確指定時覆寫環境變數設定。
func newRootCmd() *cobra.Command {
	var flags config.Config

	root := &cobra.Command{
		Use:           "ledger",
		Short:         "Ledger transfer engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.Addr, "addr", "", "HTTP listen address (env "+config.EnvAddr+")")
	pf.StringVar(&flags.DataFile, "data-file", "", "JSON snapshot file for the in-memory store (env "+config.EnvDataFile+")")
	pf.StringVar(&flags.DatabaseURL, "database-url", "", "PostgreSQL connection URL (env "+config.EnvDatabaseURL+")")
	pf.StringVar(&flags.RedisAddr, "redis-addr", "", "Redis address for distributed account locks (env "+config.EnvRedisAddr+")")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level (env "+config.EnvLogLevel+")")
	pf.DurationVar(&flags.LockTTL, "lock-ttl", 0, "account lock expiry (env "+config.EnvLockTTL+")")

	load := func(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
		cfg, err := config.Load()
		if err != nil {
			return cfg, nil, err
		}
		set := cmd.Flags().Changed
		if set("addr") {
			cfg.Addr = flags.Addr
		}
		if set("data-file") {
			cfg.DataFile = flags.DataFile
		}
		if set("database-url") {
			cfg.DatabaseURL = flags.DatabaseURL
		}
		if set("redis-addr") {
			cfg.RedisAddr = flags.RedisAddr
		}
		if set("log-level") {
			cfg.LogLevel = flags.LogLevel
		}
		if set("lock-ttl") {
			cfg.LockTTL = flags.LockTTL
		}
		if err := cfg.Validate(); err != nil {
			return cfg, nil, err
		}
		logger, err := logging.New(cfg.LogLevel)
		return cfg, logger, err
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, logger, err := load(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = logger.Sync() }()
				return serve(cmd.Context(), cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "history <account-id>",
			Short: "Print the transaction history of an account",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := load(cmd)
				if err != nil {
					return err
				}
				defer func() { _ = logger.Sync() }()

				ctx := cmd.Context()
				rt, err := openRuntime(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer rt.close()

				if _, err := rt.accounts.ReadAccount(ctx, args[0]); err != nil {
					return err
				}
				txs, err := rt.history.TransactionsForAccount(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(txs)
			},
		},
	)
	return root
}

// serve 啟動 HTTP 伺服器，收到 SIGINT/SIGTERM 時關閉並保存狀態。
func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	app := rt.server(logger).Router()
	errCh := make(chan error, 1)
	go func() { errCh <- app.Listen(cfg.Addr) }()
	logger.Info("ledger server running", zap.String("addr", cfg.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var errs []error
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown: %w", err))
	}
	if rt.persist != nil {
		if err := rt.persist(); err != nil {
			errs = append(errs, fmt.Errorf("persist on exit: %w", err))
		}
	}
	logger.Info("ledger server stopped")
	return errors.Join(errs...)
}
