// internal/config/config.go

// Package config 由環境變數讀取服務設定；命令列旗標可再覆寫。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// 環境變數名稱。
const (
	EnvAddr        = "LEDGER_ADDR"
	EnvDataFile    = "LEDGER_DATA_FILE"
	EnvDatabaseURL = "LEDGER_DATABASE_URL"
	EnvRedisAddr   = "LEDGER_REDIS_ADDR"
	EnvLogLevel    = "LEDGER_LOG_LEVEL"
	EnvLockTTL     = "LEDGER_LOCK_TTL"
)

// Config 服務設定。
// - DatabaseURL 非空時使用 PostgreSQL，否則使用記憶體儲存並寫入 DataFile 快照。
// - RedisAddr 非空時以 Redis 分散式鎖取代行程內鎖。
type Config struct {
	Addr        string
	DataFile    string
	DatabaseURL string
	RedisAddr   string
	LogLevel    string
	LockTTL     time.Duration
}

// Default 回傳預設值。
func Default() Config {
	return Config{
		Addr:     ":8080",
		DataFile: "data.json",
		LogLevel: "info",
		LockTTL:  10 * time.Second,
	}
}

// Load 以預設值為基礎，套用環境變數。
func Load() (Config, error) {
	c := Default()
	c.Addr = getenvOrDefault(EnvAddr, c.Addr)
	c.DataFile = getenvOrDefault(EnvDataFile, c.DataFile)
	c.DatabaseURL = getenvOrDefault(EnvDatabaseURL, c.DatabaseURL)
	c.RedisAddr = getenvOrDefault(EnvRedisAddr, c.RedisAddr)
	c.LogLevel = getenvOrDefault(EnvLogLevel, c.LogLevel)

	if v := getenvOrDefault(EnvLockTTL, ""); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvLockTTL, err)
		}
		c.LockTTL = ttl
	}
	return c, c.Validate()
}

// Validate 檢查設定是否可用。
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("lock ttl must be positive, got %s", c.LockTTL)
	}
	return nil
}

// getenvOrDefault 空字串視同未設定。
func getenvOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
