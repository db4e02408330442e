// internal/bank/store.go
//
// 引擎透過以下介面存取儲存層；實作位於 internal/storage。

package bank

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountStore 讀寫單一帳戶餘額。
type AccountStore interface {
	// ReadAccount 依 ID 讀取帳戶；不存在時回傳 ErrNotFound。
	ReadAccount(ctx context.Context, id string) (Account, error)

	// WriteAccountBalance 為條件式寫入：僅在目前餘額等於 expected 時改為 next，
	// 否則回傳 ErrConcurrentModification；帳戶不存在時回傳 ErrNotFound。
	WriteAccountBalance(ctx context.Context, id string, expected, next decimal.Decimal) error
}

// TransactionLog 為只可附加的交易紀錄。
type TransactionLog interface {
	// InsertTransaction 寫入一筆紀錄並回傳儲存層產生的 ID。
	InsertTransaction(ctx context.Context, tx Transaction) (string, error)

	// QueryTransactionsByAccount 回傳 from 或 to 為該帳戶的所有紀錄，依 PaidOn 由新到舊排序。
	QueryTransactionsByAccount(ctx context.Context, accountID string) ([]Transaction, error)
}

// PresetSource 提供講師設定的預設交易。
type PresetSource interface {
	ListPresets(ctx context.Context) ([]TransactionPreset, error)
}
