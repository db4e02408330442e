// internal/storage/model.go
//
// 定義 JSON 快照的序列化格式。
// Meta 保留版本與時間戳，便於格式升級或追蹤快照來源。
package storage

import (
	"time"

	"ledger/internal/bank"
)

// SnapshotVersion 為目前的快照格式版本。
const SnapshotVersion = 2

// Meta 為快照的中繼資料。
type Meta struct {
	Storage   string    `json:"storage"`        // 儲存類型，例如 "json_snapshot"
	Version   int       `json:"version"`        // 結構版本號
	Timestamp time.Time `json:"timestamp"`      // 快照建立時間
	Note      string    `json:"note,omitempty"` // 備註欄
}

// Snapshot 為 Memory 儲存層的完整快照：帳戶、交易紀錄與預設交易。
// Transactions 依寫入順序保存。
type Snapshot struct {
	Meta         Meta                     `json:"_meta"`
	Accounts     []bank.Account           `json:"accounts"`
	Transactions []bank.Transaction       `json:"transactions"`
	Presets      []bank.TransactionPreset `json:"presets,omitempty"`
}
