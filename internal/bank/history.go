// internal/bank/history.go
//
// 交易歷史的讀取端：查詢帳戶紀錄並依觀看帳戶調整金額正負號。

package bank

import (
	"context"
	"fmt"
)

// NormalizeForViewpoint 回傳新的切片，將 FromAccount 等於 accountID 的紀錄金額取負，
// 讓觀看者看到流出為負、流入為正。FromAccount 未設定或不符者保持不變。
// 每份查詢結果只能套用一次；重複套用會再次反轉符號。
func NormalizeForViewpoint(txs []Transaction, accountID string) []Transaction {
	out := make([]Transaction, len(txs))
	for i, t := range txs {
		if t.FromAccount != "" && t.FromAccount == accountID {
			t.Amount = t.Amount.Neg()
		}
		out[i] = t
	}
	return out
}

// Latest 回傳最新一筆紀錄（查詢結果依 PaidOn 由新到舊排序）。
func Latest(txs []Transaction) (Transaction, bool) {
	if len(txs) == 0 {
		return Transaction{}, false
	}
	return txs[0], true
}

// History 為帳戶交易歷史的查詢服務。
type History struct {
	log TransactionLog
}

// NewHistory 建立查詢服務。
func NewHistory(log TransactionLog) *History {
	return &History{log: log}
}

// TransactionsForAccount 查詢 accountID 的紀錄（由新到舊）並以該帳戶為觀點正規化金額。
func (h *History) TransactionsForAccount(ctx context.Context, accountID string) ([]Transaction, error) {
	txs, err := h.log.QueryTransactionsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("query transactions for %s: %w", accountID, err)
	}
	return NormalizeForViewpoint(txs, accountID), nil
}
