// internal/bank/errors.go
//
// 本檔集中定義「領域錯誤（domain errors）」。
// 驗證類錯誤一律在任何寫入之前回傳；持久化與補償錯誤則攜帶足夠資訊供人工對帳。
// 上層 HTTP handler 會將這些錯誤轉換成適當的 HTTP 狀態碼。

package bank

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound 代表帳戶不存在。
	ErrNotFound = errors.New("account not found")

	// ErrZeroAmount 代表金額為 0。
	ErrZeroAmount = errors.New("transaction amount cannot be zero")

	// ErrNegativeAmount 代表金額為負。
	ErrNegativeAmount = errors.New("transaction amount cannot be negative")

	// ErrInsufficientFunds 代表扣款後餘額將為負。
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnsupportedOperation 代表不支援的交易種類或帳戶組合。
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrSameAccount 代表轉帳來源與目標帳戶相同。
	ErrSameAccount = errors.New("from and to are same")

	// ErrConcurrentModification 代表條件式寫入時發現餘額已被其他呼叫更新。
	ErrConcurrentModification = errors.New("account balance was modified concurrently")

	// ErrAccountBusy 代表帳戶鎖被其他呼叫持有，重試次數用盡仍無法取得。
	ErrAccountBusy = errors.New("account is locked by another operation")

	// ErrTransactionPersistence 代表餘額寫入成功後交易紀錄寫入失敗。
	ErrTransactionPersistence = errors.New("transaction persistence failed")

	// ErrCompensationFailure 代表補償寫入本身失敗，帳本處於需人工對帳的狀態。
	ErrCompensationFailure = errors.New("compensation failed")

	// ErrDuplicatePresetID 代表兩筆預設交易推導出相同的識別碼。
	ErrDuplicatePresetID = errors.New("duplicate preset transaction id")
)

// PersistenceError 包裝交易紀錄寫入失敗的原因。
// 回傳此錯誤時，補償寫入皆已成功完成。
type PersistenceError struct {
	Type TransactionType
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Type, ErrTransactionPersistence, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrTransactionPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Revert 描述一次補償寫入：將 AccountID 的餘額由 From 改回 To。
type Revert struct {
	AccountID string
	From      decimal.Decimal
	To        decimal.Decimal
	Err       error
}

func (r Revert) String() string {
	s := fmt.Sprintf("account=%s %s->%s", r.AccountID, r.From, r.To)
	if r.Err != nil {
		s += " failed: " + r.Err.Error()
	}
	return s
}

// CompensationError 為最嚴重的錯誤：至少一筆補償寫入失敗。
// Cause 為觸發補償的原始錯誤；Reverts 列出所有嘗試過的補償（含成功者）。
type CompensationError struct {
	Type    TransactionType
	Step    string
	Cause   error
	Reverts []Revert
}

func (e *CompensationError) Error() string {
	parts := make([]string, 0, len(e.Reverts))
	for _, r := range e.Reverts {
		parts = append(parts, r.String())
	}
	return fmt.Sprintf("%s: %s after step %q (%v): [%s]",
		e.Type, ErrCompensationFailure, e.Step, e.Cause, strings.Join(parts, "; "))
}

func (e *CompensationError) Is(target error) bool { return target == ErrCompensationFailure }

func (e *CompensationError) Unwrap() error { return e.Cause }

// Failed 回傳失敗的補償寫入。
func (e *CompensationError) Failed() []Revert {
	var out []Revert
	for _, r := range e.Reverts {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
