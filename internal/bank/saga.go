// internal/bank/saga.go
//
// 每個寫入操作都是一串「前進步驟 + 補償步驟」。
// runSaga 依序執行前進步驟；任一步失敗時，將已完成的步驟依反序補償，每個補償只嘗試一次。
// 失敗的餘額寫入若結果不明（例如寫入已提交但回應遺失），也會以條件式寫入嘗試寫回。

package bank

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type step struct {
	name string
	do   func(ctx context.Context) error
	// undo 為 nil 代表此步驟無需補償。
	undo func(ctx context.Context) error
	// revert 描述 undo 的內容，供 CompensationError 回報。
	revert Revert
	// logInsert 標記此步驟為交易紀錄寫入；其失敗回報為 PersistenceError。
	logInsert bool
}

// balanceStep 以條件式寫入將 id 的餘額由 from 改為 to；補償時經 undoStore 反向寫回。
func balanceStep(store, undoStore AccountStore, name, id string, from, to decimal.Decimal) step {
	return step{
		name: name,
		do: func(ctx context.Context) error {
			return store.WriteAccountBalance(ctx, id, from, to)
		},
		undo: func(ctx context.Context) error {
			return undoStore.WriteAccountBalance(ctx, id, to, from)
		},
		revert: Revert{AccountID: id, From: to, To: from},
	}
}

// insertStep 寫入交易紀錄，成功時把儲存層產生的 ID 填回 tx。
func insertStep(log TransactionLog, tx *Transaction) step {
	return step{
		name: "insert transaction",
		do: func(ctx context.Context) error {
			id, err := log.InsertTransaction(ctx, *tx)
			if err != nil {
				return err
			}
			tx.ID = id
			return nil
		},
		logInsert: true,
	}
}

// runSaga 執行步驟並在失敗時補償。回傳值：
//   - nil：全部成功（Committed）。
//   - *PersistenceError：紀錄寫入失敗且補償成功（RolledBack）。
//   - 原始錯誤：餘額寫入失敗且補償成功（RolledBack）。
//   - *CompensationError：任一補償失敗。
func runSaga(ctx context.Context, typ TransactionType, steps []step) error {
	done := make([]step, 0, len(steps))
	for _, s := range steps {
		if err := s.do(ctx); err != nil {
			return compensate(ctx, typ, s, err, done)
		}
		done = append(done, s)
	}
	return nil
}

// notApplied 回報條件式寫入的錯誤是否確定代表「沒有寫入」。
func notApplied(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrNotFound)
}

func compensate(ctx context.Context, typ TransactionType, failed step, cause error, done []step) error {
	// 呼叫端取消不應中斷補償。
	ctx = context.WithoutCancel(ctx)

	var (
		reverts []Revert
		broken  bool
	)
	// 失敗步驟的寫入可能已落地；寫回時若餘額不是本步驟寫入的值，代表沒有東西需要還原。
	if failed.undo != nil && !notApplied(cause) {
		r := failed.revert
		if err := failed.undo(ctx); err == nil {
			reverts = append(reverts, r)
		} else if !notApplied(err) {
			r.Err = err
			broken = true
			reverts = append(reverts, r)
		}
	}
	for i := len(done) - 1; i >= 0; i-- {
		s := done[i]
		if s.undo == nil {
			continue
		}
		r := s.revert
		r.Err = s.undo(ctx)
		if r.Err != nil {
			broken = true
		}
		reverts = append(reverts, r)
	}

	if broken {
		return &CompensationError{Type: typ, Step: failed.name, Cause: cause, Reverts: reverts}
	}
	if failed.logInsert {
		return &PersistenceError{Type: typ, Err: cause}
	}
	return cause
}
