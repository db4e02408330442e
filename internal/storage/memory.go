// internal/storage/memory.go

// Memory 為行程內的儲存層實作，同時滿足 bank.AccountStore、bank.TransactionLog 與 bank.PresetSource。
// 以單一互斥鎖序列化所有讀寫；可匯出/還原 JSON 快照以便重啟後延續狀態。
package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger/internal/bank"
)

// Memory 為記憶體儲存層。
// - mu：序列化所有讀寫。
// - accts：帳戶索引表（ID → Account）。
// - txs：依寫入順序保存的交易紀錄，只會附加。
type Memory struct {
	mu      sync.Mutex
	accts   map[string]bank.Account
	txs     []bank.Transaction
	presets []bank.TransactionPreset
}

// NewMemory 建立空白的記憶體儲存層。
func NewMemory() *Memory {
	return &Memory{accts: make(map[string]bank.Account)}
}

// CreateAccount 以擁有者、類型與開戶餘額建立帳戶；開戶餘額不得為負。
// 管理員帳戶為合成身分，不可建立。
func (m *Memory) CreateAccount(_ context.Context, owner string, typ bank.AccountType, opening decimal.Decimal) (bank.Account, error) {
	if err := checkNewAccount(typ, opening); err != nil {
		return bank.Account{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a := bank.Account{
		ID:             uuid.NewString(),
		OwnerUsername:  owner,
		Balance:        opening,
		Type:           typ,
		OpeningBalance: opening,
	}
	m.accts[a.ID] = a
	return a, nil
}

// ReadAccount 依 ID 取得帳戶目前狀態。
func (m *Memory) ReadAccount(_ context.Context, id string) (bank.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accts[id]
	if !ok {
		return bank.Account{}, fmt.Errorf("%w: %s", bank.ErrNotFound, id)
	}
	return a, nil
}

// ListAccounts 回傳所有帳戶，依 ID 排序。
func (m *Memory) ListAccounts(context.Context) ([]bank.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bank.Account, 0, len(m.accts))
	for _, a := range m.accts {
		out = append(out, a)
	}
	slices.SortFunc(out, func(x, y bank.Account) int { return cmp.Compare(x.ID, y.ID) })
	return out, nil
}

// WriteAccountBalance 條件式寫入餘額。
func (m *Memory) WriteAccountBalance(_ context.Context, id string, expected, next decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accts[id]
	if !ok {
		return fmt.Errorf("%w: %s", bank.ErrNotFound, id)
	}
	if !a.Balance.Equal(expected) {
		return fmt.Errorf("%w: account %s is %s, expected %s", bank.ErrConcurrentModification, id, a.Balance, expected)
	}
	a.Balance = next
	m.accts[id] = a
	return nil
}

// InsertTransaction 附加一筆紀錄並回傳新產生的 ID。
func (m *Memory) InsertTransaction(_ context.Context, tx bank.Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx.ID = uuid.NewString()
	if tx.Biller != nil {
		b := *tx.Biller
		tx.Biller = &b
	}
	m.txs = append(m.txs, tx)
	return tx.ID, nil
}

// QueryTransactionsByAccount 回傳引用該帳戶的紀錄，依 PaidOn 由新到舊；同時間者後寫入的在前。
func (m *Memory) QueryTransactionsByAccount(_ context.Context, accountID string) ([]bank.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []bank.Transaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].Touches(accountID) {
			out = append(out, m.txs[i])
		}
	}
	slices.SortStableFunc(out, func(x, y bank.Transaction) int { return y.PaidOn.Compare(x.PaidOn) })
	return out, nil
}

// AddPresets 加入講師設定的預設交易。
func (m *Memory) AddPresets(presets ...bank.TransactionPreset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presets = append(m.presets, presets...)
}

// ListPresets 回傳預設交易的拷貝。
func (m *Memory) ListPresets(context.Context) ([]bank.TransactionPreset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.presets), nil
}

// Snapshot 匯出目前狀態。
func (m *Memory) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Meta:         Meta{Storage: "json_snapshot", Version: SnapshotVersion},
		Transactions: slices.Clone(m.txs),
		Presets:      slices.Clone(m.presets),
	}
	for _, a := range m.accts {
		s.Accounts = append(s.Accounts, a)
	}
	slices.SortFunc(s.Accounts, func(x, y bank.Account) int { return cmp.Compare(x.ID, y.ID) })
	return s
}

// Restore 以快照取代目前狀態。
func (m *Memory) Restore(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accts = make(map[string]bank.Account, len(s.Accounts))
	for _, a := range s.Accounts {
		m.accts[a.ID] = a
	}
	m.txs = slices.Clone(s.Transactions)
	m.presets = slices.Clone(s.Presets)
}

func checkNewAccount(typ bank.AccountType, opening decimal.Decimal) error {
	if !typ.Valid() || typ == bank.AccountAdmin {
		return fmt.Errorf("%w: account type %q", bank.ErrUnsupportedOperation, typ)
	}
	if opening.IsNegative() {
		return bank.ErrNegativeAmount
	}
	return nil
}
