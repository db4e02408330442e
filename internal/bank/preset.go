// internal/bank/preset.go
//
// 將講師設定的預設交易轉為僅供展示的 Transaction。此路徑不讀寫任何帳戶。

package bank

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// PresetDescription 為所有預設交易的固定描述。
	PresetDescription = "A 'Preset Transaction' set by your instructor."
	presetViewer      = "user"
)

// PresetTransactionID 回傳預設交易的識別碼 "<id>-<recipient>"。
func PresetTransactionID(p TransactionPreset) string {
	return p.ID + "-" + p.Recipient
}

// SynthesizePreset 將單筆預設交易轉為展示用紀錄。
// Amount < 0：收款對象付款給使用者；Amount >= 0：使用者付款給收款對象。
func SynthesizePreset(p TransactionPreset) Transaction {
	tx := Transaction{
		ID:              PresetTransactionID(p),
		Description:     PresetDescription,
		Amount:          p.Amount.Abs(),
		PaidOn:          p.DateIssued,
		TransactionType: TypePayAnyone,
		Synthetic:       true,
	}
	if p.Amount.IsNegative() {
		tx.FromAccountUsername = p.Recipient
		tx.ToAccountUsername = presetViewer
	} else {
		tx.FromAccountUsername = presetViewer
		tx.ToAccountUsername = p.Recipient
	}
	return tx
}

// SynthesizePresets 依序轉換所有預設交易。
// 兩筆預設交易推導出相同識別碼時回傳 ErrDuplicatePresetID。
func SynthesizePresets(presets []TransactionPreset) ([]Transaction, error) {
	out := make([]Transaction, 0, len(presets))
	seen := make(map[string]struct{}, len(presets))
	for _, p := range presets {
		tx := SynthesizePreset(p)
		if _, dup := seen[tx.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePresetID, tx.ID)
		}
		seen[tx.ID] = struct{}{}
		out = append(out, tx)
	}
	return out, nil
}

// TotalPresetAmount 回傳所有預設交易金額（含正負號）的總和。
func TotalPresetAmount(presets []TransactionPreset) decimal.Decimal {
	total := decimal.Zero
	for _, p := range presets {
		total = total.Add(p.Amount)
	}
	return total
}

// Presets 從 PresetSource 讀取並轉換預設交易。
type Presets struct {
	source PresetSource
}

// NewPresets 建立預設交易服務。
func NewPresets(source PresetSource) *Presets {
	return &Presets{source: source}
}

// Transactions 回傳展示用的預設交易紀錄。
func (p *Presets) Transactions(ctx context.Context) ([]Transaction, error) {
	presets, err := p.source.ListPresets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	return SynthesizePresets(presets)
}

// Total 回傳預設交易金額總和。
func (p *Presets) Total(ctx context.Context) (decimal.Decimal, error) {
	presets, err := p.source.ListPresets(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list presets: %w", err)
	}
	return TotalPresetAmount(presets), nil
}
