package bank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizePresets(t *testing.T) {
	issued := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	presets := []TransactionPreset{
		{ID: "1", Recipient: "Employer", Amount: dec("-1200"), DateIssued: issued},
		{ID: "2", Recipient: "Landlord", Amount: dec("450.50"), DateIssued: issued},
		{ID: "3", Recipient: "Gym", Amount: dec("0"), DateIssued: issued},
	}

	txs, err := SynthesizePresets(presets)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	// 負數：收款對象付款給使用者。
	assert.Equal(t, "1-Employer", txs[0].ID)
	assert.Equal(t, "Employer", txs[0].FromAccountUsername)
	assert.Equal(t, "user", txs[0].ToAccountUsername)
	assert.True(t, txs[0].Amount.Equal(dec("1200")))

	// 非負數：使用者付款給收款對象。
	assert.Equal(t, "user", txs[1].FromAccountUsername)
	assert.Equal(t, "Landlord", txs[1].ToAccountUsername)
	assert.True(t, txs[1].Amount.Equal(dec("450.50")))
	assert.Equal(t, "user", txs[2].FromAccountUsername)

	for _, tx := range txs {
		assert.True(t, tx.Synthetic)
		assert.Empty(t, tx.FromAccount)
		assert.Empty(t, tx.ToAccount)
		assert.Equal(t, PresetDescription, tx.Description)
		assert.Equal(t, TypePayAnyone, tx.TransactionType)
		assert.Equal(t, issued, tx.PaidOn)
	}
}

func TestSynthesizePresetsDuplicateID(t *testing.T) {
	presets := []TransactionPreset{
		{ID: "1", Recipient: "Gym", Amount: dec("10")},
		{ID: "1", Recipient: "Gym", Amount: dec("20")},
	}
	_, err := SynthesizePresets(presets)
	require.ErrorIs(t, err, ErrDuplicatePresetID)
}

func TestPresetsService(t *testing.T) {
	s := newFakeStore()
	s.presets = []TransactionPreset{
		{ID: "1", Recipient: "Employer", Amount: dec("-1200")},
		{ID: "2", Recipient: "Landlord", Amount: dec("450.50")},
	}
	p := NewPresets(s)

	txs, err := p.Transactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	total, err := p.Total(context.Background())
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("-749.50")), "total=%s", total)
	assert.Zero(t, s.writes, "presets never touch balances")
}
