// internal/server/server_test.go
//
// server 層的整合測試：以 fiber 的 app.Test 模擬完整 HTTP 請求流程，
// 驗證錯誤代碼映射，以及持久化鉤子是否在每次成功變更後觸發。
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/bank"
	"ledger/internal/storage"
)

func newTestApp(t *testing.T, opts ...Option) (*fiber.App, *storage.Memory) {
	t.Helper()
	m := storage.NewMemory()
	e := bank.NewEngine(m, m)
	s := NewServer(e, m, bank.NewHistory(m), bank.NewPresets(m), opts...)
	return s.Router(), m
}

// doJSON 送出 JSON 請求並驗證狀態碼；out 非 nil 時解析回應。
func doJSON(t *testing.T, app *fiber.App, method, url string, body any, wantCode int, out any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	require.Equal(t, wantCode, resp.StatusCode, "%s %s: %s", method, url, raw)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out))
	}
}

func errCode(t *testing.T, app *fiber.App, method, url string, body any, wantCode int) string {
	t.Helper()
	var e errorBody
	doJSON(t, app, method, url, body, wantCode, &e)
	return e.Code
}

// TestHTTPFlowAndPersistHook 驗證帳戶建立、轉帳、BPAY、管理員入金、查詢紀錄與 persist 鉤子。
func TestHTTPFlowAndPersistHook(t *testing.T) {
	var persistCalls int32
	app, _ := newTestApp(t, WithPersist(func() error {
		atomic.AddInt32(&persistCalls, 1)
		return nil
	}))

	var a, b bank.Account
	doJSON(t, app, "POST", "/accounts", map[string]any{"owner": "alice", "type": "personal", "opening_balance": "100"}, 201, &a)
	doJSON(t, app, "POST", "/api/v1/accounts", map[string]any{"owner": "bob", "type": "business", "opening_balance": 0}, 201, &b)

	var tx bank.Transaction
	doJSON(t, app, "POST", "/transfers", map[string]any{"from": a.ID, "to": b.ID, "amount": "30.50", "description": "rent"}, 201, &tx)
	assert.Equal(t, bank.TypeTransferFunds, tx.TransactionType)
	assert.Equal(t, "alice - Personal Account", tx.FromAccountUsername)
	assert.Equal(t, "bob - Business Account", tx.ToAccountUsername)
	assert.NotEmpty(t, tx.ID)

	doJSON(t, app, "POST", "/transfers", map[string]any{"from": b.ID, "to": a.ID, "amount": "0.50", "kind": "pay_anyone"}, 201, &tx)
	assert.Equal(t, "alice", tx.ToAccountUsername)

	doJSON(t, app, "POST", "/bpay", map[string]any{
		"from": a.ID, "biller_name": "PowerCo", "biller_code": "1234", "reference_number": "REF9",
		"amount": "20", "description": "March",
	}, 201, &tx)
	assert.Equal(t, "PowerCo", tx.ToAccountUsername)
	assert.Empty(t, tx.ToAccount)

	doJSON(t, app, "POST", "/admin/funds", map[string]any{"to": b.ID, "amount": "1000"}, 201, &tx)
	assert.Equal(t, "Admin Account", tx.FromAccountUsername)

	var got bank.Account
	doJSON(t, app, "GET", "/accounts/"+a.ID, nil, 200, &got)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("50")), got.Balance.String())
	doJSON(t, app, "GET", "/api/v1/accounts/"+b.ID, nil, 200, &got)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("1030")), got.Balance.String())

	var hist []bank.Transaction
	doJSON(t, app, "GET", "/accounts/"+a.ID+"/transactions", nil, 200, &hist)
	require.Len(t, hist, 3)
	var outflow decimal.Decimal
	for _, h := range hist {
		if h.Amount.IsNegative() {
			outflow = outflow.Add(h.Amount)
		}
	}
	assert.True(t, outflow.Equal(decimal.RequireFromString("-50.50")), outflow.String())

	// create×2 + transfer×2 + bpay + add funds
	assert.Equal(t, int32(6), atomic.LoadInt32(&persistCalls))

	// 失敗不觸發 persist。
	assert.Equal(t, "insufficient_funds", errCode(t, app, "POST", "/transfers", map[string]any{"from": a.ID, "to": b.ID, "amount": "999"}, 409))
	assert.Equal(t, int32(6), atomic.LoadInt32(&persistCalls))
}

func TestHTTPErrorMapping(t *testing.T) {
	app, m := newTestApp(t)
	a, err := m.CreateAccount(context.Background(), "alice", bank.AccountPersonal, decimal.NewFromInt(10))
	require.NoError(t, err)
	b, err := m.CreateAccount(context.Background(), "bob", bank.AccountPersonal, decimal.Zero)
	require.NoError(t, err)

	cases := []struct {
		name string
		url  string
		body map[string]any
		code int
		kind string
	}{
		{"zero", "/transfers", map[string]any{"from": a.ID, "to": b.ID, "amount": "0"}, 400, "zero_amount"},
		{"negative", "/transfers", map[string]any{"from": a.ID, "to": b.ID, "amount": "-1"}, 400, "negative_amount"},
		{"same account", "/transfers", map[string]any{"from": a.ID, "to": a.ID, "amount": "1"}, 400, "same_account"},
		{"unknown kind", "/transfers", map[string]any{"from": a.ID, "to": b.ID, "amount": "1", "kind": "wire"}, 400, "unsupported_operation"},
		{"missing source", "/transfers", map[string]any{"from": "nope", "to": b.ID, "amount": "1"}, 404, "not_found"},
		{"bpay zero", "/bpay", map[string]any{"from": a.ID, "biller_name": "X", "amount": "0"}, 400, "zero_amount"},
		{"add funds zero", "/admin/funds", map[string]any{"to": a.ID, "amount": "0"}, 400, "zero_amount"},
		{"admin account type", "/accounts", map[string]any{"owner": "root", "type": "admin"}, 400, "unsupported_operation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, errCode(t, app, "POST", tc.url, tc.body, tc.code))
		})
	}

	assert.Equal(t, "not_found", errCode(t, app, "GET", "/accounts/nope", nil, 404))
	assert.Equal(t, "not_found", errCode(t, app, "GET", "/accounts/nope/transactions", nil, 404))

	req := httptest.NewRequest("POST", "/transfers", strings.NewReader("{bad json}"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	// 以上失敗不得改變餘額。
	got, err := m.ReadAccount(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(10)))
}

func TestStatusOf(t *testing.T) {
	persistence := &bank.PersistenceError{Type: bank.TypeBPAY, Err: errors.New("disk full")}
	compensation := &bank.CompensationError{Type: bank.TypePayAnyone, Step: "credit destination", Cause: bank.ErrConcurrentModification}

	cases := []struct {
		err  error
		code int
	}{
		{persistence, http.StatusBadGateway},
		{compensation, http.StatusInternalServerError},
		{bank.ErrConcurrentModification, http.StatusConflict},
		{fmt.Errorf("lock accounts: %w", bank.ErrAccountBusy), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, _ := statusOf(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestHTTPPresets(t *testing.T) {
	var persistCalls int32
	app, m := newTestApp(t, WithPersist(func() error {
		atomic.AddInt32(&persistCalls, 1)
		return errors.New("persist failures are only logged")
	}))
	issued := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m.AddPresets(
		bank.TransactionPreset{ID: "1", Recipient: "Employer", Amount: decimal.RequireFromString("-1200"), DateIssued: issued},
		bank.TransactionPreset{ID: "2", Recipient: "Landlord", Amount: decimal.RequireFromString("450"), DateIssued: issued},
	)
	a, err := m.CreateAccount(context.Background(), "alice", bank.AccountPersonal, decimal.Zero)
	require.NoError(t, err)

	var total struct {
		Total decimal.Decimal `json:"total"`
	}
	doJSON(t, app, "GET", "/presets/total", nil, 200, &total)
	assert.True(t, total.Total.Equal(decimal.RequireFromString("-750")))

	var txs []bank.Transaction
	doJSON(t, app, "GET", "/api/v1/presets/transactions", nil, 200, &txs)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.True(t, tx.Synthetic)
		assert.True(t, tx.Amount.IsPositive())
	}

	var tx bank.Transaction
	doJSON(t, app, "POST", "/presets/record", map[string]any{
		"preset": "Employer", "owner": a.ID, "amount": "1200", "date_issued": issued,
	}, 201, &tx)
	assert.Equal(t, a.ID, tx.ToAccount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&persistCalls))

	// 預設交易只寫紀錄，不動餘額。
	got, err := m.ReadAccount(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero())
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := storage.NewMemory()
	e := bank.NewEngine(m, m, bank.WithMetrics(bank.NewMetrics(reg)))
	app := NewServer(e, m, bank.NewHistory(m), bank.NewPresets(m), WithGatherer(reg)).Router()

	var health map[string]string
	doJSON(t, app, "GET", "/api/v1/health", nil, 200, &health)
	assert.Equal(t, "ok", health["status"])

	a, _ := m.CreateAccount(context.Background(), "alice", bank.AccountPersonal, decimal.NewFromInt(5))
	doJSON(t, app, "POST", "/admin/funds", map[string]any{"to": a.ID, "amount": "5"}, 201, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "ledger_operations_total")
}
