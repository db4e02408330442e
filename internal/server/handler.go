// internal/server/handler.go
//
// Package server
// ─────────────────────────────────────────────
// 提供 HTTP RESTful 介面，作為 bank 引擎的應用層。
// 每個 handler 僅負責：
//  1. 解析請求並讀取參與的帳戶
//  2. 呼叫引擎執行轉帳類操作
//  3. 回傳 JSON 回應，成功變更後呼叫 persist 鉤子
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ledger/internal/bank"
)

// Registry 為 server 建立與讀取帳戶所需的儲存能力。
type Registry interface {
	CreateAccount(ctx context.Context, owner string, typ bank.AccountType, opening decimal.Decimal) (bank.Account, error)
	ReadAccount(ctx context.Context, id string) (bank.Account, error)
}

// Server 為 HTTP 層核心結構。
// - engine：交易引擎。
// - accounts：帳戶建立與讀取。
// - persist：成功變更後呼叫的持久化鉤子，可為 nil。
type Server struct {
	engine   *bank.Engine
	history  *bank.History
	presets  *bank.Presets
	accounts Registry
	persist  func() error
	logger   *zap.Logger
	gatherer prometheus.Gatherer
}

// Option 調整 Server 設定。
type Option func(*Server)

// WithPersist 設定持久化鉤子。
func WithPersist(fn func() error) Option { return func(s *Server) { s.persist = fn } }

// WithLogger 設定 logger。
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGatherer 設定 /metrics 匯出的指標來源；未設定時不掛載 /metrics。
func WithGatherer(g prometheus.Gatherer) Option { return func(s *Server) { s.gatherer = g } }

// NewServer 建立新的 HTTP 伺服器。
func NewServer(engine *bank.Engine, accounts Registry, history *bank.History, presets *bank.Presets, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		history:  history,
		presets:  presets,
		accounts: accounts,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type createAccountRequest struct {
	Owner          string           `json:"owner"`
	Type           bank.AccountType `json:"type"`
	OpeningBalance decimal.Decimal  `json:"opening_balance"`
}

type transferRequest struct {
	From        string               `json:"from"`
	To          string               `json:"to"`
	Amount      decimal.Decimal      `json:"amount"`
	Description string               `json:"description"`
	Kind        bank.TransactionType `json:"kind"`
}

type bpayRequest struct {
	From            string          `json:"from"`
	BillerName      string          `json:"biller_name"`
	BillerCode      string          `json:"biller_code"`
	ReferenceNumber string          `json:"reference_number"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
}

type addFundsRequest struct {
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type recordPresetRequest struct {
	Preset      string          `json:"preset"`
	Owner       string          `json:"owner"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	DateIssued  time.Time       `json:"date_issued"`
}

// health：GET /health
func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// createAccount：POST /accounts
func (s *Server) createAccount(c *fiber.Ctx) error {
	var req createAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if req.Type == "" {
		req.Type = bank.AccountPersonal
	}
	a, err := s.accounts.CreateAccount(c.UserContext(), req.Owner, req.Type, req.OpeningBalance)
	if err != nil {
		return writeErr(c, err)
	}
	s.afterMutation("create_account")
	return writeJSON(c, fiber.StatusCreated, a)
}

// account：GET /accounts/:id
func (s *Server) account(c *fiber.Ctx) error {
	a, err := s.accounts.ReadAccount(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeErr(c, err)
	}
	return writeJSON(c, fiber.StatusOK, a)
}

// transactions：GET /accounts/:id/transactions，金額以該帳戶視角正負號呈現。
func (s *Server) transactions(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	if _, err := s.accounts.ReadAccount(ctx, id); err != nil {
		return writeErr(c, err)
	}
	txs, err := s.history.TransactionsForAccount(ctx, id)
	if err != nil {
		return writeErr(c, err)
	}
	return writeJSON(c, fiber.StatusOK, txs)
}

// transfer：POST /transfers
func (s *Server) transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	if req.Kind == "" {
		req.Kind = bank.TypeTransferFunds
	}
	ctx := c.UserContext()
	from, err := s.accounts.ReadAccount(ctx, req.From)
	if err != nil {
		return writeErr(c, err)
	}
	to, err := s.accounts.ReadAccount(ctx, req.To)
	if err != nil {
		return writeErr(c, err)
	}
	tx, err := s.engine.Transfer(ctx, from, to, req.Amount, req.Description, req.Kind)
	if err != nil {
		return writeErr(c, err)
	}
	s.afterMutation(string(req.Kind))
	return writeJSON(c, fiber.StatusCreated, tx)
}

// bpay：POST /bpay
func (s *Server) bpay(c *fiber.Ctx) error {
	var req bpayRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	ctx := c.UserContext()
	from, err := s.accounts.ReadAccount(ctx, req.From)
	if err != nil {
		return writeErr(c, err)
	}
	tx, err := s.engine.CreateBPAYTransaction(ctx, from, req.BillerName, req.BillerCode, req.ReferenceNumber, req.Amount, req.Description)
	if err != nil {
		return writeErr(c, err)
	}
	s.afterMutation(string(bank.TypeBPAY))
	return writeJSON(c, fiber.StatusCreated, tx)
}

// addFunds：POST /admin/funds
func (s *Server) addFunds(c *fiber.Ctx) error {
	var req addFundsRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	ctx := c.UserContext()
	to, err := s.accounts.ReadAccount(ctx, req.To)
	if err != nil {
		return writeErr(c, err)
	}
	tx, err := s.engine.AdminAddFunds(ctx, to, req.Amount, req.Description)
	if err != nil {
		return writeErr(c, err)
	}
	s.afterMutation(string(bank.TypeAddFunds))
	return writeJSON(c, fiber.StatusCreated, tx)
}

// presetTransactions：GET /presets/transactions
func (s *Server) presetTransactions(c *fiber.Ctx) error {
	txs, err := s.presets.Transactions(c.UserContext())
	if err != nil {
		return writeErr(c, err)
	}
	return writeJSON(c, fiber.StatusOK, txs)
}

// presetTotal：GET /presets/total
func (s *Server) presetTotal(c *fiber.Ctx) error {
	total, err := s.presets.Total(c.UserContext())
	if err != nil {
		return writeErr(c, err)
	}
	return writeJSON(c, fiber.StatusOK, fiber.Map{"total": total})
}

// recordPreset：POST /presets/record，將預設交易寫入帳戶紀錄（不異動餘額）。
func (s *Server) recordPreset(c *fiber.Ctx) error {
	var req recordPresetRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c, err)
	}
	ctx := c.UserContext()
	owner, err := s.accounts.ReadAccount(ctx, req.Owner)
	if err != nil {
		return writeErr(c, err)
	}
	if req.DateIssued.IsZero() {
		req.DateIssued = time.Now()
	}
	tx, err := s.engine.RecordPresetTransaction(ctx, req.Preset, owner, req.Amount, req.Description, req.DateIssued)
	if err != nil {
		return writeErr(c, err)
	}
	s.afterMutation("preset")
	return writeJSON(c, fiber.StatusCreated, tx)
}

// afterMutation 呼叫持久化鉤子；失敗只記錄，不影響已完成的回應。
func (s *Server) afterMutation(op string) {
	if s.persist == nil {
		return
	}
	if err := s.persist(); err != nil {
		s.logger.Warn("persist snapshot", zap.String("operation", op), zap.Error(err))
	}
}
