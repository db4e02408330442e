// internal/bank/bank.go

// Package bank 定義帳本轉帳引擎：轉帳、任意付款、BPAY 繳費與管理員撥款。
// 每個操作的流程為「驗證 → 取得帳戶鎖 → 依序寫入餘額與交易紀錄 → 失敗時補償」。
// 金額以 decimal.Decimal 表示，避免浮點誤差。
package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "ledger/internal/bank"

// 指標與 span 使用的操作名稱。Transfer 的 kind 來自外部輸入，未知值一律歸為 opUnsupported，
// 避免指標標籤無限增長。
const (
	opPreset      = "preset"
	opUnsupported = "unsupported"
)

// Engine 協調餘額寫入與交易紀錄寫入。
// Engine 本身不保存狀態；所有帳本資料都在 AccountStore 與 TransactionLog 中。
type Engine struct {
	accounts AccountStore
	// undo 為補償寫入使用的儲存層，預設與 accounts 相同。
	undo     AccountStore
	log      TransactionLog
	locker   Locker
	logger   *zap.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// Option 設定 Engine。
type Option func(*Engine)

// WithLogger 設定結構化日誌。
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLocker 以其他 Locker（例如 Redis 分散式鎖）取代行程內鎖。
func WithLocker(l Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithCompensationStore 讓補償寫入改走另一個 AccountStore，
// 例如繞過熔斷器的原始儲存層：紀錄寫入失敗而開啟的熔斷器不應阻擋餘額寫回。
func WithCompensationStore(s AccountStore) Option {
	return func(e *Engine) {
		if s != nil {
			e.undo = s
		}
	}
}

// WithMetrics 設定 prometheus 指標。
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock 設定 PaidOn 使用的時鐘。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTracer 設定 OpenTelemetry tracer；預設使用全域 provider。
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine 建立引擎。
func NewEngine(accounts AccountStore, log TransactionLog, opts ...Option) *Engine {
	e := &Engine{
		accounts: accounts,
		log:      log,
		locker:   NewKeyedLocker(),
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.undo == nil {
		e.undo = accounts
	}
	return e
}

// plan 為一次操作的寫入計畫：要寫入的交易紀錄、步驟與需鎖定的帳戶。
type plan struct {
	tx    *Transaction
	steps []step
	keys  []string
}

// TransferFunds 於使用者自己的帳戶間轉帳；顯示名稱附帶帳戶類型。
func (e *Engine) TransferFunds(ctx context.Context, from, to Account, amount decimal.Decimal, description string) (Transaction, error) {
	return e.Transfer(ctx, from, to, amount, description, TypeTransferFunds)
}

// PayAnyone 付款給任意帳戶；顯示名稱為原始使用者名稱。
func (e *Engine) PayAnyone(ctx context.Context, from, to Account, amount decimal.Decimal, description string) (Transaction, error) {
	return e.Transfer(ctx, from, to, amount, description, TypePayAnyone)
}

// Transfer 由 from 轉出 amount 至 to。
// kind 只接受 TypeTransferFunds 與 TypePayAnyone。
// 步驟：扣款來源 → 入帳目標 → 寫入紀錄；任一步失敗時將已寫入的餘額寫回原值。
func (e *Engine) Transfer(ctx context.Context, from, to Account, amount decimal.Decimal, description string, kind TransactionType) (Transaction, error) {
	return e.execute(ctx, transferOp(kind), func() (plan, error) {
		if err := validateAmount(amount); err != nil {
			return plan{}, err
		}

		var fromName, toName string
		switch kind {
		case TypeTransferFunds:
			fromName = from.OwnerUsername + " - " + from.Type.Label()
			toName = to.OwnerUsername + " - " + to.Type.Label()
		case TypePayAnyone:
			fromName = from.OwnerUsername
			toName = to.OwnerUsername
		default:
			return plan{}, fmt.Errorf("%w: transaction type %q", ErrUnsupportedOperation, kind)
		}
		if from.Unbounded() || to.Unbounded() {
			return plan{}, fmt.Errorf("%w: admin account cannot take part in %s", ErrUnsupportedOperation, kind)
		}
		if from.ID == to.ID {
			return plan{}, ErrSameAccount
		}

		fromNew := from.Balance.Sub(amount)
		if fromNew.IsNegative() {
			return plan{}, insufficient(from, amount)
		}
		toNew := to.Balance.Add(amount)

		tx := &Transaction{
			Description:         description,
			Amount:              amount,
			PaidOn:              e.now(),
			FromAccount:         from.ID,
			FromAccountUsername: fromName,
			FromAccountType:     from.Type,
			ToAccount:           to.ID,
			ToAccountUsername:   toName,
			ToAccountType:       to.Type,
			TransactionType:     kind,
		}
		return plan{
			tx: tx,
			steps: []step{
				balanceStep(e.accounts, e.undo, "debit source", from.ID, from.Balance, fromNew),
				balanceStep(e.accounts, e.undo, "credit destination", to.ID, to.Balance, toNew),
				insertStep(e.log, tx),
			},
			keys: []string{from.ID, to.ID},
		}, nil
	})
}

// CreateBPAYTransaction 向外部收款方繳費：只扣款來源帳戶，紀錄中沒有 ToAccount。
// 收款方資訊同時寫入 Biller 欄位與描述後綴。
func (e *Engine) CreateBPAYTransaction(ctx context.Context, from Account, billerName, billerCode, referenceNumber string, amount decimal.Decimal, description string) (Transaction, error) {
	return e.execute(ctx, string(TypeBPAY), func() (plan, error) {
		if err := validateAmount(amount); err != nil {
			return plan{}, err
		}
		if from.Unbounded() {
			return plan{}, fmt.Errorf("%w: admin account cannot pay bills", ErrUnsupportedOperation)
		}
		fromNew := from.Balance.Sub(amount)
		if fromNew.IsNegative() {
			return plan{}, insufficient(from, amount)
		}

		tx := &Transaction{
			Description:         BillDescription(description, billerName, billerCode, referenceNumber),
			Amount:              amount,
			PaidOn:              e.now(),
			FromAccount:         from.ID,
			FromAccountUsername: from.OwnerUsername,
			FromAccountType:     from.Type,
			ToAccountUsername:   billerName,
			TransactionType:     TypeBPAY,
			Biller:              &BillerDetails{Name: billerName, Code: billerCode, Reference: referenceNumber},
		}
		return plan{
			tx: tx,
			steps: []step{
				balanceStep(e.accounts, e.undo, "debit source", from.ID, from.Balance, fromNew),
				insertStep(e.log, tx),
			},
			keys: []string{from.ID},
		}, nil
	})
}

// BillDescription 產生 BPAY 紀錄的描述。
func BillDescription(description, billerName, billerCode, referenceNumber string) string {
	return fmt.Sprintf("%s Bill Details | Biller: %s, Code: %s, Ref: %s", description, billerName, billerCode, referenceNumber)
}

// AdminAddFunds 由合成管理員帳戶撥款給 to。管理員帳戶不做餘額檢查也不寫回。
func (e *Engine) AdminAddFunds(ctx context.Context, to Account, amount decimal.Decimal, description string) (Transaction, error) {
	return e.execute(ctx, string(TypeAddFunds), func() (plan, error) {
		if err := validateAmount(amount); err != nil {
			return plan{}, err
		}
		if to.Unbounded() {
			return plan{}, fmt.Errorf("%w: cannot add funds to the admin account", ErrUnsupportedOperation)
		}
		toNew := to.Balance.Add(amount)

		tx := &Transaction{
			Description:         description,
			Amount:              amount,
			PaidOn:              e.now(),
			FromAccountUsername: adminDisplayUsername,
			FromAccountType:     AccountAdmin,
			ToAccount:           to.ID,
			ToAccountUsername:   to.OwnerUsername,
			ToAccountType:       to.Type,
			TransactionType:     TypeAddFunds,
		}
		return plan{
			tx: tx,
			steps: []step{
				balanceStep(e.accounts, e.undo, "credit destination", to.ID, to.Balance, toNew),
				insertStep(e.log, tx),
			},
			keys: []string{to.ID},
		}, nil
	})
}

// RecordPresetTransaction 將預設交易寫入紀錄供展示，不影響任何餘額。
// amount > 0 代表 preset 對象付款給 owner；amount < 0 代表 owner 付款給 preset 對象。
func (e *Engine) RecordPresetTransaction(ctx context.Context, preset string, owner Account, amount decimal.Decimal, description string, dateIssued time.Time) (Transaction, error) {
	return e.execute(ctx, opPreset, func() (plan, error) {
		if amount.IsZero() {
			return plan{}, ErrZeroAmount
		}
		tx := &Transaction{
			Description:     description,
			Amount:          amount.Abs(),
			PaidOn:          dateIssued,
			TransactionType: TypePayAnyone,
			Synthetic:       true,
		}
		if amount.IsPositive() {
			tx.FromAccountUsername = preset
			tx.ToAccount = owner.ID
			tx.ToAccountUsername = owner.OwnerUsername
			tx.ToAccountType = owner.Type
		} else {
			tx.FromAccount = owner.ID
			tx.FromAccountUsername = owner.OwnerUsername
			tx.FromAccountType = owner.Type
			tx.ToAccountUsername = preset
		}
		return plan{tx: tx, steps: []step{insertStep(e.log, tx)}}, nil
	})
}

// execute 為所有寫入操作的共同流程：驗證、鎖定、執行 saga、記錄結果。
func (e *Engine) execute(ctx context.Context, op string, build func() (plan, error)) (tx Transaction, err error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "ledger."+op)
	validated := false

	defer func() {
		outcome := outcomeOf(err, validated)
		e.metrics.observe(op, outcome, start)
		span.SetAttributes(attribute.String("ledger.outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.report(op, outcome, tx, err)
	}()

	p, err := build()
	if err != nil {
		return Transaction{}, err
	}
	span.SetAttributes(
		attribute.String("ledger.amount", p.tx.Amount.String()),
		attribute.StringSlice("ledger.accounts", p.keys),
	)

	unlock, err := e.locker.Lock(ctx, p.keys...)
	if err != nil {
		return Transaction{}, fmt.Errorf("lock accounts: %w", err)
	}
	defer func() {
		if uerr := unlock(); uerr != nil {
			e.logger.Warn("release account locks", zap.String("op", op), zap.Strings("accounts", p.keys), zap.Error(uerr))
		}
	}()

	validated = true
	if err = runSaga(ctx, p.tx.TransactionType, p.steps); err != nil {
		return Transaction{}, err
	}
	return *p.tx, nil
}

func (e *Engine) report(op string, outcome Outcome, tx Transaction, err error) {
	switch outcome {
	case OutcomeCommitted:
		e.logger.Info("ledger operation committed",
			zap.String("op", op),
			zap.String("transaction_id", tx.ID),
			zap.String("from_account", tx.FromAccount),
			zap.String("to_account", tx.ToAccount),
			zap.Stringer("amount", tx.Amount))
	case OutcomeRejected:
		e.logger.Debug("ledger operation rejected", zap.String("op", op), zap.Error(err))
	case OutcomeRolledBack:
		e.logger.Warn("ledger operation rolled back", zap.String("op", op), zap.Error(err))
	case OutcomeCompensationFailed:
		fields := []zap.Field{zap.String("op", op), zap.Error(err)}
		var ce *CompensationError
		if errors.As(err, &ce) {
			for _, r := range ce.Failed() {
				fields = append(fields, zap.String("unreconciled_account", r.String()))
			}
		}
		e.logger.Error("ledger compensation failed; manual reconciliation required", fields...)
	}
}

// transferOp 回傳 Transfer 的操作名稱；只有支援的 kind 會成為獨立標籤。
func transferOp(kind TransactionType) string {
	switch kind {
	case TypeTransferFunds, TypePayAnyone:
		return string(kind)
	}
	return opUnsupported
}

func validateAmount(amount decimal.Decimal) error {
	switch {
	case amount.IsZero():
		return ErrZeroAmount
	case amount.IsNegative():
		return ErrNegativeAmount
	}
	return nil
}

func insufficient(a Account, amount decimal.Decimal) error {
	return fmt.Errorf("%w: account %s has %s, needs %s", ErrInsufficientFunds, a.ID, a.Balance, amount)
}
