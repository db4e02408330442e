// internal/storage/postgres.go
//
// Postgres 為以 pgxpool 實作的儲存層。
// numeric 欄位一律以文字交換並以 decimal 解析，避免精度遺失。
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ledger/internal/bank"
)

// Schema 建立帳戶、交易紀錄與預設交易資料表。可重複執行。
const Schema = `
CREATE TABLE IF NOT EXISTS account (
	id              TEXT PRIMARY KEY,
	owner_username  TEXT NOT NULL,
	balance         NUMERIC(20, 4) NOT NULL CHECK (balance >= 0),
	type            TEXT NOT NULL CHECK (type IN ('personal', 'business')),
	opening_balance NUMERIC(20, 4) NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction (
	id                    TEXT PRIMARY KEY,
	description           TEXT NOT NULL,
	amount                NUMERIC(20, 4) NOT NULL CHECK (amount >= 0),
	paid_on               TIMESTAMPTZ NOT NULL,
	from_account          TEXT,
	from_account_username TEXT NOT NULL,
	from_account_type     TEXT,
	to_account            TEXT,
	to_account_username   TEXT NOT NULL,
	to_account_type       TEXT,
	transaction_type      TEXT NOT NULL,
	biller_name           TEXT,
	biller_code           TEXT,
	biller_reference      TEXT,
	synthetic             BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS transaction_from_paid_on ON transaction (from_account, paid_on DESC);
CREATE INDEX IF NOT EXISTS transaction_to_paid_on ON transaction (to_account, paid_on DESC);

CREATE TABLE IF NOT EXISTS transaction_presets (
	id          TEXT PRIMARY KEY,
	recipient   TEXT NOT NULL,
	amount      NUMERIC(20, 4) NOT NULL,
	date_issued TIMESTAMPTZ NOT NULL
);
`

// Postgres 實作 bank.AccountStore、bank.TransactionLog 與 bank.PresetSource。
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres 以既有連線池建立儲存層。
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ConnectPostgres 以連線字串建立連線池並測試連線。
func ConnectPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close 關閉連線池。
func (p *Postgres) Close() { p.pool.Close() }

// EnsureSchema 建立資料表。
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// CreateAccount 建立帳戶。
func (p *Postgres) CreateAccount(ctx context.Context, owner string, typ bank.AccountType, opening decimal.Decimal) (bank.Account, error) {
	if err := checkNewAccount(typ, opening); err != nil {
		return bank.Account{}, err
	}
	a := bank.Account{ID: uuid.NewString(), OwnerUsername: owner, Balance: opening, Type: typ, OpeningBalance: opening}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO account (id, owner_username, balance, type, opening_balance) VALUES ($1, $2, $3::numeric, $4, $3::numeric)`,
		a.ID, a.OwnerUsername, opening.String(), string(typ))
	if err != nil {
		return bank.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

// ReadAccount 依 ID 讀取帳戶。
func (p *Postgres) ReadAccount(ctx context.Context, id string) (bank.Account, error) {
	var (
		a                bank.Account
		typ              string
		balance, opening string
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, owner_username, balance::text, type, opening_balance::text FROM account WHERE id = $1`, id).
		Scan(&a.ID, &a.OwnerUsername, &balance, &typ, &opening)
	if errors.Is(err, pgx.ErrNoRows) {
		return bank.Account{}, fmt.Errorf("%w: %s", bank.ErrNotFound, id)
	}
	if err != nil {
		return bank.Account{}, fmt.Errorf("read account %s: %w", id, err)
	}
	a.Type = bank.AccountType(typ)
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return bank.Account{}, fmt.Errorf("parse balance of %s: %w", id, err)
	}
	if a.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return bank.Account{}, fmt.Errorf("parse opening balance of %s: %w", id, err)
	}
	return a, nil
}

// WriteAccountBalance 以 UPDATE ... WHERE balance = expected 實作條件式寫入。
// 未更新任何列時再查詢一次以區分帳戶不存在與餘額已變動。
func (p *Postgres) WriteAccountBalance(ctx context.Context, id string, expected, next decimal.Decimal) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE account SET balance = $3::numeric WHERE id = $1 AND balance = $2::numeric`,
		id, expected.String(), next.String())
	if err != nil {
		return fmt.Errorf("update balance of %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM account WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check account %s: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", bank.ErrNotFound, id)
	}
	return fmt.Errorf("%w: account %s, expected %s", bank.ErrConcurrentModification, id, expected)
}

// InsertTransaction 寫入一筆紀錄並回傳 ID。
func (p *Postgres) InsertTransaction(ctx context.Context, tx bank.Transaction) (string, error) {
	id := uuid.NewString()
	var billerName, billerCode, billerRef *string
	if tx.Biller != nil {
		billerName, billerCode, billerRef = &tx.Biller.Name, &tx.Biller.Code, &tx.Biller.Reference
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO transaction (
			id, description, amount, paid_on,
			from_account, from_account_username, from_account_type,
			to_account, to_account_username, to_account_type,
			transaction_type, biller_name, biller_code, biller_reference, synthetic
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		id, tx.Description, tx.Amount.String(), tx.PaidOn,
		nullable(tx.FromAccount), tx.FromAccountUsername, nullable(string(tx.FromAccountType)),
		nullable(tx.ToAccount), tx.ToAccountUsername, nullable(string(tx.ToAccountType)),
		string(tx.TransactionType), billerName, billerCode, billerRef, tx.Synthetic)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

// QueryTransactionsByAccount 回傳引用該帳戶的紀錄，依 paid_on 由新到舊。
func (p *Postgres) QueryTransactionsByAccount(ctx context.Context, accountID string) ([]bank.Transaction, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, description, amount::text, paid_on,
			COALESCE(from_account, ''), from_account_username, COALESCE(from_account_type, ''),
			COALESCE(to_account, ''), to_account_username, COALESCE(to_account_type, ''),
			transaction_type, biller_name, biller_code, biller_reference, synthetic
		FROM transaction
		WHERE from_account = $1 OR to_account = $1
		ORDER BY paid_on DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []bank.Transaction
	for rows.Next() {
		var (
			tx                             bank.Transaction
			amount, fromType, toType, kind string
			billerName, billerCode, ref    *string
		)
		if err := rows.Scan(&tx.ID, &tx.Description, &amount, &tx.PaidOn,
			&tx.FromAccount, &tx.FromAccountUsername, &fromType,
			&tx.ToAccount, &tx.ToAccountUsername, &toType,
			&kind, &billerName, &billerCode, &ref, &tx.Synthetic); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount of %s: %w", tx.ID, err)
		}
		tx.FromAccountType = bank.AccountType(fromType)
		tx.ToAccountType = bank.AccountType(toType)
		tx.TransactionType = bank.TransactionType(kind)
		if billerName != nil {
			tx.Biller = &bank.BillerDetails{Name: *billerName, Code: deref(billerCode), Reference: deref(ref)}
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// AddPreset 寫入一筆預設交易。
func (p *Postgres) AddPreset(ctx context.Context, preset bank.TransactionPreset) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO transaction_presets (id, recipient, amount, date_issued) VALUES ($1, $2, $3::numeric, $4)`,
		preset.ID, preset.Recipient, preset.Amount.String(), preset.DateIssued)
	if err != nil {
		return fmt.Errorf("insert preset: %w", err)
	}
	return nil
}

// ListPresets 回傳所有預設交易。
func (p *Postgres) ListPresets(ctx context.Context) ([]bank.TransactionPreset, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, recipient, amount::text, date_issued FROM transaction_presets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query presets: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (bank.TransactionPreset, error) {
		var (
			preset bank.TransactionPreset
			amount string
			issued time.Time
		)
		if err := row.Scan(&preset.ID, &preset.Recipient, &amount, &issued); err != nil {
			return preset, err
		}
		preset.DateIssued = issued
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return preset, fmt.Errorf("parse preset amount of %s: %w", preset.ID, err)
		}
		preset.Amount = amt
		return preset, nil
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
