// Package bank 定義帳本核心領域模型與轉帳引擎。
// 本檔定義 Account、Transaction 與 TransactionPreset 結構，不含任何 HTTP 或儲存細節。

package bank

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType 帳戶類型。
type AccountType string

const (
	AccountPersonal AccountType = "personal"
	AccountBusiness AccountType = "business"
	// AccountAdmin 僅用於合成的管理員帳戶（無上限資金來源），不會被持久化。
	AccountAdmin AccountType = "admin"
)

// Valid 回報是否為已知的帳戶類型。
func (t AccountType) Valid() bool {
	switch t {
	case AccountPersonal, AccountBusiness, AccountAdmin:
		return true
	}
	return false
}

// Label 回傳顯示用名稱，例如 "Personal Account"。
func (t AccountType) Label() string {
	s := string(t)
	if s == "" {
		return "Account"
	}
	return strings.ToUpper(s[:1]) + s[1:] + " Account"
}

// TransactionType 交易種類。
type TransactionType string

const (
	TypeTransferFunds TransactionType = "transfer_funds"
	TypePayAnyone     TransactionType = "pay_anyone"
	TypeBPAY          TransactionType = "bpay"
	TypeAddFunds      TransactionType = "add_funds"
)

// Account represents a bank account.
type Account struct {
	ID             string          `json:"id"`
	OwnerUsername  string          `json:"owner_username"`
	Balance        decimal.Decimal `json:"balance"`
	Type           AccountType     `json:"type"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// Unbounded 回報此帳戶是否為無上限的資金來源（管理員帳戶）。
// 無上限帳戶的 Balance 欄位不參與任何運算，也不會寫回儲存層。
func (a Account) Unbounded() bool {
	return a.Type == AccountAdmin
}

const (
	// AdminAccountID 為合成管理員帳戶的固定識別碼。
	AdminAccountID       = "admin"
	adminOwnerUsername   = "Admin"
	adminDisplayUsername = "Admin Account"
)

// AdminAccount 回傳合成的管理員帳戶，只作為 AdminAddFunds 的資金來源。
func AdminAccount() Account {
	return Account{ID: AdminAccountID, OwnerUsername: adminOwnerUsername, Type: AccountAdmin}
}

// BillerDetails 為 BPAY 收款方資訊。
type BillerDetails struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	Reference string `json:"reference"`
}

// Transaction represents an immutable ledger record.
// Amount 一律以非負值儲存；方向由 FromAccount / ToAccount 表示。
// FromAccount 或 ToAccount 為空字串代表未設定（合成身分，例如管理員或外部收款方）。
type Transaction struct {
	ID                  string          `json:"id"`
	Description         string          `json:"description"`
	Amount              decimal.Decimal `json:"amount"`
	PaidOn              time.Time       `json:"paid_on"`
	FromAccount         string          `json:"from_account,omitempty"`
	FromAccountUsername string          `json:"from_account_username"`
	FromAccountType     AccountType     `json:"from_account_type,omitempty"`
	ToAccount           string          `json:"to_account,omitempty"`
	ToAccountUsername   string          `json:"to_account_username"`
	ToAccountType       AccountType     `json:"to_account_type,omitempty"`
	TransactionType     TransactionType `json:"transaction_type"`
	Biller              *BillerDetails  `json:"biller,omitempty"`
	// Synthetic 標記僅供顯示的紀錄（由預設交易產生），從未影響任何餘額。
	Synthetic bool `json:"synthetic,omitempty"`
}

// Touches 回報交易是否引用指定帳戶。
func (t Transaction) Touches(accountID string) bool {
	return accountID != "" && (t.FromAccount == accountID || t.ToAccount == accountID)
}

// TransactionPreset 為講師設定的預設交易，僅供展示，永不影響餘額。
// Amount < 0 代表收款對象付款給使用者。
type TransactionPreset struct {
	ID         string          `json:"id"`
	Recipient  string          `json:"recipient"`
	Amount     decimal.Decimal `json:"amount"`
	DateIssued time.Time       `json:"date_issued"`
}
