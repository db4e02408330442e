// internal/server/response.go
//
// 本檔負責統一 HTTP 回應格式，並把領域錯誤轉成 HTTP 狀態碼。
// 錯誤回應一律為 {"code": "...", "error": "..."}。
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"ledger/internal/bank"
)

// errorBody 為錯誤回應內容。
type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// writeJSON 統一輸出成功回應。
func writeJSON(c *fiber.Ctx, code int, v any) error {
	return c.Status(code).JSON(v)
}

// writeErr 依錯誤種類決定狀態碼後輸出。
func writeErr(c *fiber.Ctx, err error) error {
	code, kind := statusOf(err)
	return c.Status(code).JSON(errorBody{Code: kind, Error: err.Error()})
}

// badBody 用於請求內容無法解析。
func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorBody{Code: "invalid_body", Error: err.Error()})
}

// statusOf 對應領域錯誤與 HTTP 狀態碼。
// 補償失敗必須先判斷：其 Cause 可能同時符合其他錯誤。
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, bank.ErrCompensationFailure):
		return fiber.StatusInternalServerError, "compensation_failed"
	case errors.Is(err, bank.ErrTransactionPersistence):
		return fiber.StatusBadGateway, "persistence_failed"
	case errors.Is(err, bank.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, bank.ErrInsufficientFunds):
		return fiber.StatusConflict, "insufficient_funds"
	case errors.Is(err, bank.ErrConcurrentModification):
		return fiber.StatusConflict, "concurrent_modification"
	case errors.Is(err, bank.ErrAccountBusy):
		return fiber.StatusConflict, "account_busy"
	case errors.Is(err, bank.ErrZeroAmount):
		return fiber.StatusBadRequest, "zero_amount"
	case errors.Is(err, bank.ErrNegativeAmount):
		return fiber.StatusBadRequest, "negative_amount"
	case errors.Is(err, bank.ErrSameAccount):
		return fiber.StatusBadRequest, "same_account"
	case errors.Is(err, bank.ErrUnsupportedOperation):
		return fiber.StatusBadRequest, "unsupported_operation"
	case errors.Is(err, bank.ErrDuplicatePresetID):
		return fiber.StatusConflict, "duplicate_preset"
	}
	return fiber.StatusInternalServerError, "internal"
}
