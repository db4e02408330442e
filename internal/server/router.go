// internal/server/router.go
//
// 本檔負責 HTTP 路由註冊與中介層。
// handler.go 定義「如何處理請求」，router.go 定義「請求如何被導向」。
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router 建立 fiber App 並註冊所有路由。
func (s *Server) Router() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "ledger",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(errorBody{Code: "http", Error: err.Error()})
		},
	})
	app.Use(recover.New())

	if s.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	// 所有端點掛在 /api/v1 下，同時保留根路徑方便本地開發。
	s.register(app.Group("/api/v1"))
	s.register(app)
	return app
}

func (s *Server) register(r fiber.Router) {
	r.Get("/health", s.health)

	r.Post("/accounts", s.createAccount)
	r.Get("/accounts/:id", s.account)
	r.Get("/accounts/:id/transactions", s.transactions)

	r.Post("/transfers", s.transfer)
	r.Post("/bpay", s.bpay)
	r.Post("/admin/funds", s.addFunds)

	r.Get("/presets/transactions", s.presetTransactions)
	r.Get("/presets/total", s.presetTotal)
	r.Post("/presets/record", s.recordPreset)
}
