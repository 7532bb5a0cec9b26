package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

// NewRouter собирает gin-движок со всеми маршрутами API. Все маршруты под
// /api требуют bearer-токен; виджет шлёт callback'и из браузера той же
// сессией покупателя.
func NewRouter(handler *Handler, auth domain.AuthProvider, logger *log.Entry) *gin.Engine {
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(Recovery(logger), RequestLogger(logger))

	engine.GET("/livez", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := engine.Group("/api", AuthRequired(auth))
	{
		api.POST("/checkout", handler.PlaceOrder)
		api.POST("/checkout/cod", handler.PlaceCODOrder)

		api.GET("/orders", handler.ListOrders)
		api.GET("/orders/:id", handler.GetOrder)
		api.POST("/orders/:id/session", handler.OpenOrderSession)

		api.POST("/payments/verify", handler.VerifyOrderPayment)
		api.POST("/payments/failure", handler.ReportGatewayFailure)

		api.POST("/invoices/:id/session", handler.OpenInvoiceSession)
		api.POST("/invoices/verify", handler.VerifyInvoicePayment)
	}

	return engine
}
