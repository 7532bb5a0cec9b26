package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
	"github.com/Nirman0799/affordpill-checkout/internal/service/checkout"
	"github.com/Nirman0799/affordpill-checkout/internal/service/verification"
)

const defaultOrdersLimit = 20

// Handler связывает HTTP-маршруты с checkout- и верификационным сервисами.
type Handler struct {
	checkout *checkout.Service
	verify   *verification.Service
	logger   *log.Entry
}

// NewHandler создаёт хендлер API.
func NewHandler(checkoutSvc *checkout.Service, verifySvc *verification.Service, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &Handler{checkout: checkoutSvc, verify: verifySvc, logger: logger}
}

// PlaceOrder — POST /api/checkout: заказ с онлайн-оплатой.
func (h *Handler) PlaceOrder(c *gin.Context) {
	h.placeOrder(c, domain.PaymentMethodOnline)
}

// PlaceCODOrder — POST /api/checkout/cod: заказ с оплатой при получении.
func (h *Handler) PlaceCODOrder(c *gin.Context) {
	h.placeOrder(c, domain.PaymentMethodCOD)
}

func (h *Handler) placeOrder(c *gin.Context, method domain.PaymentMethod) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	userID := currentUserID(c)
	in := checkout.PlaceOrderInput{
		CallerID:  userID,
		UserID:    userID,
		AddressID: req.AddressID,
		Method:    method,
	}

	var (
		res checkout.PlaceOrderResult
		err error
	)
	if method == domain.PaymentMethodCOD {
		res, err = h.checkout.PlaceCODOrder(c.Request.Context(), in)
	} else {
		res, err = h.checkout.PlaceOrder(c.Request.Context(), in)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Reused {
		// Дубль отправки: тот же заказ, что и у первого запроса.
		status = http.StatusOK
	}
	c.JSON(status, placeOrderResponse{Order: toOrderResponse(res.Order), Reused: res.Reused})
}

// OpenOrderSession — POST /api/orders/:id/session.
func (h *Handler) OpenOrderSession(c *gin.Context) {
	session, err := h.checkout.OpenPaymentSession(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(session))
}

// OpenInvoiceSession — POST /api/invoices/:id/session.
func (h *Handler) OpenInvoiceSession(c *gin.Context) {
	session, err := h.checkout.OpenInvoiceSession(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(session))
}

// VerifyOrderPayment — POST /api/payments/verify: success-callback виджета.
// Невалидная подпись — это не 4xx: клиент честно доставил callback, поэтому
// отвечаем 200 с verified=false и просьбой обратиться в поддержку.
func (h *Handler) VerifyOrderPayment(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	verified, err := h.verify.VerifyOrderPayment(c.Request.Context(), domain.VerificationResult{
		PaymentID:      req.PaymentID,
		GatewayOrderID: req.GatewayOrderID,
		Signature:      req.Signature,
		OrderID:        req.OrderID,
	})
	h.writeVerifyResult(c, verified, err)
}

// VerifyInvoicePayment — POST /api/invoices/verify.
func (h *Handler) VerifyInvoicePayment(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	verified, err := h.verify.VerifyInvoicePayment(c.Request.Context(), domain.VerificationResult{
		PaymentID:      req.PaymentID,
		GatewayOrderID: req.GatewayOrderID,
		Signature:      req.Signature,
		InvoiceID:      req.InvoiceID,
	})
	h.writeVerifyResult(c, verified, err)
}

func (h *Handler) writeVerifyResult(c *gin.Context, verified bool, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrSignatureMismatch) {
			c.JSON(http.StatusOK, verifyResponse{
				Verified: false,
				Message:  "payment could not be verified, please contact support",
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyResponse{Verified: verified})
}

// ReportGatewayFailure — POST /api/payments/failure: клиент сообщает о
// неуспешной попытке оплаты. Заказ остаётся pending, оплату можно повторить.
func (h *Handler) ReportGatewayFailure(c *gin.Context) {
	var req gatewayFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	h.verify.RecordGatewayFailure(req.GatewayOrderID, req.Reason)
	c.JSON(http.StatusAccepted, gin.H{"recorded": true})
}

// GetOrder — GET /api/orders/:id: заказ с таймлайном для страницы подтверждения.
func (h *Handler) GetOrder(c *gin.Context) {
	order, events, err := h.checkout.Confirmation(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, confirmationResponse{
		Order:    toOrderResponse(order),
		Timeline: toTimelineResponse(events),
	})
}

// ListOrders — GET /api/orders: заказы покупателя, новые первыми.
func (h *Handler) ListOrders(c *gin.Context) {
	limit := defaultOrdersLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	orders, err := h.checkout.ListOrders(c.Request.Context(), currentUserID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		// Списку хватает шапок, позиции отдаёт только GET по id.
		order.Items = nil
		out = append(out, toOrderResponse(order))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}
