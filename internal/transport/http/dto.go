package httpapi

import (
	"time"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

// placeOrderRequest — тело POST /api/checkout и /api/checkout/cod.
type placeOrderRequest struct {
	AddressID string `json:"address_id" binding:"required,max=64"`
}

type verifyRequest struct {
	PaymentID      string `json:"payment_id" binding:"required,max=128"`
	GatewayOrderID string `json:"gateway_order_id" binding:"required,max=128"`
	Signature      string `json:"signature" binding:"required,len=64,hexadecimal"`
	OrderID        string `json:"order_id" binding:"omitempty,max=64"`
	InvoiceID      string `json:"invoice_id" binding:"omitempty,max=64"`
}

type gatewayFailureRequest struct {
	GatewayOrderID string `json:"gateway_order_id" binding:"required,max=128"`
	Reason         string `json:"reason" binding:"omitempty,max=256"`
}

type orderItemResponse struct {
	ProductID          string `json:"product_id"`
	ProductName        string `json:"product_name"`
	Qty                int32  `json:"qty"`
	UnitPriceMinor     int64  `json:"unit_price_minor"`
	UnitSalePriceMinor int64  `json:"unit_sale_price_minor"`
	TotalPriceMinor    int64  `json:"total_price_minor"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	Number           string              `json:"number"`
	Status           string              `json:"status"`
	PaymentStatus    string              `json:"payment_status"`
	PaymentMethod    string              `json:"payment_method"`
	Currency         string              `json:"currency"`
	SubtotalMinor    int64               `json:"subtotal_minor"`
	DiscountMinor    int64               `json:"discount_minor"`
	DeliveryFeeMinor int64               `json:"delivery_fee_minor"`
	TotalMinor       int64               `json:"total_minor"`
	Items            []orderItemResponse `json:"items,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

type placeOrderResponse struct {
	Order orderResponse `json:"order"`
	// Reused=true, если дубль отправки схлопнулся в уже существующий заказ.
	Reused bool `json:"reused"`
}

type sessionResponse struct {
	GatewayOrderID string `json:"gateway_order_id"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message,omitempty"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

type confirmationResponse struct {
	Order    orderResponse           `json:"order"`
	Timeline []timelineEventResponse `json:"timeline"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:          item.ProductID,
			ProductName:        item.ProductName,
			Qty:                item.Qty,
			UnitPriceMinor:     item.UnitPriceMinor,
			UnitSalePriceMinor: item.UnitSalePriceMinor,
			TotalPriceMinor:    item.TotalPriceMinor,
		})
	}
	return orderResponse{
		ID:               order.ID,
		Number:           order.Number,
		Status:           string(order.Status),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentMethod:    string(order.PaymentMethod),
		Currency:         order.Currency,
		SubtotalMinor:    order.SubtotalMinor,
		DiscountMinor:    order.DiscountMinor,
		DeliveryFeeMinor: order.DeliveryFeeMinor,
		TotalMinor:       order.TotalMinor,
		Items:            items,
		CreatedAt:        order.CreatedAt,
	}
}

func toSessionResponse(session domain.PaymentSession) sessionResponse {
	return sessionResponse{
		GatewayOrderID: session.GatewayOrderID,
		AmountMinor:    session.AmountMinor,
		Currency:       session.Currency,
		Receipt:        session.Receipt,
	}
}

func toTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, timelineEventResponse{
			Type:     ev.Type,
			Reason:   ev.Reason,
			Occurred: ev.Occurred,
		})
	}
	return out
}
