package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
	"github.com/Nirman0799/affordpill-checkout/internal/service/checkout"
)

// writeError отображает доменные ошибки в HTTP-статусы. Неизвестные ошибки
// схлопываются в 500 без текста: внутренности не утекают клиенту.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrInvoiceNotFound),
		errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrAddressRequired),
		errors.Is(err, domain.ErrAddressNotOwned),
		errors.Is(err, domain.ErrPaymentMethodInvalid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrOrderNotPayable),
		errors.Is(err, domain.ErrInvoiceNotPayable),
		errors.Is(err, domain.ErrAmountMismatch),
		errors.Is(err, domain.ErrSessionConsumed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrCheckoutInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retry": true})
	case errors.Is(err, domain.ErrGatewayUnavailable),
		errors.Is(err, domain.ErrGatewayRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable, try again", "retry": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
