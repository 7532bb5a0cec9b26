package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Nirman0799/affordpill-checkout/internal/domain"
)

const (
	defaultEndpoint    = "https://api.razorpay.com/v1"
	defaultHTTPTimeout = 10 * time.Second
)

// GatewayClient — HTTP-клиент razorpay-совместимого шлюза. Открытие сессии —
// это POST /orders с basic-auth по ключу мерчанта; секрет подписи клиенту не
// нужен и здесь не хранится.
type GatewayClient struct {
	endpoint string
	keyID    string
	keySec   string
	client   *http.Client
	logger   *log.Entry
}

// GatewayOption настраивает GatewayClient.
type GatewayOption func(*GatewayClient)

// WithEndpoint переопределяет базовый URL шлюза (для тестов и стейджинга).
func WithEndpoint(endpoint string) GatewayOption {
	return func(c *GatewayClient) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient подменяет http.Client.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(c *GatewayClient) {
		c.client = client
	}
}

// NewGatewayClient создаёт клиент шлюза с ключами мерчанта.
func NewGatewayClient(keyID, keySecret string, options ...GatewayOption) *GatewayClient {
	c := &GatewayClient{
		endpoint: defaultEndpoint,
		keyID:    keyID,
		keySec:   keySecret,
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		logger:   log.WithField("component", "payment-gateway"),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

type gatewayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type gatewayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type gatewayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// OpenSession открывает платёжную сессию на точную сумму в минимальных
// единицах. Сетевые ошибки и 5xx шлюза — retryable (ErrGatewayUnavailable);
// 4xx означает, что шлюз отверг запрос.
func (c *GatewayClient) OpenSession(ctx context.Context, req domain.GatewaySessionRequest) (domain.GatewaySession, error) {
	body, err := json.Marshal(gatewayOrderRequest{
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return domain.GatewaySession{}, fmt.Errorf("marshal gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/orders", bytes.NewReader(body))
	if err != nil {
		return domain.GatewaySession{}, fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.keySec)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.WithError(err).WithField("receipt", req.Receipt).Warn("gateway request failed")
		return domain.GatewaySession{}, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.GatewaySession{}, fmt.Errorf("%w: read response: %v", domain.ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return domain.GatewaySession{}, fmt.Errorf("%w: gateway returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var gwErr gatewayErrorResponse
		_ = json.Unmarshal(raw, &gwErr)
		c.logger.WithFields(log.Fields{
			"receipt": req.Receipt,
			"status":  resp.StatusCode,
			"code":    gwErr.Error.Code,
		}).Warn("gateway rejected session request")
		return domain.GatewaySession{}, fmt.Errorf("%w: %s", domain.ErrGatewayRejected, gwErr.Error.Description)
	}

	var gwResp gatewayOrderResponse
	if err := json.Unmarshal(raw, &gwResp); err != nil {
		return domain.GatewaySession{}, fmt.Errorf("decode gateway response: %w", err)
	}
	if gwResp.ID == "" {
		return domain.GatewaySession{}, fmt.Errorf("%w: empty session id", domain.ErrGatewayRejected)
	}

	return domain.GatewaySession{
		GatewayOrderID: gwResp.ID,
		AmountMinor:    gwResp.Amount,
		Currency:       gwResp.Currency,
	}, nil
}

var _ domain.PaymentGateway = (*GatewayClient)(nil)
