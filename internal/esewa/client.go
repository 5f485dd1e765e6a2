package esewa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/version"
)

// statusResponse описывает тело ответа на запрос статуса транзакции.
type statusResponse struct {
	ProductCode     string    `json:"product_code"`
	TransactionUUID string    `json:"transaction_uuid"`
	TotalAmount     RawAmount `json:"total_amount"`
	Status          string    `json:"status"`
	RefID           string    `json:"ref_id"`
}

// Client выполняет запрос статуса транзакции. Повторов нет: ошибка шлюза
// возвращается вызывающему как ErrGatewayUnavailable.
type Client struct {
	http      *resty.Client
	statusURL string
	logger    *log.Entry
}

// NewClient создаёт клиента шлюза.
func NewClient(cfg Config, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("component", "esewa-client")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", version.UserAgent("bookstore"))

	return &Client{
		http:      httpClient,
		statusURL: cfg.StatusURL,
		logger:    logger,
	}
}

// CheckStatus запрашивает статус транзакции у шлюза.
func (c *Client) CheckStatus(ctx context.Context, query domain.StatusQuery) (domain.StatusReport, error) {
	start := time.Now()
	var body statusResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			FieldProductCode:     query.ProductCode,
			FieldTotalAmount:     query.TotalAmount,
			FieldTransactionUUID: query.TransactionUUID,
		}).
		SetResult(&body).
		Get(c.statusURL)
	if err != nil {
		return domain.StatusReport{}, domain.Wrap(domain.ErrGatewayUnavailable, fmt.Errorf("status request: %w", err))
	}

	logger := c.logger.WithFields(log.Fields{
		"transaction_uuid": query.TransactionUUID,
		"http_status":      resp.StatusCode(),
		"duration_ms":      time.Since(start).Milliseconds(),
	})

	if resp.IsError() {
		logger.Warn("esewa status check returned error response")
		return domain.StatusReport{}, domain.Wrap(domain.ErrGatewayUnavailable,
			fmt.Errorf("status request: unexpected http status %d", resp.StatusCode()))
	}

	status := strings.ToUpper(strings.TrimSpace(body.Status))
	if status == "" {
		logger.Warn("esewa status check returned empty status")
		return domain.StatusReport{}, domain.Wrap(domain.ErrGatewayUnavailable,
			fmt.Errorf("status request: malformed response"))
	}

	logger.WithField("gateway_status", status).Debug("esewa status checked")

	return domain.StatusReport{
		Status:          domain.GatewayStatus(status),
		RefID:           body.RefID,
		TotalAmount:     string(body.TotalAmount),
		TransactionUUID: body.TransactionUUID,
	}, nil
}

var _ domain.PaymentGateway = (*Client)(nil)
