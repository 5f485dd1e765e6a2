package esewa

import (
	"errors"
	"strings"
	"time"
)

const (
	// DefaultPaymentURL - форма оплаты тестового окружения ePay v2.
	DefaultPaymentURL = "https://rc-epay.esewa.com.np/api/epay/main/v2/form"
	// DefaultStatusURL - проверка статуса транзакции тестового окружения.
	DefaultStatusURL    = "https://rc.esewa.com.np/api/epay/transaction/status/"
	DefaultMerchantCode = "EPAYTEST"
	DefaultTimeout      = 10 * time.Second

	callbackVerifyPath = "/api/payment/esewa/verify"
	callbackFailedPath = "/api/payment/esewa/failed"
)

// Config задаёт параметры интеграции со шлюзом.
type Config struct {
	MerchantCode string
	SecretKey    string
	PaymentURL   string
	StatusURL    string
	// ServerURL задаёт внешний адрес сервиса, на который шлюз делает redirect.
	ServerURL string
	Timeout   time.Duration
}

// DefaultConfig возвращает настройки тестового окружения шлюза.
func DefaultConfig() Config {
	return Config{
		MerchantCode: DefaultMerchantCode,
		PaymentURL:   DefaultPaymentURL,
		StatusURL:    DefaultStatusURL,
		ServerURL:    "http://localhost:8080",
		Timeout:      DefaultTimeout,
	}
}

// Validate проверяет обязательные параметры.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.MerchantCode) == "" {
		errs = append(errs, errors.New("esewa merchant code is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("esewa secret key is required"))
	}
	if c.PaymentURL == "" || c.StatusURL == "" {
		errs = append(errs, errors.New("esewa payment and status urls are required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("esewa timeout must be positive"))
	}
	return errors.Join(errs...)
}

// SuccessURL возвращает адрес redirect после успешной оплаты.
func (c Config) SuccessURL() string {
	return strings.TrimRight(c.ServerURL, "/") + callbackVerifyPath
}

// FailureURL возвращает адрес redirect после неуспешной оплаты.
func (c Config) FailureURL() string {
	return strings.TrimRight(c.ServerURL, "/") + callbackFailedPath
}
