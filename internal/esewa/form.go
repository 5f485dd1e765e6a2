package esewa

import (
	"strings"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// Имена полей, подписываемых при инициации платежа.
const (
	FieldTotalAmount      = "total_amount"
	FieldTransactionUUID  = "transaction_uuid"
	FieldProductCode      = "product_code"
	FieldTransactionCode  = "transaction_code"
	FieldStatus           = "status"
	FieldSignedFieldNames = "signed_field_names"
)

// RequestSignedFields перечисляет подписанные поля формы оплаты.
var RequestSignedFields = []string{FieldTotalAmount, FieldTransactionUUID, FieldProductCode}

// FormParams содержит поля формы, которую клиент отправляет на шлюз.
type FormParams struct {
	Amount                string `json:"amount"`
	TaxAmount             string `json:"tax_amount"`
	ProductServiceCharge  string `json:"product_service_charge"`
	ProductDeliveryCharge string `json:"product_delivery_charge"`
	ProductCode           string `json:"product_code"`
	TotalAmount           string `json:"total_amount"`
	TransactionUUID       string `json:"transaction_uuid"`
	SuccessURL            string `json:"success_url"`
	FailureURL            string `json:"failure_url"`
	SignedFieldNames      string `json:"signed_field_names"`
	Signature             string `json:"signature"`
}

// RequestMessage строит каноническое сообщение инициации платежа.
func RequestMessage(totalAmount, transactionUUID, productCode string) string {
	return CanonicalMessage(
		Field{Name: FieldTotalAmount, Value: totalAmount},
		Field{Name: FieldTransactionUUID, Value: transactionUUID},
		Field{Name: FieldProductCode, Value: productCode},
	)
}

// NewFormParams формирует подписанную форму оплаты заказа.
// Налоги и сборы нулевые, поэтому total_amount равен amount.
func NewFormParams(cfg Config, totalMinor int64, transactionUUID string) FormParams {
	amount := domain.FormatAmount(totalMinor)
	return FormParams{
		Amount:                amount,
		TaxAmount:             "0",
		ProductServiceCharge:  "0",
		ProductDeliveryCharge: "0",
		ProductCode:           cfg.MerchantCode,
		TotalAmount:           amount,
		TransactionUUID:       transactionUUID,
		SuccessURL:            cfg.SuccessURL(),
		FailureURL:            cfg.FailureURL(),
		SignedFieldNames:      strings.Join(RequestSignedFields, ","),
		Signature:             Sign(RequestMessage(amount, transactionUUID, cfg.MerchantCode), cfg.SecretKey),
	}
}
