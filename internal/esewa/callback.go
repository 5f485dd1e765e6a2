package esewa

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// Callback - данные, которые шлюз передаёт в redirect на success_url
// (base64 JSON в query-параметре data).
type Callback struct {
	TransactionCode  string    `json:"transaction_code"`
	Status           string    `json:"status"`
	TotalAmount      RawAmount `json:"total_amount"`
	TransactionUUID  string    `json:"transaction_uuid"`
	ProductCode      string    `json:"product_code"`
	SignedFieldNames string    `json:"signed_field_names"`
	Signature        string    `json:"signature"`
}

// DecodeCallback декодирует base64 JSON. Поддерживаются стандартный и URL-safe алфавиты,
// с паддингом и без. Любая ошибка даёт ErrNoPaymentData.
func DecodeCallback(encoded string) (Callback, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return Callback{}, domain.ErrNoPaymentData
	}

	raw, err := decodeBase64(encoded)
	if err != nil {
		return Callback{}, domain.Wrap(domain.ErrNoPaymentData, err)
	}

	var cb Callback
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&cb); err != nil {
		return Callback{}, domain.Wrap(domain.ErrNoPaymentData, err)
	}
	if cb.TransactionUUID == "" || cb.Signature == "" {
		return Callback{}, domain.ErrNoPaymentData
	}

	return cb, nil
}

// EncodeCallback выполняет обратную операцию; используется в тестах и инструментах отладки.
func EncodeCallback(cb Callback) (string, error) {
	raw, err := json.Marshal(cb)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Message строит каноническое сообщение callback в фиксированном порядке полей.
func (c Callback) Message() string {
	return CanonicalMessage(
		Field{Name: FieldTransactionCode, Value: c.TransactionCode},
		Field{Name: FieldStatus, Value: c.Status},
		Field{Name: FieldTotalAmount, Value: string(c.TotalAmount)},
		Field{Name: FieldTransactionUUID, Value: c.TransactionUUID},
		Field{Name: FieldProductCode, Value: c.ProductCode},
		Field{Name: FieldSignedFieldNames, Value: c.SignedFieldNames},
	)
}

// Sign подписывает callback секретом; нужен тестам и эмулятору шлюза.
func (c *Callback) Sign(secretKey string) {
	c.Signature = Sign(c.Message(), secretKey)
}

// Verify проверяет подпись callback.
func (c Callback) Verify(secretKey string) bool {
	return Verify(c.Message(), secretKey, c.Signature)
}

// GatewayStatus возвращает статус транзакции в доменном виде.
func (c Callback) GatewayStatus() domain.GatewayStatus {
	return domain.GatewayStatus(strings.ToUpper(strings.TrimSpace(c.Status)))
}

func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}
	var firstErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(s)
		if err == nil {
			return raw, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// RawAmount - сумма в том виде, в каком её прислал шлюз. В JSON принимает и строку,
// и число; для числа сохраняется исходная запись, чтобы подпись считалась по тем же байтам.
type RawAmount string

func (f *RawAmount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = RawAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = RawAmount(n.String())
	return nil
}

func (f RawAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}
