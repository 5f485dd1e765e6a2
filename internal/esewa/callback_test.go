package esewa

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func signedCallback() Callback {
	cb := Callback{
		TransactionCode:  "000AWEO",
		Status:           "COMPLETE",
		TotalAmount:      "1000.0",
		TransactionUUID:  "order-1",
		ProductCode:      "EPAYTEST",
		SignedFieldNames: "transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names",
	}
	cb.Sign(testSecret)
	return cb
}

func TestCallbackMessage_FixedFieldOrder(t *testing.T) {
	cb := signedCallback()
	want := "transaction_code=000AWEO,status=COMPLETE,total_amount=1000.0,transaction_uuid=order-1," +
		"product_code=EPAYTEST,signed_field_names=transaction_code,status,total_amount,transaction_uuid,product_code,signed_field_names"
	assert.Equal(t, want, cb.Message())
}

func TestDecodeCallback_RoundTrip(t *testing.T) {
	cb := signedCallback()
	encoded, err := EncodeCallback(cb)
	require.NoError(t, err)

	decoded, err := DecodeCallback(encoded)
	require.NoError(t, err)
	assert.Equal(t, cb, decoded)
	assert.True(t, decoded.Verify(testSecret))
	assert.Equal(t, domain.GatewayStatusComplete, decoded.GatewayStatus())
}

func TestDecodeCallback_NumericAmountKeepsLiteral(t *testing.T) {
	raw := `{"transaction_code":"X1","status":"COMPLETE","total_amount":500.0,"transaction_uuid":"order-1",` +
		`"product_code":"EPAYTEST","signed_field_names":"a","signature":"sig"}`
	encoded := base64.URLEncoding.EncodeToString([]byte(raw))

	cb, err := DecodeCallback(encoded)
	require.NoError(t, err)
	assert.Equal(t, "500.0", string(cb.TotalAmount))
}

func TestDecodeCallback_Errors(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{name: "empty", encoded: ""},
		{name: "not base64", encoded: "%%%"},
		{name: "not json", encoded: base64.StdEncoding.EncodeToString([]byte("hello"))},
		{name: "missing uuid", encoded: base64.StdEncoding.EncodeToString([]byte(`{"signature":"x"}`))},
		{name: "missing signature", encoded: base64.StdEncoding.EncodeToString([]byte(`{"transaction_uuid":"x"}`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCallback(tt.encoded)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrNoPaymentData))
		})
	}
}

func TestCallbackVerify_Tampered(t *testing.T) {
	cb := signedCallback()
	cb.TotalAmount = "1.0"
	assert.False(t, cb.Verify(testSecret))
}

func TestNewFormParams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecretKey = testSecret
	cfg.ServerURL = "https://shop.example.com/"

	params := NewFormParams(cfg, 50000, "order-1")

	assert.Equal(t, "500", params.Amount)
	assert.Equal(t, "500", params.TotalAmount)
	assert.Equal(t, "0", params.TaxAmount)
	assert.Equal(t, "0", params.ProductServiceCharge)
	assert.Equal(t, "0", params.ProductDeliveryCharge)
	assert.Equal(t, "EPAYTEST", params.ProductCode)
	assert.Equal(t, "order-1", params.TransactionUUID)
	assert.Equal(t, "https://shop.example.com/api/payment/esewa/verify", params.SuccessURL)
	assert.Equal(t, "https://shop.example.com/api/payment/esewa/failed", params.FailureURL)
	assert.Equal(t, "total_amount,transaction_uuid,product_code", params.SignedFieldNames)
	assert.True(t, Verify("total_amount=500,transaction_uuid=order-1,product_code=EPAYTEST", testSecret, params.Signature))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate(), "secret is required")

	cfg.SecretKey = testSecret
	require.NoError(t, cfg.Validate())

	cfg.Timeout = 0
	require.Error(t, cfg.Validate())
}
