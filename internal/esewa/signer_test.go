package esewa

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "8gBm/:&EnhH.1/q"

func TestCanonicalMessage(t *testing.T) {
	msg := CanonicalMessage(
		Field{Name: "total_amount", Value: "100"},
		Field{Name: "transaction_uuid", Value: "11-201-13"},
		Field{Name: "product_code", Value: "EPAYTEST"},
	)
	assert.Equal(t, "total_amount=100,transaction_uuid=11-201-13,product_code=EPAYTEST", msg)
	assert.Equal(t, "", CanonicalMessage())
}

func TestSign_DeterministicAndBase64(t *testing.T) {
	msg := RequestMessage("100", "11-201-13", "EPAYTEST")

	first := Sign(msg, testSecret)
	second := Sign(msg, testSecret)
	require.Equal(t, first, second)

	raw, err := base64.StdEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, raw, 32, "sha256 digest")
}

func TestVerify_DetectsTampering(t *testing.T) {
	msg := RequestMessage("100", "11-201-13", "EPAYTEST")
	sig := Sign(msg, testSecret)

	assert.True(t, Verify(msg, testSecret, sig))

	tests := []struct {
		name   string
		msg    string
		secret string
		sig    string
	}{
		{name: "message changed", msg: RequestMessage("101", "11-201-13", "EPAYTEST"), secret: testSecret, sig: sig},
		{name: "secret changed", msg: msg, secret: testSecret + "x", sig: sig},
		{name: "signature changed", msg: msg, secret: testSecret, sig: "A" + sig[1:]},
		{name: "empty signature", msg: msg, secret: testSecret, sig: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Verify(tt.msg, tt.secret, tt.sig))
		})
	}
}

func TestSign_OneCharacterChangesSignature(t *testing.T) {
	base := RequestMessage("500", "order-1", "EPAYTEST")
	sig := Sign(base, testSecret)

	for i := range base {
		mutated := []byte(base)
		mutated[i] ^= 0x01
		if Sign(string(mutated), testSecret) == sig {
			t.Fatalf("signature collision after mutating byte %d", i)
		}
	}
}
