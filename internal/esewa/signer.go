// Package esewa описывает контракт с платёжным шлюзом eSewa (ePay v2):
// подпись канонических сообщений, форму оплаты, callback и запрос статуса.
package esewa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Field хранит пару key=value канонического сообщения.
type Field struct {
	Name  string
	Value string
}

// CanonicalMessage склеивает поля в строку "k1=v1,k2=v2,...".
// Порядок полей входит во внешний контракт и должен совпадать со шлюзом побайтно.
func CanonicalMessage(fields ...Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	return b.String()
}

// Sign возвращает base64(HMAC-SHA256(message, secretKey)).
func Sign(message, secretKey string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify пересчитывает подпись и сравнивает её за постоянное время.
func Verify(message, secretKey, signature string) bool {
	expected := Sign(message, secretKey)
	return hmac.Equal([]byte(expected), []byte(signature))
}
