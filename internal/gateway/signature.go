package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the checkout signature the provider issues for a payment against
// gatewayOrderID: hex(HMAC-SHA256(secret, gatewayOrderID + "|" + paymentID)).
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	if secret == "" || gatewayOrderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := Sign(secret, gatewayOrderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
