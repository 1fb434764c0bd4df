package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TestSignaturePrefix marks signatures accepted without an HMAC check when
// test signatures are explicitly allowed.
const TestSignaturePrefix = "test_signature_"

// SignatureVerifier decides whether a (order, payment, signature) triple was
// issued by the payment gateway.
type SignatureVerifier interface {
	Verify(orderID, paymentID, signature string) bool
}

type hmacSignatureVerifier struct {
	secret             string
	allowTestSignature bool
}

func NewSignatureVerifier(secret string, allowTestSignatures bool) SignatureVerifier {
	return &hmacSignatureVerifier{
		secret:             secret,
		allowTestSignature: allowTestSignatures,
	}
}

// Sign returns the hex HMAC-SHA256 of "orderID|paymentID" under secret.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *hmacSignatureVerifier) Verify(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	if v.allowTestSignature && strings.HasPrefix(signature, TestSignaturePrefix) {
		return true
	}
	if v.secret == "" {
		return false
	}

	expected := Sign(v.secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
