package razorpaywebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/angelmondragon/gymdesk-billing/pkg/errors"
)

// Header names set by the provider on every delivery.
const (
	SignatureHeader = "X-Razorpay-Signature"
	EventIDHeader   = "X-Razorpay-Event-Id"
)

var (
	ErrMissingSignature = pkgerrors.ErrMissingSignature
	ErrInvalidSignature = pkgerrors.ErrInvalidSignature
	ErrMalformedJSON    = pkgerrors.ErrMalformedJSON
)

// Verify checks signature against the hex HMAC-SHA256 of the exact raw body.
// The body must not be decoded or re-encoded before this call.
func Verify(rawBody []byte, signature, secret string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	if secret == "" {
		return ErrInvalidSignature
	}
	expected := Sign(rawBody, secret)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature the provider would send for rawBody.
func Sign(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
