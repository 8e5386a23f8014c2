// Package gateway handles the payment gateway's callback envelope: the
// HMAC-SHA512 body signature and the event payload shape.
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// SignatureHeader carries the hex HMAC the gateway computes over the raw
// request body.
const SignatureHeader = "X-Gateway-Signature"

// EventChargeSuccess is the only event kind the confirmation path consumes.
const EventChargeSuccess = "charge.success"

// Sign returns the hex HMAC-SHA512 of body under the shared secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body in constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Event is the gateway's webhook payload. Amounts arrive in kobo, as the
// gateway reports them.
type Event struct {
	Event string      `json:"event"`
	Data  EventCharge `json:"data"`
}

type EventCharge struct {
	Reference  string         `json:"reference"`
	AmountKobo int64          `json:"amount"`
	Channel    string         `json:"channel"`
	Metadata   map[string]any `json:"metadata"`
}
