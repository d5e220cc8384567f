package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the raw body keyed by the app secret.
const SignatureHeader = "X-Hub-Signature-256"

var ErrInvalidSignature = errors.New("webhook signature mismatch")

// VerifySignature checks a "sha256=<hex>" header against body. An empty
// appSecret disables the check.
func VerifySignature(body []byte, header, appSecret string) error {
	if appSecret == "" {
		return nil
	}
	hexSig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok || hexSig == "" {
		return ErrInvalidSignature
	}
	given, err := hex.DecodeString(hexSig)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(given, Sign(body, appSecret)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body.
func Sign(body []byte, appSecret string) []byte {
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return mac.Sum(nil)
}
