package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"minuteman/internal/services"
)

// signatureWindow bounds how stale an inbound request timestamp may be.
// Anything older is treated as a possible replay.
const signatureWindow = 5 * time.Minute

// VerifySignature checks an inbound request against the v0 signing scheme:
// HMAC-SHA256 over "v0:<timestamp>:<body>" with the signing secret, hex
// encoded and prefixed with "v0=". An empty secret disables verification.
func VerifySignature(secret string, timestamp string, body []byte, signature string, now time.Time) error {
	if secret == "" {
		return nil
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return services.Wrap(services.ErrValidation, "slack", "verify_signature", "timestamp invalid", err)
	}
	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > signatureWindow {
		return services.Wrap(services.ErrValidation, "slack", "verify_signature", "timestamp expired", nil)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return services.Wrap(services.ErrValidation, "slack", "verify_signature", "signature mismatch", nil)
	}
	return nil
}

// Sign computes the v0 signature for a request body.
func Sign(secret string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
