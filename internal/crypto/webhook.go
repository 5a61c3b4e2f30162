package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// WebhookAuth signs outbound notification webhooks so receivers can verify
// that a delivery came from the engine and is not a replay.
type WebhookAuth struct {
	Secret string
}

// Headers returns the HTTP headers for a webhook delivery. The signature is
// HMAC-SHA256(secret, timestamp+body) encoded as base64.
//
// Returned header keys:
//   - X-Momentum-Timestamp
//   - X-Momentum-Signature
func (w *WebhookAuth) Headers(body []byte) map[string]string {
	return w.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (w *WebhookAuth) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	sig := hmacSHA256Base64([]byte(w.Secret), append([]byte(ts), body...))

	return map[string]string{
		"X-Momentum-Timestamp": ts,
		"X-Momentum-Signature": sig,
	}
}

// Verify checks a delivery's signature and timestamp. maxSkew bounds how old
// a timestamp may be before the delivery is rejected as a replay.
func (w *WebhookAuth) Verify(body []byte, tsHeader, sigHeader string, maxSkew time.Duration) error {
	unixTS, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto/webhook: invalid timestamp: %w", err)
	}

	age := time.Since(time.Unix(unixTS, 0))
	if age > maxSkew || age < -maxSkew {
		return fmt.Errorf("crypto/webhook: timestamp outside allowed skew (%s)", age)
	}

	want := hmacSHA256Base64([]byte(w.Secret), append([]byte(tsHeader), body...))
	if !hmac.Equal([]byte(want), []byte(sigHeader)) {
		return fmt.Errorf("crypto/webhook: signature mismatch")
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (w *WebhookAuth) String() string {
	if len(w.Secret) <= 4 {
		return "WebhookAuth{secret=****}"
	}
	return fmt.Sprintf("WebhookAuth{secret=%s****}", w.Secret[:4])
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key, message []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
