package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// signatureTolerance is the allowed clock skew between the signed
// timestamp and receipt time. The window is symmetric: future-dated
// signatures are rejected just like stale ones.
const signatureTolerance = 5 * time.Minute

// Verifier validates inbound webhook signatures against the shared
// webhook secret. Two header schemes are supported: the timestamped
// form `t=<unix>,v1=<hex>` and the legacy bare hex hash.
type Verifier struct {
	secret string
	now    func() time.Time
}

// NewVerifier creates a verifier for the given secret. An empty secret
// disables verification; callers should log that as a degraded-trust
// condition.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: secret,
		now:    time.Now,
	}
}

// SecretConfigured reports whether a webhook secret is set.
func (v *Verifier) SecretConfigured() bool {
	return v.secret != ""
}

// Verify checks the signature header against the raw payload. With no
// secret configured the payload is accepted as-is. All hash comparisons
// are constant-time.
func (v *Verifier) Verify(payload []byte, header string) bool {
	if v.secret == "" {
		return true
	}
	if header == "" {
		return false
	}

	// Header format: t=timestamp,v1=hash
	parts := parseSignatureHeader(header)
	ts, hasTS := parts["t"]
	sig, hasSig := parts["v1"]

	if !hasTS || !hasSig {
		// Legacy format: the whole header is the hex hash
		expected := computeHMAC(v.secret, payload)
		return hmac.Equal([]byte(expected), []byte(header))
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}

	// Enforce the replay window
	now := v.now().Unix()
	if absInt64(now-tsInt) > int64(signatureTolerance/time.Second) {
		return false
	}

	signed := append([]byte(ts+"."), payload...)
	expected := computeHMAC(v.secret, signed)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// parseSignatureHeader splits a comma-separated key=value header into a
// map. Segments without '=' are ignored.
func parseSignatureHeader(header string) map[string]string {
	parts := make(map[string]string)
	for _, segment := range strings.Split(header, ",") {
		kv := strings.SplitN(segment, "=", 2)
		if len(kv) == 2 {
			parts[kv[0]] = kv[1]
		}
	}
	return parts
}

func computeHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
