/**
 * @description
 * HMAC-SHA512 signing and verification for Paystack webhooks. Paystack sends the hex
 * digest of the raw request body, keyed with the account secret, in the
 * `x-paystack-signature` header.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha512, crypto/subtle: digest and constant-time comparison.
 */
package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HeaderName is the header Paystack puts the body signature in.
const HeaderName = "x-paystack-signature"

// Sign returns the lowercase hex HMAC-SHA512 of body keyed with secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header carries the signature of body under secret. A scheme
// prefix such as "sha512=" is stripped before comparing. The digest is compared exactly as
// received, so an uppercase hex digest does not verify. An empty secret or header never
// verifies.
func Verify(body []byte, header string, secret string) (ok bool) {
	if secret == "" {
		return false
	}
	provided := stripScheme(strings.TrimSpace(header))
	if provided == "" {
		return false
	}

	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	expected := Sign(body, secret)
	// ConstantTimeCompare checks length first, then compares every byte.
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

func stripScheme(header string) string {
	if i := strings.IndexByte(header, '='); i >= 0 && i < len(header)-1 {
		return header[i+1:]
	}
	return header
}
