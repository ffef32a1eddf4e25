package security

import (
	"crypto/rand"
	"fmt"
)

// credentialAlphabet is the character set for token keys, secrets and
// session handles. Lowercase letters and digits keep credentials safe to
// embed in URLs and form bodies without escaping.
const credentialAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// CredentialLength is the length of every generated credential string.
const CredentialLength = 32

// RandomCredential returns a fresh 32-character random credential drawn
// from crypto/rand. The function panics if the system's random number
// generator fails, which indicates a critical system-level security
// failure no caller can meaningfully recover from.
func RandomCredential() string {
	return randomString(CredentialLength)
}

func randomString(length int) string {
	out := make([]byte, 0, length)
	buf := make([]byte, length)

	// Rejection sampling: 252 is the largest multiple of len(alphabet)
	// below 256, so accepted bytes are uniformly distributed.
	const limit = 252
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, credentialAlphabet[int(b)%len(credentialAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out)
}
