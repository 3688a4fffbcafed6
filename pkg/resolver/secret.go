package resolver

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// SecretRedacted replaces secret material in any human-readable rendering.
const SecretRedacted = "(sensitive)"

// Secret length and alphabet. The value rides in an HTTP header, so the
// alphabet stays header-safe.
const (
	secretLength = 48

	secretLower  = "abcdefghijklmnopqrstuvwxyz"
	secretUpper  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	secretDigits = "0123456789"
)

// SharedSecret is the ephemeral origin-verification value generated once per
// resolution. It is consumed by exactly two descriptors: the CDN custom
// origin header and the compute function environment. The zero-context
// renderings (String, JSON) are redacted; callers that need the material use
// Value.
type SharedSecret struct {
	value string
}

// Value returns the secret material.
func (s *SharedSecret) Value() string {
	return s.value
}

// String implements fmt.Stringer with a redacted rendering so the secret
// never leaks through logging.
func (s *SharedSecret) String() string {
	return SecretRedacted
}

// MarshalJSON redacts the secret. Machine plan output carries the material
// inside descriptor properties instead, where the emitter controls redaction
// per output surface.
func (s *SharedSecret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + SecretRedacted + `"`), nil
}

// GenerateSecretMaterial returns a fresh high-entropy shared secret when the
// intent uses the shared-secret header scheme, and nil otherwise. The value
// is drawn from crypto/rand and is never derived from the intent; two
// resolutions of the same intent produce different secrets.
func GenerateSecretMaterial(intent DeployIntent) (*SharedSecret, error) {
	if !intent.NeedsSharedSecret() {
		return nil, nil
	}

	alphabet := secretLower + secretUpper + secretDigits
	for {
		var sb strings.Builder
		sb.Grow(secretLength)
		for i := 0; i < secretLength; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
			if err != nil {
				return nil, NewInternalError("secret generation failed", err)
			}
			sb.WriteByte(alphabet[n.Int64()])
		}
		value := sb.String()

		// Mixed character classes are part of the contract; redraw on the
		// (vanishingly rare) miss rather than patching bytes in place, which
		// would bias the distribution.
		if strings.ContainsAny(value, secretLower) &&
			strings.ContainsAny(value, secretUpper) &&
			strings.ContainsAny(value, secretDigits) {
			return &SharedSecret{value: value}, nil
		}
	}
}
