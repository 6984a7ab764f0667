// Package auth verifies bearer secrets: the optional shared secret presented
// by gateway callers and the admin API token.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/alexedwards/argon2id"
)

// ErrUnknownHashType is returned when a configured hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

const bearerPrefix = "Bearer "

// SecretVerifier checks Authorization headers against a configured secret.
// The secret may be configured in plain text or as a sha256:/argon2id hash.
// A verifier with neither configured accepts every request; callers that
// must fail closed check Enabled first.
type SecretVerifier struct {
	plain string
	hash  string

	// verified holds the SHA-256 of the last token accepted through an
	// argon2id comparison, so repeat callers skip the expensive KDF.
	verified atomic.Pointer[[sha256.Size]byte]
}

// NewSecretVerifier creates a verifier. When both are set the hash wins.
func NewSecretVerifier(plain, hash string) (*SecretVerifier, error) {
	if hash != "" && DetectHashType(hash) == "unknown" {
		return nil, fmt.Errorf("secret hash: %w", ErrUnknownHashType)
	}
	return &SecretVerifier{plain: plain, hash: hash}, nil
}

// Enabled reports whether a secret is configured.
func (v *SecretVerifier) Enabled() bool {
	return v != nil && (v.plain != "" || v.hash != "")
}

// Verify reports whether authHeader is exactly "Bearer <secret>".
func (v *SecretVerifier) Verify(authHeader string) bool {
	if !v.Enabled() {
		return true
	}
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return false
	}
	token := authHeader[len(bearerPrefix):]

	if v.hash == "" {
		return subtle.ConstantTimeCompare([]byte(token), []byte(v.plain)) == 1
	}

	digest := sha256.Sum256([]byte(token))
	if last := v.verified.Load(); last != nil && subtle.ConstantTimeCompare(last[:], digest[:]) == 1 {
		return true
	}
	ok, err := VerifySecret(token, v.hash)
	if err != nil || !ok {
		return false
	}
	v.verified.Store(&digest)
	return true
}

// HashSecretSHA256 returns "sha256:<hex>" for raw.
func HashSecretSHA256(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// argon2idParams uses the OWASP minimum parameters.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashSecretArgon2id returns an Argon2id PHC-format hash of raw.
func HashSecretArgon2id(raw string) (string, error) {
	return argon2id.CreateHash(raw, argon2idParams)
}

// DetectHashType returns "argon2id", "sha256" or "unknown".
func DetectHashType(stored string) string {
	if strings.HasPrefix(stored, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(stored, "sha256:") {
		return "sha256"
	}
	return "unknown"
}

// VerifySecret compares raw against a stored hash in constant time.
func VerifySecret(raw, stored string) (bool, error) {
	switch DetectHashType(stored) {
	case "argon2id":
		return safeArgon2idCompare(raw, stored)
	case "sha256":
		expected := strings.TrimPrefix(stored, "sha256:")
		computed := strings.TrimPrefix(HashSecretSHA256(raw), "sha256:")
		return subtle.ConstantTimeCompare([]byte(strings.ToLower(expected)), []byte(computed)) == 1, nil
	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare converts panics from malformed hash parameters
// (t=0, p=0) into errors.
func safeArgon2idCompare(raw, stored string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(raw, stored)
}
