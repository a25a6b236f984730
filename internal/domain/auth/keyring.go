// Package auth verifies client API keys against configured hashes and
// maps them to identities.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when an API key matches no configured hash.
var ErrInvalidKey = errors.New("invalid api key")

// ErrUnknownHashType is returned when a stored hash has an unrecognized
// format.
var ErrUnknownHashType = errors.New("unknown hash type")

// ConfiguredKey pairs a stored key hash with the identity it
// authenticates as.
type ConfiguredKey struct {
	Hash     string
	Identity string
}

// Keyring resolves raw API keys to identities. SHA-256 hashes get a
// direct map lookup; Argon2id hashes are verified by iteration.
type Keyring struct {
	sha256Keys map[string]string
	argon2Keys []ConfiguredKey
}

// NewKeyring builds a Keyring from configured keys. Returns
// ErrUnknownHashType if any hash is neither Argon2id PHC format nor
// SHA-256.
func NewKeyring(keys []ConfiguredKey) (*Keyring, error) {
	k := &Keyring{sha256Keys: make(map[string]string, len(keys))}
	for i, ck := range keys {
		switch DetectHashType(ck.Hash) {
		case "sha256":
			k.sha256Keys[strings.TrimPrefix(ck.Hash, "sha256:")] = ck.Identity
		case "argon2id":
			k.argon2Keys = append(k.argon2Keys, ck)
		default:
			return nil, fmt.Errorf("api key %d: %w", i, ErrUnknownHashType)
		}
	}
	return k, nil
}

// Len returns the number of configured keys.
func (k *Keyring) Len() int {
	return len(k.sha256Keys) + len(k.argon2Keys)
}

// Resolve verifies a raw key and returns the identity it authenticates
// as. Returns ErrInvalidKey when no configured hash matches.
func (k *Keyring) Resolve(rawKey string) (string, error) {
	// Fast path: direct SHA-256 lookup.
	if identity, ok := k.sha256Keys[HashKey(rawKey)]; ok {
		return identity, nil
	}

	// Slow path: verify against each Argon2id hash.
	for _, ck := range k.argon2Keys {
		match, err := VerifyKey(rawKey, ck.Hash)
		if err != nil {
			continue
		}
		if match {
			return ck.Identity, nil
		}
	}

	return "", ErrInvalidKey
}

// HashKey returns the SHA-256 hex hash of the raw key.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// argon2idParams follows OWASP minimum parameters for Argon2id.
// Memory: 47 MiB, Iterations: 1, Parallelism: 1
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC
// format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the hash algorithm used for a stored hash.
// Returns "argon2id" for PHC format, "sha256" for prefixed or bare hex,
// "unknown" otherwise.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	// Bare SHA-256 hex is exactly 64 hex characters.
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey verifies a raw key against a stored hash. Supports Argon2id
// PHC format, "sha256:"-prefixed hex, and bare SHA-256 hex. Returns
// ErrUnknownHashType for unrecognized formats.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch DetectHashType(storedHash) {
	case "argon2id":
		return safeArgon2idCompare(rawKey, storedHash)

	case "sha256":
		expected := strings.TrimPrefix(storedHash, "sha256:")
		computed := HashKey(rawKey)
		// Constant-time comparison to prevent timing attacks.
		return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil

	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery. The underlying argon2 library panics on malformed hashes
// with invalid parameters (t=0 rounds, p=0 parallelism); those panics
// become errors so VerifyKey never panics.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
