// Package cryptox contains the password hashing and symmetric sealing
// primitives used by the identity layer.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of freshly generated password salts.
const SaltSize = 16

// HashParams are the argon2id cost parameters.
type HashParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

// DefaultHashParams is what production code hashes with.
var DefaultHashParams = HashParams{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32}

var ErrMalformedHash = errors.New("malformed password hash")

// NewSalt returns SaltSize random bytes, base64 encoded.
func NewSalt() (string, error) {
	b, err := common.RandBytes(SaltSize)
	if err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}

// HashPassword derives an argon2id key from password and salt and encodes
// it together with its parameters:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<base64 key>
//
// Keeping the parameters in the encoded form lets VerifyPassword check old
// hashes after the defaults change.
func HashPassword(password []byte, salt string, p HashParams) string {
	key := argon2.IDKey(password, []byte(salt), p.Time, p.Memory, p.Threads, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version, p.Memory, p.Time, p.Threads, base64.RawStdEncoding.EncodeToString(key))
}

// VerifyPassword recomputes the hash of password with the parameters stored
// in encoded and compares in constant time.
func VerifyPassword(password []byte, salt, encoded string) (bool, error) {
	p, want, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey(password, []byte(salt), p.Time, p.Memory, p.Threads, p.KeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func decodeHash(encoded string) (HashParams, []byte, error) {
	var p HashParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, ErrMalformedHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, ErrMalformedHash
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return p, nil, ErrMalformedHash
	}
	p.KeyLen = uint32(len(key))
	return p, key, nil
}

// DeriveKey turns a configured secret into a 32-byte AES key. The label
// separates keys derived from the same secret for different purposes.
func DeriveKey(secret, label string) []byte {
	sum := sha256.Sum256([]byte(label + ":" + secret))
	return sum[:]
}

// Seal serializes v to JSON and encrypts it with AES-GCM. The random nonce
// is prepended to the returned ciphertext.
func Seal(v any, key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := common.RandBytes(aesgcm.NonceSize())
	if err != nil {
		return nil, err
	}

	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal, decoding the JSON payload into v.
func Open(sealed, key []byte, v any) error {
	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	ns := aesgcm.NonceSize()
	if len(sealed) < ns {
		return errors.New("sealed payload too short")
	}

	plaintext, err := aesgcm.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(plaintext, v)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
