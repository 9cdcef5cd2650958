package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the length of every symmetric key and X25519 scalar.
const KeySize = 32

// Key holds 32 bytes of symmetric secret material. It is stored by value
// so callers own their copy; any scratch copy made for a cryptographic
// operation must be wiped with Zero before it goes out of scope.
type Key [KeySize]byte

// NewKey returns a fresh random key.
func NewKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("envelope: read random key: %w", err)
	}
	return k, nil
}

// KeyFromHex decodes a key from its hexadecimal form, with or without a
// 0x prefix.
func KeyFromHex(s string) (Key, error) {
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("envelope: decode key hex: %w", err)
	}
	if len(raw) != KeySize {
		return Key{}, fmt.Errorf("envelope: key must be %d bytes, got %d", KeySize, len(raw))
	}
	var k Key
	copy(k[:], raw)
	Wipe(raw)
	return k, nil
}

// Zero overwrites the key material.
func (k *Key) Zero() {
	Wipe(k[:])
}

// Hex returns the 0x-prefixed hexadecimal form. Only the session record
// serializer should call this; everything else logs Fingerprint.
func (k Key) Hex() string {
	return "0x" + hex.EncodeToString(k[:])
}

// Fingerprint returns a short non-reversible identifier safe for logs.
func (k Key) Fingerprint() string {
	sum := sha256.Sum256(k[:])
	return hex.EncodeToString(sum[:4])
}

// String implements fmt.Stringer with the fingerprint so that key
// material never leaks through formatted output.
func (k Key) String() string {
	return "key:" + k.Fingerprint()
}

// MarshalJSON writes the 0x-hex form, used by the serialized session
// record only.
func (k Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Hex())
}

// UnmarshalJSON reads the 0x-hex form.
func (k *Key) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := KeyFromHex(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// GenerateKeyPair returns a fresh X25519 secret and the hexadecimal
// encoding of its public point. The secret is clamped per RFC 7748.
func GenerateKeyPair() (Key, string, error) {
	priv, err := NewKey()
	if err != nil {
		return Key{}, "", err
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		priv.Zero()
		return Key{}, "", fmt.Errorf("envelope: derive public key: %w", err)
	}
	return priv, hex.EncodeToString(pub), nil
}
