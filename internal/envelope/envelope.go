// Package envelope implements the WalletConnect v2 crypto envelope: X25519
// key agreement, HKDF key derivation, topic computation and the type-0
// authenticated wire envelope (version byte ++ nonce ++ ciphertext).
package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	nonceSize = chacha20poly1305.NonceSize

	// envelopeType0 is the only envelope version currently produced.
	// The byte is reserved for future envelope formats and is not
	// branched on when opening.
	envelopeType0 = 0x00
)

var (
	// ErrEncoding is returned when the input is not valid base64 or is
	// too short to hold a version byte and nonce. Detected before any
	// cryptographic work.
	ErrEncoding = errors.New("envelope: malformed encoding")

	// ErrDecrypt is returned for every AEAD opening failure. It is
	// deliberately opaque: distinguishing nonce, tag and ciphertext
	// problems would hand an oracle to the peer.
	ErrDecrypt = errors.New("envelope: decryption failed")
)

// DeriveSymkeyTopic performs X25519 between the local secret and the
// responder's public key, expands the shared secret with HKDF-SHA256
// (no salt, empty info) into a fresh 32-byte symmetric key, and computes
// the session topic as hex(SHA-256(symkey)).
//
// ok is false when the responder key does not decode to exactly 32 bytes
// or the exchange degenerates; that is "cannot pair with this peer", not
// an error. Scratch copies of the secret and the shared point are wiped
// on every path.
func DeriveSymkeyTopic(responderPublicKey string, localSecret Key) (topic string, symKey Key, ok bool) {
	scalar := make([]byte, KeySize)
	copy(scalar, localSecret[:])
	defer Wipe(scalar)

	peer, err := hex.DecodeString(responderPublicKey)
	if err != nil || len(peer) != KeySize {
		return "", Key{}, false
	}

	shared, err := curve25519.X25519(scalar, peer)
	if err != nil {
		return "", Key{}, false
	}
	defer Wipe(shared)

	kdf := hkdf.New(sha256.New, shared, nil, nil)
	if _, err := io.ReadFull(kdf, symKey[:]); err != nil {
		symKey.Zero()
		return "", Key{}, false
	}

	return TopicFromKey(symKey), symKey, true
}

// TopicFromKey computes the deterministic topic addressing the channel
// encrypted under key.
func TopicFromKey(key Key) string {
	sum := sha256.Sum256(key[:])
	return hex.EncodeToString(sum[:])
}

// EncryptAndEncode seals plaintext under key with ChaCha20-Poly1305 and a
// fresh random nonce, frames it as a type-0 envelope and returns the
// padded standard-base64 encoding. Nonces must never repeat under the
// same key, so each call draws from crypto/rand; a failing system random
// source is not a recoverable condition.
func EncryptAndEncode(key Key, plaintext []byte) string {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		// Key is a 32-byte array; a size error here is a programming
		// error in this package, not a runtime condition.
		panic(fmt.Sprintf("envelope: new aead: %v", err))
	}

	buf := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+aead.Overhead())
	buf[0] = envelopeType0
	if _, err := rand.Read(buf[1 : 1+nonceSize]); err != nil {
		panic(fmt.Sprintf("envelope: read nonce: %v", err))
	}

	sealed := aead.Seal(buf, buf[1:1+nonceSize], plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed)
}

// DecodeDecrypt reverses EncryptAndEncode. The input is attacker
// controlled: the decoded buffer is bounds-checked before any slicing and
// every failure mode collapses into the opaque ErrDecrypt. No partial
// plaintext is ever returned.
func DecodeDecrypt(key Key, encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrEncoding
	}
	if len(raw) < 1+nonceSize {
		return nil, ErrEncoding
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		panic(fmt.Sprintf("envelope: new aead: %v", err))
	}

	plaintext, err := aead.Open(nil, raw[1:1+nonceSize], raw[1+nonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
