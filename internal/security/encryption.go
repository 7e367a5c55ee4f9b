package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// storeSecret is the build-embedded symmetric secret protecting the license
// file. A static shared secret raises the cost of casual editing only; it is
// not a defense against an attacker who extracts it from the binary. That
// limitation is accepted by the threat model.
const storeSecret = "NexusSky-License-Store-Secret-v1-Do-Not-Share"

// scrypt parameters sized for a one-shot derivation at process start.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32 // AES-256

	nonceSize = 12
	saltSize  = 32
)

// ErrCiphertextTooShort indicates a truncated or garbage payload.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Seal encrypts plaintext with AES-256-GCM under a key derived from the
// embedded secret. Output layout: salt || nonce || ciphertext+tag. A fresh
// salt and nonce are drawn per call, so sealing the same record twice never
// produces the same bytes.
func Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext cannot be empty")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, saltSize+nonceSize+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Open decrypts a payload produced by Seal. Any tampering, truncation, or
// wrong-key condition surfaces as an error; GCM authentication covers the
// whole ciphertext.
func Open(payload []byte) ([]byte, error) {
	if len(payload) < saltSize+nonceSize+1 {
		return nil, ErrCiphertextTooShort
	}

	salt := payload[:saltSize]
	nonce := payload[saltSize : saltSize+nonceSize]
	sealed := payload[saltSize+nonceSize:]

	gcm, err := newGCM(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// newGCM derives the AES-256 key from the embedded secret and the given salt
func newGCM(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(storeSecret), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// wipe overwrites key material before it is garbage collected
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
