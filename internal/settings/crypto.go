package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	keySize    = 32 // AES-256
	iterations = 100000

	defaultPassphrase = "technical-analyst-local-settings"
)

var (
	// ErrCiphertextTooShort is returned for truncated input
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	// ErrDecryptFailed covers a wrong passphrase and corrupted data alike
	ErrDecryptFailed = errors.New("decryption failed: invalid passphrase or corrupted data")
)

// Crypto seals the settings file with AES-256-GCM under a PBKDF2-derived key.
// The layout is salt || nonce || ciphertext.
type Crypto struct {
	passphrase string
}

// NewCrypto creates a Crypto; an empty passphrase uses a fixed local default
func NewCrypto(passphrase string) (*Crypto, error) {
	if passphrase == "" {
		passphrase = defaultPassphrase
	}
	return &Crypto{passphrase: passphrase}, nil
}

func (c *Crypto) deriveKey(salt []byte) []byte {
	return pbkdf2.Key([]byte(c.passphrase), salt, iterations, keySize, sha256.New)
}

func (c *Crypto) gcm(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with a fresh salt and nonce
func (c *Crypto) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}

	aead, err := c.gcm(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	return aead.Seal(append(out, nonce...), nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt
func (c *Crypto) Decrypt(data []byte) ([]byte, error) {
	if len(data) < saltSize {
		return nil, ErrCiphertextTooShort
	}

	aead, err := c.gcm(data[:saltSize])
	if err != nil {
		return nil, err
	}

	rest := data[saltSize:]
	if len(rest) < aead.NonceSize() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := aead.Open(nil, rest[:aead.NonceSize()], rest[aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
