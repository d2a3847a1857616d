package settings

import (
	"bytes"
	"errors"
	"testing"
)

func TestCrypto_RoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		passphrase string
		plaintext  []byte
	}{
		{"preferences document", "test-passphrase", []byte(`{"preferences":{"darkMode":true}}`)},
		{"default passphrase", "", []byte("test data")},
		{"empty plaintext", "test", []byte{}},
		{"large plaintext", "test", bytes.Repeat([]byte{0, 1, 2, 3}, 64*1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCrypto(tt.passphrase)
			if err != nil {
				t.Fatalf("NewCrypto() error = %v", err)
			}
			sealed, err := c.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if len(sealed) <= len(tt.plaintext)+saltSize {
				t.Errorf("len(sealed) = %d, want more than plaintext plus salt", len(sealed))
			}
			opened, err := c.Decrypt(sealed)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(opened, tt.plaintext) {
				t.Errorf("Decrypt() mismatch, len %d want %d", len(opened), len(tt.plaintext))
			}
		})
	}
}

func TestCrypto_FreshSaltPerCall(t *testing.T) {
	c, _ := NewCrypto("test")
	a, _ := c.Encrypt([]byte("same"))
	b, _ := c.Encrypt([]byte("same"))
	if bytes.Equal(a, b) {
		t.Error("two encryptions produced identical output")
	}
	if bytes.Equal(a[:saltSize], b[:saltSize]) {
		t.Error("two encryptions reused the salt")
	}
}

func TestCrypto_DecryptFailures(t *testing.T) {
	c, _ := NewCrypto("right")
	other, _ := NewCrypto("wrong")
	sealed, err := c.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF

	tests := []struct {
		name    string
		crypto  *Crypto
		data    []byte
		wantErr error
	}{
		{"empty", c, nil, ErrCiphertextTooShort},
		{"shorter than salt", c, []byte{1, 2, 3}, ErrCiphertextTooShort},
		{"salt only", c, make([]byte, saltSize), ErrCiphertextTooShort},
		{"garbage", c, []byte("this is not encrypted data at all"), ErrDecryptFailed},
		{"tampered", c, tampered, ErrDecryptFailed},
		{"wrong passphrase", other, sealed, ErrDecryptFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.crypto.Decrypt(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
