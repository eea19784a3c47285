package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Encryptor seals device credentials so configuration files can carry
// community strings without exposing them.
type Encryptor interface {
	Encrypt(plain string) (string, error)
	Decrypt(cipherText string) (string, error)
}

type AesGcmEncryptor struct {
	aead cipher.AEAD
}

func NewAesGcmEncryptor(key []byte) (*AesGcmEncryptor, error) {
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AesGcmEncryptor{aead: aead}, nil
}

// ParseKey accepts a 32-byte key as 64 hex digits, standard base64 or the raw
// string itself.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == 64 {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if len(s) == 32 {
		return []byte(s), nil
	}
	return nil, fmt.Errorf("encryption key must decode to 32 bytes")
}

func (e *AesGcmEncryptor) Encrypt(plain string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *AesGcmEncryptor) Decrypt(cipherText string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cipherText))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(data) < e.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := data[:e.aead.NonceSize()], data[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}
