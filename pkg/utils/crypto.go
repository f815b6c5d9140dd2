package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const encryptionSalt = "peakpoint-totp-encryption"

var ErrEncryptionNotConfigured = errors.New("encryption not configured")

// SecretCipher seals short secrets (TOTP seeds) with AES-GCM under a key
// derived from an application secret.
type SecretCipher struct {
	aead cipher.AEAD
}

func NewSecretCipher(secret string) (*SecretCipher, error) {
	if secret == "" {
		return nil, ErrEncryptionNotConfigured
	}

	hkdfReader := hkdf.New(
		sha256.New,
		[]byte(secret),
		[]byte(encryptionSalt),
		[]byte("encryption-key"),
	)
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SecretCipher{aead: gcm}, nil
}

func (s *SecretCipher) Encrypt(plaintext string) (string, error) {
	if s == nil || s.aead == nil {
		return "", ErrEncryptionNotConfigured
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *SecretCipher) Decrypt(encrypted string) (string, error) {
	if s == nil || s.aead == nil {
		return "", ErrEncryptionNotConfigured
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", err
	}

	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// DecryptOrPlaintext accepts secrets written before encryption was enabled.
func (s *SecretCipher) DecryptOrPlaintext(value string) string {
	if value == "" {
		return ""
	}
	decrypted, err := s.Decrypt(value)
	if err != nil {
		return value
	}
	return decrypted
}
