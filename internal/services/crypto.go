package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrTokenEncryptionFailed = errors.New("token encryption failed")
	ErrTokenDecryptionFailed = errors.New("token decryption failed")
)

// TokenCipher encrypts OAuth tokens at rest with AES-256-GCM
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a cipher from a 32 byte key
func NewTokenCipher(key string) (*TokenCipher, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenEncryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenEncryptionFailed, err)
	}
	return &TokenCipher{aead: gcm}, nil
}

// Encrypt seals a token; the random nonce is prepended to the ciphertext
func (c *TokenCipher) Encrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenEncryptionFailed, err)
	}

	ciphertext := c.aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens a token produced by Encrypt
func (c *TokenCipher) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenDecryptionFailed, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrTokenDecryptionFailed)
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenDecryptionFailed, err)
	}
	return string(plaintext), nil
}
