// Package vault encrypts, caches, and audits access to bank API tokens.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jfourney/divvy/internal/common"
)

const keyLength = 32 // AES-256

// deriveKey turns the configured secret into a 32-byte AES key by truncating
// or zero-padding its UTF-8 bytes. The persisted format depends on this exact
// derivation; changing it orphans every stored credential.
func deriveKey(secret string) []byte {
	key := make([]byte, keyLength)
	copy(key, secret)
	return key
}

// encryptToken encrypts a plaintext token as base64(IV || AES-256-CBC(padded
// plaintext)), with a freshly generated random IV.
func encryptToken(plaintext, secret string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: token must not be empty", common.ErrValidation)
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pkcs5Pad([]byte(plaintext), aes.BlockSize)

	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate IV: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// decryptToken reverses encryptToken. A corrupted blob or a wrong key fails
// with common.ErrDecryptFailed; it never silently returns an empty token.
func decryptToken(encoded, secret string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", common.ErrDecryptFailed, err)
	}
	if len(raw) < 2*aes.BlockSize || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", common.ErrDecryptFailed, len(raw))
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	iv, ciphertext := raw[:aes.BlockSize], raw[aes.BlockSize:]
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs5Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryptFailed, err)
	}
	if len(unpadded) == 0 {
		return "", fmt.Errorf("%w: empty token", common.ErrDecryptFailed)
	}

	return string(unpadded), nil
}

func pkcs5Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs5Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("invalid padding byte %d", padding)
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-padding], nil
}
