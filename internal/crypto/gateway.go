// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// KeySize is the size of the AES-256 key (32 bytes / 256 bits).
const KeySize = 32

// IVSize is the size of the CBC initialization vector (one AES block).
const IVSize = aes.BlockSize

// PBKDF2Iterations is the iteration count for passphrase-derived keys.
const PBKDF2Iterations = 600000

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidKey indicates the configured key or IV could not be parsed.
	ErrInvalidKey = errors.New("invalid encryption key or IV")
	// ErrInvalidCiphertext indicates the ciphertext format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	// ErrDecryptionFailed indicates decryption produced garbage (wrong key or
	// tampered data).
	ErrDecryptionFailed = errors.New("decryption failed")
)

// =============================================================================
// GATEWAY
// =============================================================================

// Gateway encrypts and decrypts payload strings with the pre-shared key/IV.
// It is stateless and safe for concurrent use.
type Gateway struct {
	block cipher.Block
	iv    []byte
}

// NewGateway creates a gateway from hex-encoded key and IV values.
func NewGateway(keyHex, ivHex string) (*Gateway, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not hex: %v", ErrInvalidKey, err)
	}
	return newGateway(key, ivHex)
}

// NewGatewayFromPassphrase derives the AES key from a passphrase and salt
// using PBKDF2-SHA-256, for deployments that do not ship a raw hex key.
func NewGatewayFromPassphrase(passphrase, saltHex, ivHex string) (*Gateway, error) {
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, fmt.Errorf("%w: salt is not hex: %v", ErrInvalidKey, err)
	}
	key := pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New)
	return newGateway(key, ivHex)
}

func newGateway(key []byte, ivHex string) (*Gateway, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("%w: IV is not hex: %v", ErrInvalidKey, err)
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: IV must be %d bytes, got %d", ErrInvalidKey, IVSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &Gateway{block: block, iv: iv}, nil
}

// =============================================================================
// ENCRYPT / DECRYPT
// =============================================================================

// Encrypt encrypts a plaintext string. The string is JSON-encoded first to
// match the service contract, then CBC-encrypted and base64-emitted.
func (g *Gateway) Encrypt(plaintext string) (string, error) {
	return g.EncryptJSON(plaintext)
}

// EncryptJSON JSON-encodes an arbitrary value and encrypts the result.
func (g *Gateway) EncryptJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode plaintext: %w", err)
	}
	padded := padPKCS7(data, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(g.block, g.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt decrypts a base64 ciphertext and returns the plaintext JSON.
// Malformed ciphertext or bad padding is an error, never empty text.
func (g *Gateway) Decrypt(ciphertext string) (json.RawMessage, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of the block size", ErrInvalidCiphertext, len(raw))
	}
	plain := make([]byte, len(raw))
	cipher.NewCBCDecrypter(g.block, g.iv).CryptBlocks(plain, raw)
	plain, err = unpadPKCS7(plain, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(plain) {
		return nil, fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecryptionFailed)
	}
	if !json.Valid(plain) {
		return nil, fmt.Errorf("%w: plaintext is not valid JSON", ErrDecryptionFailed)
	}
	return json.RawMessage(plain), nil
}

// DecryptString decrypts a ciphertext whose plaintext is a JSON string.
func (g *Gateway) DecryptString(ciphertext string) (string, error) {
	raw, err := g.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: plaintext is not a JSON string", ErrDecryptionFailed)
	}
	return s, nil
}

// =============================================================================
// PKCS#7 PADDING
// =============================================================================

func padPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrDecryptionFailed)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryptionFailed)
		}
	}
	return data[:len(data)-n], nil
}
