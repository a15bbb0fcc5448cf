// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package crypto implements the payload cipher shared with the ChatBot
// backend.
//
// The service speaks CryptoJS AES: AES-256-CBC with PKCS#7 padding, a fixed
// pre-shared key and IV, JSON-encoded plaintext, and base64 ciphertext.
// Both sides are configured with the same hex-encoded key/IV pair, so the
// cipher is deterministic - callers must not rely on ciphertext uniqueness
// across identical plaintexts.
//
// When a raw hex key is not available, a key can be derived from a
// passphrase and salt with PBKDF2-SHA-256.
package crypto
