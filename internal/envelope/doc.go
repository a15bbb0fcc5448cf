// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package envelope normalizes backend replies into the uniform
// success/data/error/statusCode shape used by every ChatBot endpoint.
//
// Backend-reported failures are values, never panics: a failed envelope
// passes through the decoder unchanged with its data left opaque. Only a
// successful envelope has its data decrypted, and only a decryption problem
// is reported as a Go error.
package envelope
