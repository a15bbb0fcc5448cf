// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audio manages microphone capture for voice input.
//
// The engine runs a strict lifecycle: Idle -> Acquiring -> Recording ->
// Stopping -> Idle. While recording, a ticker-driven sampler reduces the
// most recent PCM window to a three-band (low/mid/high) amplitude vector
// for the level meter; the sampler is cancelled synchronously on stop and
// never publishes after teardown. Stopping assembles the accumulated PCM
// into a single WAV blob for upload.
//
// Microphone access is abstracted behind Source so tests can feed
// deterministic PCM; the default source shells out to a capture command
// (arecord on Linux).
package audio
