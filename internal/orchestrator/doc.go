// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator coordinates submissions across the session store,
// the message timeline, the transport client, and the audio engine.
//
// All submission paths share one phase machine: Idle, Recording,
// AwaitingTranscription, AwaitingReply. A submission is accepted only from
// Idle (or Recording, for the stop half of the record toggle); everything
// else is rejected before any network traffic. Each accepted submission is
// tagged with the session selected at submission time, and its result is
// discarded if that session is no longer selected when the reply lands.
//
// Backend failures never escape as surprises: the reply path renders the
// failure text into the timeline as the assistant entry, and auxiliary
// paths (persistence, title derivation) log and continue.
package orchestrator
