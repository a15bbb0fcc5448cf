// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// FallbackMessage is the fixed user-facing text for transport-level
// failures, matching the message the web client shows.
const FallbackMessage = "Sorry our AI facilities are currently down, please try again later."

// =============================================================================
// WIRE SHAPES
// =============================================================================

// Raw is the wire-level response envelope before decryption.
type Raw struct {
	Success    bool   `json:"success"`
	Data       string `json:"data"`
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
}

// Envelope is a decoded response: on success Data holds plaintext JSON, on
// failure Error and StatusCode carry the backend-reported failure verbatim.
type Envelope struct {
	Success    bool
	Data       json.RawMessage
	Error      string
	StatusCode int
}

// Failure builds a failure envelope with the given message and status.
func Failure(message string, statusCode int) Envelope {
	return Envelope{Success: false, Error: message, StatusCode: statusCode}
}

// TransportFailure is the uniform envelope for network, parse, and timeout
// failures. Callers never see a raw transport error.
func TransportFailure() Envelope {
	return Failure(FallbackMessage, http.StatusInternalServerError)
}

// =============================================================================
// DECODER
// =============================================================================

// Decrypter is the capability the decoder needs from the crypto gateway.
type Decrypter interface {
	Decrypt(ciphertext string) (json.RawMessage, error)
}

// Decoder turns raw envelopes into decoded ones.
type Decoder struct {
	gateway Decrypter
}

// NewDecoder creates a decoder backed by the given gateway.
func NewDecoder(gateway Decrypter) *Decoder {
	return &Decoder{gateway: gateway}
}

// Decode normalizes a raw envelope. Failure envelopes pass through with
// error and status preserved and data left uninterpreted. Success envelopes
// get Data replaced by the decrypted plaintext; a decryption problem is the
// only condition reported as an error.
func (d *Decoder) Decode(raw Raw) (Envelope, error) {
	if !raw.Success {
		return Failure(raw.Error, raw.StatusCode), nil
	}
	data, err := d.gateway.Decrypt(raw.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to decode response data: %w", err)
	}
	return Envelope{
		Success:    true,
		Data:       data,
		StatusCode: raw.StatusCode,
	}, nil
}

// =============================================================================
// FAULT
// =============================================================================

// Fault is a failure envelope carried as an error value. Transport and
// backend failures on typed client calls are reported this way so callers
// have a single branch for "render this message instead of a reply".
type Fault struct {
	Message    string
	StatusCode int
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("backend failure (status %d): %s", f.StatusCode, f.Message)
}

// AsFault extracts a Fault from an error chain.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	ok := errors.As(err, &f)
	return f, ok
}

// FaultMessage returns the user-facing text for an error on the reply path:
// the fault's message when the backend reported one, the fixed fallback for
// everything else (decryption failures included).
func FaultMessage(err error) string {
	if f, ok := AsFault(err); ok && f.Message != "" {
		return f.Message
	}
	return FallbackMessage
}
