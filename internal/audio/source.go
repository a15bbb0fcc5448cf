// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// =============================================================================
// FORMAT
// =============================================================================

// Format describes the raw PCM stream a source produces.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is 16 kHz mono 16-bit, the shape the transcription endpoint
// expects.
func DefaultFormat() Format {
	return Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

// =============================================================================
// SOURCE
// =============================================================================

// ErrNoDevice indicates the microphone could not be acquired (no device,
// permission denied, capture command missing).
var ErrNoDevice = errors.New("microphone unavailable")

// Source yields a live PCM stream from an input device.
type Source interface {
	// Acquire opens the device and starts capture. The returned stream
	// delivers raw PCM in the returned format until closed.
	Acquire(ctx context.Context) (io.ReadCloser, Format, error)
}

// =============================================================================
// COMMAND SOURCE
// =============================================================================

// CommandSource captures by running an external recorder command that
// writes raw PCM to stdout.
type CommandSource struct {
	// Command is the argv of the capture process. Empty means the default
	// arecord invocation matching DefaultFormat.
	Command []string
	Format  Format
}

// DefaultCaptureCommand records 16 kHz mono 16-bit little-endian PCM.
func DefaultCaptureCommand() []string {
	return []string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"}
}

// Acquire starts the capture process. Closing the returned stream kills it.
func (s *CommandSource) Acquire(ctx context.Context) (io.ReadCloser, Format, error) {
	argv := s.Command
	if len(argv) == 0 {
		argv = DefaultCaptureCommand()
	}
	format := s.Format
	if format.SampleRate == 0 {
		format = DefaultFormat()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, Format{}, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, Format{}, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	return &processStream{ReadCloser: stdout, cmd: cmd}, format, nil
}

// processStream ties the stream's Close to the capture process lifetime.
type processStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *processStream) Close() error {
	err := p.ReadCloser.Close()
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	p.cmd.Wait()
	return err
}
