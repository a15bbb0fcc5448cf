// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// STATE
// =============================================================================

// State is the capture lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateRecording
	StateStopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

var (
	// ErrBusy indicates a capture session already exists.
	ErrBusy = errors.New("capture already in progress")
	// ErrNotRecording indicates there is no capture session to stop.
	ErrNotRecording = errors.New("not recording")
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// samplePeriod approximates animation-frame granularity for the level
	// meter.
	samplePeriod = 16 * time.Millisecond

	// levelWindow is how many recent samples feed each level computation.
	levelWindow = 2048

	// readChunk is the capture read size.
	readChunk = 4096
)

// Blob is an assembled recording ready for upload.
type Blob struct {
	Data     []byte
	Filename string
	Duration time.Duration
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns the recording session: the live stream, the accumulating PCM
// buffer, and the published level vector. One session at a time.
type Engine struct {
	mu     sync.Mutex
	state  State
	stream io.ReadCloser
	format Format
	pcm    []byte
	levels [3]float64

	stop chan struct{}
	wg   sync.WaitGroup

	source Source
	log    *zap.Logger
}

// NewEngine creates an idle engine over the given source.
func NewEngine(source Source, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{source: source, log: log}
}

// State returns the current lifecycle phase.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Recording reports whether a capture session is active. It turns false the
// moment a stop is issued, before teardown completes.
func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateRecording
}

// Levels returns the current low/mid/high amplitude vector, each in [0,1].
func (e *Engine) Levels() [3]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.levels
}

// =============================================================================
// START
// =============================================================================

// Start acquires the microphone and begins recording. On acquisition
// failure the engine returns to Idle and recording never begins.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrBusy
	}
	e.state = StateAcquiring
	e.mu.Unlock()

	stream, format, err := e.source.Acquire(ctx)
	if err != nil {
		e.mu.Lock()
		e.state = StateIdle
		e.mu.Unlock()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	e.mu.Lock()
	e.stream = stream
	e.format = format
	e.pcm = e.pcm[:0]
	e.levels = [3]float64{}
	e.stop = make(chan struct{})
	e.state = StateRecording
	stopCh := e.stop
	e.mu.Unlock()

	e.wg.Add(2)
	go e.captureLoop(stream)
	go e.sampleLoop(stopCh, format)
	e.log.Debug("recording started", zap.Int("sample_rate", format.SampleRate))
	return nil
}

// captureLoop accumulates PCM until the stream ends or is closed.
func (e *Engine) captureLoop(stream io.Reader) {
	defer e.wg.Done()
	buf := make([]byte, readChunk)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			e.mu.Lock()
			e.pcm = append(e.pcm, buf[:n]...)
			e.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// sampleLoop publishes band levels at animation-frame granularity until
// cancelled. It must never publish after the stop channel closes.
func (e *Engine) sampleLoop(stop <-chan struct{}, format Format) {
	defer e.wg.Done()
	ticker := time.NewTicker(samplePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			window := e.recentWindow()
			bands := BandLevels(window)
			e.mu.Lock()
			select {
			case <-stop:
				// Stop raced the tick; the teardown owns the levels now.
			default:
				e.levels = bands
			}
			e.mu.Unlock()
		}
	}
}

// recentWindow decodes the trailing levelWindow samples of the buffer.
func (e *Engine) recentWindow() []int16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.pcm) / 2
	if n == 0 {
		return nil
	}
	if n > levelWindow {
		n = levelWindow
	}
	tail := e.pcm[len(e.pcm)-n*2:]
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(tail[i*2:]))
	}
	return samples
}

// =============================================================================
// STOP
// =============================================================================

// Stop ends the capture session and assembles the recording. The sampler is
// cancelled synchronously, the stream closed, the capture process released,
// and the buffered PCM wrapped into a single WAV blob. Recording() reports
// false from the moment Stop is entered.
func (e *Engine) Stop() (Blob, error) {
	pcm, format, err := e.teardown()
	if err != nil {
		return Blob{}, err
	}
	blob := Blob{
		Data:     EncodeWAV(pcm, format),
		Filename: "recording.wav",
		Duration: pcmDuration(len(pcm), format),
	}
	e.log.Debug("recording stopped",
		zap.Int("pcm_bytes", len(pcm)),
		zap.Duration("duration", blob.Duration))
	return blob, nil
}

// Abort ends the capture session and discards the recording. Used on error
// paths so no stream or sampler leaks across transitions.
func (e *Engine) Abort() {
	e.teardown()
}

func (e *Engine) teardown() ([]byte, Format, error) {
	e.mu.Lock()
	if e.state != StateRecording {
		e.mu.Unlock()
		return nil, Format{}, ErrNotRecording
	}
	e.state = StateStopping
	stream := e.stream
	close(e.stop)
	e.mu.Unlock()

	// Closing the stream unblocks the capture loop; the closed stop channel
	// ends the sampler. Wait for both before touching the buffer.
	stream.Close()
	e.wg.Wait()

	e.mu.Lock()
	pcm := e.pcm
	format := e.format
	e.pcm = nil
	e.stream = nil
	e.levels = [3]float64{}
	e.state = StateIdle
	e.mu.Unlock()
	return pcm, format, nil
}

func pcmDuration(byteLen int, f Format) time.Duration {
	bytesPerSecond := f.SampleRate * f.Channels * f.BitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(byteLen) * time.Second / time.Duration(bytesPerSecond)
}
