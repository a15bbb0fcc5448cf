// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mergestack/chatbot-tui/internal/envelope"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds every transport call. Timeouts surface as the
	// uniform failure envelope, never as a hang.
	DefaultTimeout = 60 * time.Second

	// AudioFieldName is the multipart field the backend expects the audio
	// payload under.
	AudioFieldName = "audio"

	// MaxResponseSize limits response bodies to prevent memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// sharedHTTPClient pools connections across all backend requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// Encrypter is the capability the client needs from the crypto gateway.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
	EncryptJSON(v interface{}) (string, error)
}

// =============================================================================
// CLIENT
// =============================================================================

// Client issues JSON and multipart requests against the ChatBot endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	gateway    Encrypter
	decoder    *envelope.Decoder
	routes     *routeTable
	log        *zap.Logger
}

// NewClient creates a backend client.
func NewClient(baseURL string, gateway Encrypter, decoder *envelope.Decoder, routes Routes, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: sharedHTTPClient,
		timeout:    DefaultTimeout,
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		gateway:    gateway,
		decoder:    decoder,
		routes:     newRoutes(routes),
		log:        log,
	}
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// WithHTTPClient overrides the HTTP client (used by tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithRateLimit sets the request pacing limit in requests per second.
func (c *Client) WithRateLimit(perSecond float64, burst int) *Client {
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	return c
}

// SetRoutes swaps the completion routing table, e.g. after a config reload.
func (c *Client) SetRoutes(routes Routes) {
	c.routes.replace(routes)
}

// =============================================================================
// REQUEST MACHINERY
// =============================================================================

// callJSON issues a JSON request and returns the decoded envelope. Network,
// timeout, and parse failures come back as the uniform failure envelope; the
// error return is reserved for decryption problems.
func (c *Client) callJSON(ctx context.Context, method, path string, body interface{}) (envelope.Envelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.log.Error("failed to marshal request", zap.String("path", path), zap.Error(err))
			return envelope.TransportFailure(), nil
		}
		reader = bytes.NewReader(data)
	}
	return c.call(ctx, method, path, "application/json", reader)
}

// callMultipart issues a multipart POST with a single binary field.
func (c *Client) callMultipart(ctx context.Context, path, field, filename string, blob []byte) (envelope.Envelope, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err == nil {
		_, err = part.Write(blob)
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		c.log.Error("failed to build multipart body", zap.String("path", path), zap.Error(err))
		return envelope.TransportFailure(), nil
	}
	return c.call(ctx, http.MethodPost, path, w.FormDataContentType(), &buf)
}

func (c *Client) call(ctx context.Context, method, path, contentType string, body io.Reader) (envelope.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		c.log.Warn("request pacing aborted", zap.String("path", path), zap.Error(err))
		return envelope.TransportFailure(), nil
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		c.log.Error("failed to create request", zap.String("path", path), zap.Error(err))
		return envelope.TransportFailure(), nil
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return envelope.TransportFailure(), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		c.log.Warn("failed to read response", zap.String("path", path), zap.Error(err))
		return envelope.TransportFailure(), nil
	}
	c.log.Debug("request complete",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	var raw envelope.Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		c.log.Warn("malformed response envelope", zap.String("path", path), zap.Error(err))
		return envelope.TransportFailure(), nil
	}
	if raw.StatusCode == 0 {
		raw.StatusCode = resp.StatusCode
	}
	return c.decoder.Decode(raw)
}

// fault converts a failure envelope into an error value.
func fault(env envelope.Envelope) error {
	return &envelope.Fault{Message: env.Error, StatusCode: env.StatusCode}
}

// decodePayload unmarshals a decoded envelope's plaintext into out.
func decodePayload(env envelope.Envelope, out interface{}) error {
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("unexpected response payload: %w", err)
	}
	return nil
}
