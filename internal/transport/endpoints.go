// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// =============================================================================
// ENDPOINT PATHS
// =============================================================================

const (
	pathChats             = "/api/chats"
	pathMessages          = "/api/messages"
	pathTitle             = "/api/chats/title"
	pathTranscriptions    = "/api/transcriptions"
	pathCompletionDefault = "/api/chat-completion"
)

// =============================================================================
// COMPLETION ROUTING
// =============================================================================

// Routes maps model identifiers to completion endpoint paths. Models absent
// from the table use the default path.
type Routes struct {
	// Default is the completion path for models without an explicit route.
	Default string
	// ByModel holds per-model endpoint overrides.
	ByModel map[string]string
}

type routeTable struct {
	mu     sync.RWMutex
	routes Routes
}

func newRoutes(r Routes) *routeTable {
	t := &routeTable{}
	t.replace(r)
	return t
}

func (t *routeTable) replace(r Routes) {
	if r.Default == "" {
		r.Default = pathCompletionDefault
	}
	t.mu.Lock()
	t.routes = r
	t.mu.Unlock()
}

func (t *routeTable) pathFor(model string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.routes.ByModel[model]; ok && p != "" {
		return p
	}
	return t.routes.Default
}

// =============================================================================
// WIRE PAYLOADS
// =============================================================================

// Chat is a server-tracked conversation thread. A nil Title means
// "untitled - pending derivation".
type Chat struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessagePair is one stored human/assistant exchange.
type MessagePair struct {
	HumanMessage string `json:"HumanMessage"`
	AIMessage    string `json:"AIMessage"`
}

type completionRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	ChatID string `json:"chatId"`
}

type titleRequest struct {
	Prompt string `json:"prompt"`
}

type updateTitleRequest struct {
	Title string `json:"title"`
}

type saveMessageRequest struct {
	HumanMessage string `json:"humanMessage"`
	AIMessage    string `json:"aiMessage"`
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// ListChats fetches every chat session, in server storage order.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	env, err := c.callJSON(ctx, http.MethodGet, pathChats, nil)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fault(env)
	}
	var chats []Chat
	if err := decodePayload(env, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// CreateChat allocates a new chat session server-side.
func (c *Client) CreateChat(ctx context.Context) (Chat, error) {
	env, err := c.callJSON(ctx, http.MethodPost, pathChats, nil)
	if err != nil {
		return Chat{}, err
	}
	if !env.Success {
		return Chat{}, fault(env)
	}
	var payload struct {
		Chat Chat `json:"chat"`
	}
	if err := decodePayload(env, &payload); err != nil {
		return Chat{}, err
	}
	return payload.Chat, nil
}

// DeleteChat removes a chat session and its messages.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	env, err := c.callJSON(ctx, http.MethodDelete, pathChats+"/"+url.PathEscape(chatID), nil)
	if err != nil {
		return err
	}
	if !env.Success {
		return fault(env)
	}
	return nil
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// Messages fetches the stored message pairs for a chat, oldest first.
func (c *Client) Messages(ctx context.Context, chatID string) ([]MessagePair, error) {
	env, err := c.callJSON(ctx, http.MethodGet, pathMessages+"/"+url.PathEscape(chatID), nil)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fault(env)
	}
	var pairs []MessagePair
	if err := decodePayload(env, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// SaveMessage persists one human/assistant pair against a chat. Both sides
// of the pair are encrypted with the payload cipher before upload.
func (c *Client) SaveMessage(ctx context.Context, chatID, human, assistant string) error {
	humanCT, err := c.gateway.Encrypt(human)
	if err != nil {
		return err
	}
	assistantCT, err := c.gateway.Encrypt(assistant)
	if err != nil {
		return err
	}
	env, err := c.callJSON(ctx, http.MethodPost, pathMessages+"/"+url.PathEscape(chatID), saveMessageRequest{
		HumanMessage: humanCT,
		AIMessage:    assistantCT,
	})
	if err != nil {
		return err
	}
	if !env.Success {
		return fault(env)
	}
	return nil
}

// =============================================================================
// TITLE OPERATIONS
// =============================================================================

// DeriveTitle asks the backend to summarize the first human message into a
// chat title.
func (c *Client) DeriveTitle(ctx context.Context, firstHumanMessage string) (string, error) {
	ct, err := c.gateway.Encrypt(firstHumanMessage)
	if err != nil {
		return "", err
	}
	env, err := c.callJSON(ctx, http.MethodPost, pathTitle, titleRequest{Prompt: ct})
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", fault(env)
	}
	var payload struct {
		Title string `json:"title"`
	}
	if err := decodePayload(env, &payload); err != nil {
		return "", err
	}
	return payload.Title, nil
}

// UpdateTitle persists a derived title back to the chat record.
func (c *Client) UpdateTitle(ctx context.Context, chatID, title string) error {
	env, err := c.callJSON(ctx, http.MethodPut, pathChats+"/"+url.PathEscape(chatID), updateTitleRequest{Title: title})
	if err != nil {
		return err
	}
	if !env.Success {
		return fault(env)
	}
	return nil
}

// =============================================================================
// COMPLETION AND TRANSCRIPTION
// =============================================================================

// Complete submits an encrypted prompt to the completion endpoint selected
// by the routing table and returns the assistant's reply text.
func (c *Client) Complete(ctx context.Context, model, chatID, prompt string) (string, error) {
	ct, err := c.gateway.Encrypt(prompt)
	if err != nil {
		return "", err
	}
	env, err := c.callJSON(ctx, http.MethodPost, c.routes.pathFor(model), completionRequest{
		Prompt: ct,
		Model:  model,
		ChatID: chatID,
	})
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", fault(env)
	}
	var reply string
	if err := decodePayload(env, &reply); err != nil {
		return "", err
	}
	return reply, nil
}

// Transcribe uploads an audio blob and returns the transcribed text.
func (c *Client) Transcribe(ctx context.Context, blob []byte, filename string) (string, error) {
	env, err := c.callMultipart(ctx, pathTranscriptions, AudioFieldName, filename, blob)
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", fault(env)
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := decodePayload(env, &payload); err != nil {
		return "", err
	}
	return payload.Text, nil
}
