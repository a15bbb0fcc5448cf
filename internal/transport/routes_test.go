// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteTablePathFor(t *testing.T) {
	table := newRoutes(Routes{
		Default: "/api/chat-completion",
		ByModel: map[string]string{
			"mergestack-assistant": "/api/chat-completion-assistant",
		},
	})

	assert.Equal(t, "/api/chat-completion-assistant", table.pathFor("mergestack-assistant"))
	assert.Equal(t, "/api/chat-completion", table.pathFor("gpt-4"))
	assert.Equal(t, "/api/chat-completion", table.pathFor(""))
}

func TestRouteTableEmptyDefault(t *testing.T) {
	table := newRoutes(Routes{})
	assert.Equal(t, pathCompletionDefault, table.pathFor("anything"))
}

func TestRouteTableReplace(t *testing.T) {
	table := newRoutes(Routes{Default: "/api/chat-completion"})
	table.replace(Routes{
		Default: "/api/v2/chat-completion",
		ByModel: map[string]string{"gpt-4": "/api/v2/gpt"},
	})

	assert.Equal(t, "/api/v2/gpt", table.pathFor("gpt-4"))
	assert.Equal(t, "/api/v2/chat-completion", table.pathFor("gemini-1.5-flash"))
}

func TestRouteTableBlankOverrideFallsBack(t *testing.T) {
	table := newRoutes(Routes{
		Default: "/api/chat-completion",
		ByModel: map[string]string{"gpt-4": ""},
	})
	assert.Equal(t, "/api/chat-completion", table.pathFor("gpt-4"))
}
