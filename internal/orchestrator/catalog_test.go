package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLeaderCatalogIncludesSessionBookkeepingTools(t *testing.T) {
	names := make(map[string]bool)
	for _, tl := range LeaderCatalog() {
		names[tl.Function.Name] = true
	}
	assert.True(t, names[ToolWait])
	assert.True(t, names[ToolSetConversationTitle])
	assert.True(t, names[ToolChatroomSend])
}

func TestCollaboratorCatalogExcludesSessionBookkeepingTools(t *testing.T) {
	names := make(map[string]bool)
	for _, tl := range CollaboratorCatalog() {
		names[tl.Function.Name] = true
	}
	assert.True(t, names[ToolChatroomSend])
	assert.False(t, names[ToolWait])
	assert.False(t, names[ToolSetConversationTitle])
}

func TestCatalogSchemasAreValidJSON(t *testing.T) {
	for _, tl := range append(LeaderCatalog(), CollaboratorCatalog()...) {
		assert.NotEmpty(t, tl.Function.Parameters)
	}
}
