package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/llm"
)

func TestConversation_Recent(t *testing.T) {
	conv := NewConversation(uuid.New(), "user-1")
	for _, text := range []string{"a", "b", "c", "d"} {
		conv.Append(llm.Message{Role: llm.RoleUser, Content: text})
	}

	recent := conv.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Content)
	assert.Equal(t, "d", recent[1].Content)

	assert.Len(t, conv.Recent(10), 4)
	assert.Len(t, conv.Recent(0), 4)
	assert.Len(t, conv.Messages, 4, "truncation is read-time only")
}

func TestConversation_LastExchange(t *testing.T) {
	conv := NewConversation(uuid.New(), "user-1")
	conv.Append(
		llm.Message{Role: llm.RoleSystem, Content: "instructions"},
		llm.Message{Role: llm.RoleUser, Content: "first question"},
		llm.Message{Role: llm.RoleAssistant, Content: "first answer"},
		llm.Message{Role: llm.RoleUser, Content: "second question"},
		llm.Message{Role: llm.RoleAssistant, Content: "second answer"},
	)

	user, assistant := conv.LastExchange()
	assert.Equal(t, "second question", user)
	assert.Equal(t, "second answer", assistant)
}

func TestConversation_LastExchangeEmpty(t *testing.T) {
	conv := NewConversation(uuid.New(), "user-1")
	user, assistant := conv.LastExchange()
	assert.Empty(t, user)
	assert.Empty(t, assistant)
}

func TestConversation_Variables(t *testing.T) {
	conv := Conversation{} // zero value: map allocated lazily
	conv.SetVariable("last_recommendation_id", "7")

	v, ok := conv.Variable("last_recommendation_id")
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	_, ok = conv.Variable("missing")
	assert.False(t, ok)
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation(uuid.New(), "user-1")
	conv.Append(llm.Message{Role: llm.RoleUser, Content: "original"})
	conv.SetVariable("k", "v1")

	cp := conv.Clone()
	cp.Messages[0].Content = "mutated"
	cp.SetVariable("k", "v2")

	assert.Equal(t, "original", conv.Messages[0].Content)
	v, _ := conv.Variable("k")
	assert.Equal(t, "v1", v)
}

func TestConversation_AppendRefreshesUpdatedAt(t *testing.T) {
	conv := NewConversation(uuid.New(), "user-1")
	before := conv.UpdatedAt

	conv.Append(llm.Message{Role: llm.RoleUser, Content: "hi"})
	assert.False(t, conv.UpdatedAt.Before(before))
}
