// Package session provides conversation state with two storage layers: a
// fast in-memory TTL cache and a durable PostgreSQL archive used to
// reconstruct a minimal conversation after the fast layer loses it (process
// restart, expiry).
//
// The layered [Store] implements the lookup contract: absent is a normal
// outcome ([ErrNotFound]), never a raised failure, and a session owned by a
// different user is indistinguishable from an absent one. When the fast
// layer is unreachable the store degrades to archive-or-absent and logs a
// warning; nothing here is fatal to a turn.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/tripwise/tripwise/internal/llm"
)

// DefaultTTL is the inactivity window after which a conversation expires.
const DefaultTTL = 30 * time.Minute

// Conversation is the state of one chat session: ordered history, named
// variables set by capability executors, and ownership metadata.
//
// Conversation is a plain value owned by one turn at a time; the
// orchestrator serializes turns per session. The store copies on read and
// write, so a cached conversation is never aliased by a running turn.
type Conversation struct {
	ID        uuid.UUID         `json:"id"`
	UserID    string            `json:"user_id"`
	Messages  []llm.Message     `json:"messages"`
	Variables map[string]string `json:"variables,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewConversation creates an empty conversation owned by userID.
func NewConversation(id uuid.UUID, userID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        id,
		UserID:    userID,
		Variables: make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds messages to history and refreshes the last-active timestamp.
func (c *Conversation) Append(messages ...llm.Message) {
	c.Messages = append(c.Messages, messages...)
	c.UpdatedAt = time.Now()
}

// SetVariable records a named variable, e.g. the identifier of a record a
// capability persisted.
func (c *Conversation) SetVariable(key, value string) {
	if c.Variables == nil {
		c.Variables = make(map[string]string)
	}
	c.Variables[key] = value
	c.UpdatedAt = time.Now()
}

// Variable reads a named variable.
func (c *Conversation) Variable(key string) (string, bool) {
	v, ok := c.Variables[key]
	return v, ok
}

// Recent returns the most recent n messages. History grows unbounded in
// storage; truncation happens here, at read time.
func (c *Conversation) Recent(n int) []llm.Message {
	if n <= 0 || len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}

// LastExchange returns the text of the most recent user message and the
// most recent assistant message, either possibly empty. The archive keeps
// only this much.
func (c *Conversation) LastExchange() (user, assistant string) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		switch c.Messages[i].Role {
		case llm.RoleUser:
			if user == "" {
				user = c.Messages[i].Content
			}
		case llm.RoleAssistant:
			if assistant == "" {
				assistant = c.Messages[i].Content
			}
		}
		if user != "" && assistant != "" {
			break
		}
	}
	return user, assistant
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = make([]llm.Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	if c.Variables != nil {
		cp.Variables = make(map[string]string, len(c.Variables))
		for k, v := range c.Variables {
			cp.Variables[k] = v
		}
	}
	return &cp
}
