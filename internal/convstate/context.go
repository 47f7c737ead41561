package convstate

import (
	"strings"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a call's conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the per-call conversation state.
//
// It lives only while the call is in flight: created when dialing begins (or
// lazily reconstructed from the call and customer records), appended to on
// every turn, and purged at the terminal transition. Because consecutive
// webhook requests for the same call may be served by different process
// instances, Context is persisted in the conversation store, never held in a
// process-local map.
type Context struct {
	CallID     string `json:"call_id"`
	CampaignID string `json:"campaign_id"`

	CustomerName   string   `json:"customer_name"`
	CustomerReason string   `json:"customer_reason,omitempty"`
	ServiceTags    []string `json:"service_tags,omitempty"`

	// History grows monotonically until the call ends.
	History []Turn `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Append adds a turn to the history.
func (c *Context) Append(role Role, content string, now time.Time) {
	c.History = append(c.History, Turn{Role: role, Content: content, Timestamp: now})
	c.UpdatedAt = now
}

// CustomerTurns counts how many times the customer has spoken.
func (c *Context) CustomerTurns() int {
	n := 0
	for _, t := range c.History {
		if t.Role == RoleUser {
			n++
		}
	}
	return n
}

// Transcript flattens the history into role-labeled lines, excluding system
// messages. This is what gets written back onto the call record.
func (c *Context) Transcript() string {
	var b strings.Builder
	for _, t := range c.History {
		if t.Role == RoleSystem {
			continue
		}
		label := "Agent"
		if t.Role == RoleUser {
			label = "Customer"
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}
