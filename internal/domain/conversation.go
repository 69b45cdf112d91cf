package domain

import "time"

// ConversationStatus is the lifecycle state of a support conversation.
type ConversationStatus string

const (
	ConversationStatusActive  ConversationStatus = "active"
	ConversationStatusPending ConversationStatus = "pending"
	ConversationStatusClosed  ConversationStatus = "closed"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationStatusActive, ConversationStatusPending, ConversationStatusClosed:
		return true
	}
	return false
}

// ThreadKind classifies an entry in a conversation's history.
type ThreadKind string

const (
	ThreadKindCustomerMessage ThreadKind = "customer_message"
	ThreadKindAgentReply      ThreadKind = "agent_reply"
	ThreadKindInternalNote    ThreadKind = "internal_note"
	ThreadKindDraftReply      ThreadKind = "draft_reply"
)

// ThreadState is the completion state of notes and draft replies.
type ThreadState string

const (
	ThreadStatePublished ThreadState = "published"
	ThreadStateDraft     ThreadState = "draft"
)

// Customer is the person who opened the conversation.
type Customer struct {
	ID    int64  `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Conversation is a support ticket as exposed by the ticketing platform.
// Threads are ordered oldest first.
type Conversation struct {
	ID        int64              `json:"id"`
	Number    int64              `json:"number,omitempty"`
	Subject   string             `json:"subject"`
	Status    ConversationStatus `json:"status"`
	Threads   []Thread           `json:"threads,omitempty"`
	Tags      []string           `json:"tags,omitempty"`
	Customer  Customer           `json:"customer"`
	MailboxID int64              `json:"mailbox_id,omitempty"`
	URL       string             `json:"url,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// HasTag reports whether the conversation already carries tag.
func (c Conversation) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Thread is one immutable entry in a conversation's history.
type Thread struct {
	ExternalID string      `json:"external_id,omitempty"`
	Kind       ThreadKind  `json:"kind"`
	Body       string      `json:"body"`
	State      ThreadState `json:"state,omitempty"`
	Author     string      `json:"author,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (t Thread) IsCustomerMessage() bool {
	return t.Kind == ThreadKindCustomerMessage
}

func (t Thread) IsInternalNote() bool {
	return t.Kind == ThreadKindInternalNote
}
