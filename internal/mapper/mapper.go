package mapper

import (
	"context"
	"fmt"
	"net/textproto"
	"strconv"
)

// CanonicalEventType is a provider-independent webhook event.
type CanonicalEventType string

const (
	EventConversationCreated CanonicalEventType = "conversation_created"
	EventCustomerReply       CanonicalEventType = "customer_reply"
	EventAgentReply          CanonicalEventType = "agent_reply"
	EventNote                CanonicalEventType = "note"
	EventConversationClosed  CanonicalEventType = "conversation_closed"
	EventIgnored             CanonicalEventType = "ignored"
)

// Event is a mapped webhook delivery.
type Event struct {
	Type           CanonicalEventType
	ConversationID int64
}

// TriggersTriage reports whether the event brings new customer input.
func (e Event) TriggersTriage() bool {
	return e.Type == EventConversationCreated || e.Type == EventCustomerReply
}

type EventMapper interface {
	Map(ctx context.Context, body map[string]any, headers map[string]string) (Event, error)
}

// int64Field reads a JSON number or numeric string from body.
func int64Field(body map[string]any, key string) (int64, bool) {
	switch v := body[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func stringField(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

func objectField(body map[string]any, key string) map[string]any {
	m, _ := body[key].(map[string]any)
	return m
}

func missingID(provider string, t CanonicalEventType) error {
	return fmt.Errorf("%s %s event without a conversation id", provider, t)
}

// header looks a name up as given and in canonical MIME form, since maps built
// from net/http headers carry canonical keys.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	return headers[textproto.CanonicalMIMEHeaderKey(name)]
}
