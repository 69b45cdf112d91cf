package mapper

import (
	"context"
	"fmt"
)

type HelpScoutEventMapper struct{}

func NewHelpScoutEventMapper() *HelpScoutEventMapper {
	return &HelpScoutEventMapper{}
}

// Map reads the event name from X-HelpScout-Event; the body is the conversation.
func (m *HelpScoutEventMapper) Map(ctx context.Context, body map[string]any, headers map[string]string) (Event, error) {
	name := header(headers, "X-HelpScout-Event")
	if name == "" {
		return Event{}, fmt.Errorf("missing X-HelpScout-Event header")
	}

	eventType := m.mapHelpScoutEvent(name, stringField(body, "status"))
	if eventType == EventIgnored {
		return Event{Type: EventIgnored}, nil
	}

	id, ok := int64Field(body, "id")
	if !ok || id == 0 {
		return Event{}, missingID("helpscout", eventType)
	}
	return Event{Type: eventType, ConversationID: id}, nil
}

func (m *HelpScoutEventMapper) mapHelpScoutEvent(name, status string) CanonicalEventType {
	switch name {
	case "convo.created":
		return EventConversationCreated
	case "convo.customer.reply.created":
		return EventCustomerReply
	case "convo.agent.reply.created":
		return EventAgentReply
	case "convo.note.created":
		return EventNote
	case "convo.status":
		if status == "closed" {
			return EventConversationClosed
		}
	}
	return EventIgnored
}
