package mapper

import (
	"context"
	"fmt"
)

// GitLabEventMapper maps Service Desk issue and note hooks. Notes authored by
// the support bot are customer replies.
type GitLabEventMapper struct {
	supportBot string
}

func NewGitLabEventMapper(supportBot string) *GitLabEventMapper {
	if supportBot == "" {
		supportBot = "support-bot"
	}
	return &GitLabEventMapper{supportBot: supportBot}
}

func (m *GitLabEventMapper) Map(ctx context.Context, body map[string]any, headers map[string]string) (Event, error) {
	headerEventType := header(headers, "X-Gitlab-Event")
	objectKind := stringField(body, "object_kind")

	var (
		eventType CanonicalEventType
		issue     map[string]any
	)
	switch {
	case headerEventType == "Issue Hook" || objectKind == "issue":
		issue = objectField(body, "object_attributes")
		eventType = m.mapIssueAction(stringField(issue, "action"))
	case headerEventType == "Note Hook" || objectKind == "note":
		note := objectField(body, "object_attributes")
		if stringField(note, "noteable_type") != "Issue" {
			return Event{Type: EventIgnored}, nil
		}
		issue = objectField(body, "issue")
		eventType = m.mapNote(note, objectField(body, "user"))
	default:
		return Event{}, fmt.Errorf("unknown gitlab event type: header=%q object_kind=%q", headerEventType, objectKind)
	}

	if eventType == EventIgnored {
		return Event{Type: EventIgnored}, nil
	}

	iid, ok := int64Field(issue, "iid")
	if !ok || iid == 0 {
		return Event{}, missingID("gitlab", eventType)
	}
	return Event{Type: eventType, ConversationID: iid}, nil
}

func (m *GitLabEventMapper) mapIssueAction(action string) CanonicalEventType {
	switch action {
	case "open", "reopen":
		return EventConversationCreated
	case "close":
		return EventConversationClosed
	}
	return EventIgnored
}

func (m *GitLabEventMapper) mapNote(note, user map[string]any) CanonicalEventType {
	if system, _ := note["system"].(bool); system {
		return EventIgnored
	}
	if stringField(user, "username") == m.supportBot {
		return EventCustomerReply
	}
	if internal, _ := note["internal"].(bool); internal {
		return EventNote
	}
	if confidential, _ := note["confidential"].(bool); confidential {
		return EventNote
	}
	return EventAgentReply
}
