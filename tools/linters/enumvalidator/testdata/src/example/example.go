package example

type TriageAction string

const (
	TriageActionInitial   TriageAction = "initial"
	TriageActionEscalated TriageAction = "incremental_escalated"
)

type ConversationStatus string

const (
	ConversationStatusActive ConversationStatus = "active"
	ConversationStatusClosed ConversationStatus = "closed"
)

// Label has no constants, so it is not an enum.
type Label string

type Outcome struct {
	Action TriageAction
	Label  Label
}

type Conversation struct {
	Status ConversationStatus
}

func bad() {
	o := &Outcome{}
	o.Action = "escalate" // want "enum field Action assigned string literal"

	_ = Conversation{Status: "archived"} // want "enum field Status assigned string literal"
}

func good() {
	o := &Outcome{}
	o.Action = TriageActionEscalated
	o.Label = "vip"

	c := Conversation{Status: ConversationStatusClosed}
	_ = c
}

func alsoGood() {
	status := ConversationStatusActive
	c := &Conversation{Status: status}
	_ = c
}
