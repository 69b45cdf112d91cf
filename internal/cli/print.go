package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"basegraph.app/triage/internal/domain"
	"basegraph.app/triage/internal/note"
	"basegraph.app/triage/internal/triage"
)

var (
	bold   = color.New(color.Bold)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	faint  = color.New(color.Faint)
)

func levelColor(level note.Level) *color.Color {
	switch level {
	case note.LevelAngry:
		return red
	case note.LevelFrustrated:
		return yellow
	default:
		return green
	}
}

func printScore(w io.Writer, r domain.ScoringResult) {
	level := note.Classify(r.AngerScore)
	fmt.Fprintf(w, "%s %s\n", bold.Sprint("Sentiment:"), levelColor(level).Sprint(level))
	fmt.Fprintf(w, "  anger    %3d/100\n", r.AngerScore)
	fmt.Fprintf(w, "  urgency  %3d/100\n", r.UrgencyScore)
	fmt.Fprintf(w, "  confidence %s (%s)\n", r.Confidence, r.Source)
	for _, e := range r.Explanation {
		fmt.Fprintf(w, "  - %s\n", e)
	}
	if r.Degraded {
		fmt.Fprintf(w, "  %s %s\n", yellow.Sprint("degraded:"), r.DegradedReason)
	}
}

func printSummary(w io.Writer, s triage.Summary) {
	fmt.Fprintf(w, "%s %d conversations\n", bold.Sprint("Listed:"), s.Listed)
	fmt.Fprintf(w, "  initial    %d\n", s.Initial)
	fmt.Fprintf(w, "  escalated  %s\n", countColor(s.Escalated, red))
	fmt.Fprintf(w, "  stable     %d\n", s.Stable)
	fmt.Fprintf(w, "  skipped    %d\n", s.Skipped)
	fmt.Fprintf(w, "  locked     %s\n", countColor(s.Locked, yellow))
	fmt.Fprintf(w, "  failed     %s\n", countColor(s.Failed, red))
}

func countColor(n int, c *color.Color) string {
	if n == 0 {
		return "0"
	}
	return c.Sprint(n)
}

func printResult(w io.Writer, res triage.Result) {
	fmt.Fprintf(w, "%s %d\n", bold.Sprint("Conversation:"), res.ConversationID)
	fmt.Fprintf(w, "  verdict  %s\n", res.Verdict)
	if res.Outcome.Action != "" {
		fmt.Fprintf(w, "  action   %s\n", actionColor(res.Outcome.Action).Sprint(res.Outcome.Action))
	}
	if res.Err != nil {
		fmt.Fprintf(w, "  %s %v\n", red.Sprint("error"), res.Err)
	}
	if len(res.Tags) > 0 {
		fmt.Fprintf(w, "  tags     %s\n", strings.Join(res.Tags, ", "))
	}
	if res.Note != "" {
		published := faint.Sprint("(not published)")
		if res.NotePublished {
			published = green.Sprint("(published)")
		}
		fmt.Fprintf(w, "\n%s %s\n%s\n", bold.Sprint("Note"), published, res.Note)
	}
}

func actionColor(a domain.TriageAction) *color.Color {
	switch a {
	case domain.TriageActionIncrementalEscalated:
		return red
	case domain.TriageActionInitial:
		return yellow
	default:
		return green
	}
}

func printMarker(w io.Writer, conversationID int64, threads []domain.Thread, m *domain.EscalationMarker) {
	var customer, notes int
	for _, t := range threads {
		switch {
		case t.IsCustomerMessage():
			customer++
		case t.IsInternalNote():
			notes++
		}
	}
	fmt.Fprintf(w, "%s %d (%d threads, %d customer, %d notes)\n",
		bold.Sprint("Conversation:"), conversationID, len(threads), customer, notes)

	if m == nil {
		fmt.Fprintf(w, "  %s\n", faint.Sprint("no escalation marker"))
		return
	}
	fmt.Fprintf(w, "  anger    %3d/100\n", m.AngerScore)
	fmt.Fprintf(w, "  urgency  %3d/100\n", m.UrgencyScore)
	if !m.NoteCreatedAt.IsZero() {
		fmt.Fprintf(w, "  written  %s\n", m.NoteCreatedAt.UTC().Format(time.RFC3339))
	}
	if m.Layout != "" {
		fmt.Fprintf(w, "  layout   %s\n", m.Layout)
	}
}
