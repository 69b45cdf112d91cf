package escalation

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"basegraph.app/triage/internal/domain"
)

var (
	// ErrNoMarker means no internal note carries a recognisable token.
	ErrNoMarker = errors.New("no escalation marker")
	// ErrMalformedMarker means the latest token could not be parsed. Callers
	// treat it exactly like ErrNoMarker.
	ErrMalformedMarker = errors.New("malformed escalation marker")
)

// Token grammars. The current layout is written; the legacy layout is only
// read so notes written before the v2 format stay decodable.
//
//	current: <!-- triage-state:v2 anger=NN urgency=NN at=UNIX -->
//	legacy:  <!-- ESCALATION_STATE anger:NN urgency:NN -->
var (
	currentToken = regexp.MustCompile(`<!--\s*triage-state:v2\s+anger=(\S+)\s+urgency=(\S+)\s+at=(\S+)\s*-->`)
	legacyToken  = regexp.MustCompile(`<!--\s*ESCALATION_STATE\s+anger:(\S+)\s+urgency:(\S+)\s*-->`)
)

// Codec serialises the last analysis into note text and recovers it.
type Codec interface {
	Encode(result domain.ScoringResult, createdAt time.Time) string
	Decode(threads []domain.Thread) (domain.EscalationMarker, bool)
}

type TextCodec struct{}

func NewTextCodec() TextCodec {
	return TextCodec{}
}

func (TextCodec) Encode(result domain.ScoringResult, createdAt time.Time) string {
	return fmt.Sprintf("<!-- triage-state:v2 anger=%d urgency=%d at=%d -->",
		domain.ClampScore(result.AngerScore), domain.ClampScore(result.UrgencyScore), createdAt.Unix())
}

// Decode returns the authoritative marker, or false when there is none. A
// malformed latest token is logged and reported as absent.
func (c TextCodec) Decode(threads []domain.Thread) (domain.EscalationMarker, bool) {
	m, err := c.Parse(threads)
	if err != nil {
		if errors.Is(err, ErrMalformedMarker) {
			slog.Warn("ignoring malformed escalation marker", "error", err)
		}
		return domain.EscalationMarker{}, false
	}
	return m, true
}

type candidate struct {
	note   domain.Thread
	fields []string
	layout domain.MarkerLayout
	at     time.Time
}

// Parse selects the published internal note with the latest creation time that
// carries a token and parses it. Ties go to the later list position.
func (TextCodec) Parse(threads []domain.Thread) (domain.EscalationMarker, error) {
	var latest *candidate
	for _, t := range threads {
		if !t.IsInternalNote() || t.State == domain.ThreadStateDraft {
			continue
		}
		c, ok := findToken(t)
		if !ok {
			continue
		}
		if latest == nil || !c.at.Before(latest.at) {
			latest = &c
		}
	}
	if latest == nil {
		return domain.EscalationMarker{}, ErrNoMarker
	}

	anger, err := parseScore(latest.fields[0])
	if err != nil {
		return domain.EscalationMarker{}, fmt.Errorf("%w: anger: %w", ErrMalformedMarker, err)
	}
	urgency, err := parseScore(latest.fields[1])
	if err != nil {
		return domain.EscalationMarker{}, fmt.Errorf("%w: urgency: %w", ErrMalformedMarker, err)
	}
	if latest.at.IsZero() && latest.layout == domain.MarkerLayoutCurrent {
		return domain.EscalationMarker{}, fmt.Errorf("%w: note %q has no usable timestamp", ErrMalformedMarker, latest.note.ExternalID)
	}

	return domain.EscalationMarker{
		AngerScore:    anger,
		UrgencyScore:  urgency,
		NoteCreatedAt: latest.at,
		Layout:        latest.layout,
	}, nil
}

func findToken(t domain.Thread) (candidate, bool) {
	if m := currentToken.FindStringSubmatch(t.Body); m != nil {
		c := candidate{note: t, fields: m[1:3], layout: domain.MarkerLayoutCurrent, at: t.CreatedAt}
		if c.at.IsZero() {
			if unix, err := strconv.ParseInt(m[3], 10, 64); err == nil && unix > 0 {
				c.at = time.Unix(unix, 0).UTC()
			}
		}
		return c, true
	}
	if m := legacyToken.FindStringSubmatch(t.Body); m != nil {
		return candidate{note: t, fields: m[1:3], layout: domain.MarkerLayoutLegacy, at: t.CreatedAt}, true
	}
	return candidate{}, false
}

func parseScore(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("%d out of range", v)
	}
	return v, nil
}
