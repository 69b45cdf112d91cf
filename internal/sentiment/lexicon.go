package sentiment

import (
	"regexp"
	"strings"
)

// Lexicons are matched case-insensitively on word boundaries. Terms inside one
// lexicon never contain each other, so a single phrase is not counted twice.
var (
	profanityTerms = []string{
		"damn", "dammit", "hell", "crap", "crappy", "shit", "shitty", "bullshit",
		"fuck", "fucking", "fucked", "wtf", "ass", "asshole", "piss", "pissed",
		"bastard", "bloody", "goddamn",
	}

	negativeWords = []string{
		"terrible", "awful", "horrible", "worst", "useless", "broken", "disappointed",
		"disappointing", "frustrated", "frustrating", "angry", "annoyed", "annoying",
		"ridiculous", "unacceptable", "pathetic", "disgusting", "hate", "furious",
		"outraged", "poor", "bad", "waste", "scam", "fraud", "failed", "garbage",
		"nightmare", "rubbish", "upset",
	}

	negativeContextPhrases = []string{
		"terrible service", "terrible support", "worst experience", "worst company",
		"waste of time", "waste of money", "still not working", "still broken",
		"not acceptable", "no response", "nobody responded", "been waiting",
		"never again", "completely useless", "fed up", "sick of", "had enough",
		"not happy", "doesn't work", "does not work",
	}

	urgencyKeywords = []string{
		"urgent", "urgently", "asap", "immediately", "now", "right away",
		"emergency", "critical", "deadline", "today", "as soon as possible",
	}

	insultPhrases = []string{
		"incompetent", "idiot", "idiots", "clueless", "you people", "useless support",
		"do your job", "stupid", "morons", "amateurs", "joke of a company",
		"don't know what you're doing",
	}

	refundPhrases = []string{
		"refund", "refunded", "money back", "chargeback", "dispute the charge",
		"cancel my subscription", "cancel my account", "cancel my order",
		"cancellation", "close my account",
	}
)

// term is a compiled lexicon entry.
type term struct {
	text    string
	pattern *regexp.Regexp
}

func compileLexicon(terms []string) []term {
	out := make([]term, 0, len(terms))
	for _, t := range terms {
		words := strings.Fields(strings.ToLower(t))
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		out = append(out, term{
			text:    t,
			pattern: regexp.MustCompile(`\b` + strings.Join(words, `\s+`) + `\b`),
		})
	}
	return out
}

type lexicon struct {
	profanity []term
	negative  []term
	contexts  []term
	urgency   []term
	insults   []term
	refunds   []term
}

var defaultLexicon = lexicon{
	profanity: compileLexicon(profanityTerms),
	negative:  compileLexicon(negativeWords),
	contexts:  compileLexicon(negativeContextPhrases),
	urgency:   compileLexicon(urgencyKeywords),
	insults:   compileLexicon(insultPhrases),
	refunds:   compileLexicon(refundPhrases),
}

// match is a distinct lexicon hit and the byte span of its first occurrence
// in the lower-cased text.
type match struct {
	term       string
	start, end int
}

func findMatches(lower string, terms []term) []match {
	var out []match
	for _, t := range terms {
		if loc := t.pattern.FindStringIndex(lower); loc != nil {
			out = append(out, match{term: t.text, start: loc[0], end: loc[1]})
		}
	}
	return out
}

func matchTerms(ms []match) []string {
	if len(ms) == 0 {
		return nil
	}
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.term
	}
	return out
}
