package usecase

import (
	"regexp"
	"strings"
	"time"

	"askdesk/internal/domain"
)

// courtesyPrefixes are stripped from the start of a question before
// classification. Matching is case-insensitive and repeats until no prefix
// remains, so "can you please tell me who..." reduces to "who...".
var courtesyPrefixes = []string{
	"can you",
	"could you",
	"would you",
	"please",
	"tell me",
	"do you know",
	"i want to know",
	"i'd like to know",
	"hey",
	"hi",
}

// intentRule is one row of the ordered classification table. The first rule
// whose pattern list contains any match wins; within one rule the pattern
// scan short-circuits on the first hit.
type intentRule struct {
	intent   domain.Intent
	patterns []*regexp.Regexp
}

var intentRules = []intentRule{
	{domain.IntentStartups, compileAll(
		`\bstartups?\b`,
		`\bcompan(?:y|ies)\b`,
		`\b(?:raised?|funding|fundrais\w*|valuation)\b`,
		`\bbatch\b`,
		`\bportfolio\b`,
	)},
	{domain.IntentFounders, compileAll(
		`\bfounders?\b`,
		`\bco-?founders?\b`,
		`\bceos?\b`,
		`\bwho (?:started|founded|built)\b`,
	)},
	{domain.IntentEvents, compileAll(
		`\bevents?\b`,
		`\bdemo day\b`,
		`\bmeetups?\b`,
		`\b(?:happening|scheduled)\b`,
		`\bcalendar\b`,
	)},
	{domain.IntentMentors, compileAll(
		`\bmentors?\b`,
		`\badvisors?\b`,
		`\boffice hours\b`,
	)},
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Classify maps arbitrary chat text to a Classification. It is total:
// unmatched input falls back to IntentGeneral, and it never fails.
func Classify(rawText string) domain.Classification {
	normalized := normalizeQuery(rawText)

	intent := domain.IntentGeneral
	for _, rule := range intentRules {
		if matchesAny(rule.patterns, normalized) {
			intent = rule.intent
			break
		}
	}

	return domain.Classification{
		RawText:         rawText,
		NormalizedQuery: normalized,
		Intent:          intent,
		Timestamp:       time.Now(),
	}
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// normalizeQuery trims, collapses internal whitespace, strips leading
// courtesy phrases, and terminates the text with "?" unless it already ends
// in "?" or ".". An empty input still produces "?".
func normalizeQuery(raw string) string {
	text := whitespaceRun.ReplaceAllString(strings.TrimSpace(raw), " ")

	for stripped := true; stripped; {
		stripped = false
		lower := strings.ToLower(text)
		for _, prefix := range courtesyPrefixes {
			if lower == prefix {
				text = ""
				stripped = true
				break
			}
			if strings.HasPrefix(lower, prefix+" ") || strings.HasPrefix(lower, prefix+",") {
				text = strings.TrimLeft(text[len(prefix):], " ,")
				stripped = true
				break
			}
		}
	}

	if !strings.HasSuffix(text, "?") && !strings.HasSuffix(text, ".") {
		text += "?"
	}
	return text
}
