package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"askdesk/internal/domain"
)

func TestClassifyIntents(t *testing.T) {
	tests := []struct {
		name string
		text string
		want domain.Intent
	}{
		{"funding question", "How many startups raised funding?", domain.IntentStartups},
		{"company keyword", "which companies are in the current batch", domain.IntentStartups},
		{"valuation keyword", "what's the highest valuation this year?", domain.IntentStartups},
		{"founder question", "who founded the payments app", domain.IntentFounders},
		{"cofounder keyword", "list the co-founders please", domain.IntentFounders},
		{"events question", "what events are coming up", domain.IntentEvents},
		{"demo day", "when is demo day?", domain.IntentEvents},
		{"mentor question", "which mentors cover fintech", domain.IntentMentors},
		{"office hours", "how do I book office hours", domain.IntentMentors},
		{"no keyword", "what's the wifi password", domain.IntentGeneral},
		{"empty", "", domain.IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.text)
			assert.Equal(t, tt.want, c.Intent)
			assert.Equal(t, tt.text, c.RawText)
		})
	}
}

func TestClassifyOrderedFirstMatchWins(t *testing.T) {
	// Both the startups and founders rules match; the startups rule is
	// evaluated first.
	c := Classify("who are the founders of the startups in this batch")
	assert.Equal(t, domain.IntentStartups, c.Intent)
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"appends question mark", "how many startups raised funding", "how many startups raised funding?"},
		{"keeps question mark", "how many startups raised funding?", "how many startups raised funding?"},
		{"keeps period", "list all events.", "list all events."},
		{"strips courtesy prefix", "can you list the mentors", "list the mentors?"},
		{"strips stacked prefixes", "hey can you please tell me who founded Acme", "who founded Acme?"},
		{"collapses whitespace", "  what   events \n are  coming ", "what events are coming?"},
		{"empty input", "", "?"},
		{"only courtesy phrase", "please", "?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in).NormalizedQuery)
		})
	}
}

func TestClassifyIdempotentOnNormalizedOutput(t *testing.T) {
	inputs := []string{
		"can you tell me how many startups raised funding",
		"Please list upcoming events.",
		"",
		"who founded Acme?",
		"hey",
	}
	for _, in := range inputs {
		once := Classify(in).NormalizedQuery
		twice := Classify(once).NormalizedQuery
		assert.Equal(t, once, twice, "input %q", in)
	}
}
