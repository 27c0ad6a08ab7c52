package domain

import "time"

// Intent is the classified category of an inbound question.
type Intent string

const (
	IntentStartups Intent = "startups"
	IntentFounders Intent = "founders"
	IntentEvents   Intent = "events"
	IntentMentors  Intent = "mentors"
	IntentGeneral  Intent = "general"
)

// AllIntents lists every intent in classification order. The Handler Registry
// is validated against this slice at startup, so adding an intent here
// without a registry row fails fast rather than at request time.
var AllIntents = []Intent{
	IntentStartups,
	IntentFounders,
	IntentEvents,
	IntentMentors,
	IntentGeneral,
}

// Classification is the result of classifying one inbound message.
// Immutable; created per message and discarded after dispatch.
type Classification struct {
	RawText         string
	NormalizedQuery string
	Intent          Intent
	Timestamp       time.Time
}

// HandlerMapping is one row of the intent → handler table.
// Several intents may map to the same handler ID.
type HandlerMapping struct {
	HandlerID   string
	DisplayName string
}
