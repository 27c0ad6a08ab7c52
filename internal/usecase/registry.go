package usecase

import (
	"fmt"

	"askdesk/internal/domain"
)

// Handler IDs known to the agents runtime.
const (
	HandlerStartupAnalyst   = "startup-analyst"
	HandlerEventsGuide      = "events-guide"
	HandlerMentorLiaison    = "mentor-liaison"
	HandlerProgramAssistant = "program-assistant"
)

// handlerTable maps every intent to its responder. founders aliases to the
// startup analyst; founder questions are answered from the same dataset,
// under the same display name.
var handlerTable = map[domain.Intent]domain.HandlerMapping{
	domain.IntentStartups: {HandlerID: HandlerStartupAnalyst, DisplayName: "Startup Analyst"},
	domain.IntentFounders: {HandlerID: HandlerStartupAnalyst, DisplayName: "Startup Analyst"},
	domain.IntentEvents:   {HandlerID: HandlerEventsGuide, DisplayName: "Events Guide"},
	domain.IntentMentors:  {HandlerID: HandlerMentorLiaison, DisplayName: "Mentor Liaison"},
	domain.IntentGeneral:  {HandlerID: HandlerProgramAssistant, DisplayName: "Program Assistant"},
}

// Registry is the static intent → handler table. Read-only after
// construction, safe to share across concurrent relays.
type Registry struct {
	table map[domain.Intent]domain.HandlerMapping
}

// NewRegistry returns the built-in handler table.
func NewRegistry() *Registry {
	return &Registry{table: handlerTable}
}

// Resolve returns the handler mapping for intent. A missing row means the
// intent enum and the table were edited out of sync; that is a configuration
// error the startup validation should have caught, never a runtime
// condition to swallow.
func (r *Registry) Resolve(intent domain.Intent) (domain.HandlerMapping, error) {
	m, ok := r.table[intent]
	if !ok {
		return domain.HandlerMapping{}, domain.NewDomainError(
			"Registry.Resolve", domain.ErrConfiguration,
			fmt.Sprintf("no handler mapped for intent %q", intent))
	}
	return m, nil
}

// Validate checks the table against the intent enum and the live handler
// directory. Called once at startup; any error here is fatal.
func (r *Registry) Validate(dir domain.HandlerDirectory) error {
	if _, ok := r.table[domain.IntentGeneral]; !ok {
		return domain.NewDomainError("Registry.Validate", domain.ErrConfiguration,
			"general intent has no handler row")
	}
	for _, intent := range domain.AllIntents {
		m, ok := r.table[intent]
		if !ok {
			return domain.NewDomainError("Registry.Validate", domain.ErrConfiguration,
				fmt.Sprintf("intent %q has no handler row", intent))
		}
		if _, ok := dir.Lookup(m.HandlerID); !ok {
			return domain.NewDomainError("Registry.Validate", domain.ErrConfiguration,
				fmt.Sprintf("intent %q maps to unknown handler %q", intent, m.HandlerID))
		}
	}
	return nil
}
