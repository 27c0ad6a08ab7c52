package usecase

import (
	"strings"

	"askdesk/internal/domain"
)

// Glyph sets cycled by the animation frame counter. Lengths are independent;
// each set is indexed frame mod len.
var (
	spinnerGlyphs  = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	toolGlyphs     = []string{"🔧", "🛠️"}
	workflowGlyphs = []string{"⚙️", "🔄"}
)

// Event-kind prefixes that select the tool and workflow renderer branches.
const (
	toolEventPrefix     = "tool-"
	workflowEventPrefix = "workflow-"
)

// RelayState is the mutable record owned by one in-flight relay. It is never
// shared across relays; within a relay the ticker goroutine and the stream
// loop both touch it, guarded by the relay's mutex.
type RelayState struct {
	AccumulatedText    strings.Builder
	CurrentEventKind   domain.EventKind
	ActiveToolName     string
	ActiveStepName     string
	ActiveWorkflowName string
	ActiveAgentName    string
	HandlerName        string
}

// RenderStatus turns the current relay state and an animation frame counter
// into a one-line progress string. Pure and cheap: it runs on every tick and
// on every significant stream event.
func RenderStatus(state *RelayState, frame int) string {
	label := kindLabel(state.CurrentEventKind)
	kind := string(state.CurrentEventKind)

	switch {
	case strings.HasPrefix(kind, toolEventPrefix) && state.ActiveToolName != "":
		return glyph(toolGlyphs, frame) + " " + label + ": " + state.ActiveToolName + "..."
	case strings.HasPrefix(kind, workflowEventPrefix) && state.ActiveStepName != "":
		return glyph(workflowGlyphs, frame) + " " + label + ": " + state.ActiveStepName + "..."
	case strings.Contains(kind, domain.AgentMarker) && state.ActiveAgentName != "":
		return glyph(spinnerGlyphs, frame) + " " + label + ": " + state.ActiveAgentName + "..."
	default:
		return glyph(spinnerGlyphs, frame) + " " + label + "..."
	}
}

func glyph(set []string, frame int) string {
	return set[frame%len(set)]
}

// kindLabel converts an event kind to a display label: separators become
// spaces, each word is title-cased ("tool-call" → "Tool Call").
func kindLabel(kind domain.EventKind) string {
	text := string(kind)
	if text == "" {
		text = "thinking"
	}
	text = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(text)

	words := strings.Fields(text)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}
