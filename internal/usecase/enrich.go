package usecase

import (
	"fmt"
	"strings"
	"sync"

	"askdesk/internal/domain"
)

// maxTurnsPerThread bounds the in-memory history kept per thread. Older
// turns roll off; nothing is persisted.
const maxTurnsPerThread = 5

type turn struct {
	Question string
	Answer   string
}

// ConversationLog keeps a short in-memory history of recent Q&A turns per
// thread, used to build the enrichment prefix that lets a handler resolve
// references like "the first two". Safe for concurrent relays.
type ConversationLog struct {
	mu      sync.Mutex
	threads map[string][]turn
}

// NewConversationLog creates an empty log.
func NewConversationLog() *ConversationLog {
	return &ConversationLog{threads: make(map[string][]turn)}
}

func threadKey(t domain.Thread) string {
	return t.Channel + ":" + t.ThreadTS
}

// Record appends one completed turn to the thread's history.
func (c *ConversationLog) Record(t domain.Thread, question, answer string) {
	key := threadKey(t)
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := append(c.threads[key], turn{Question: question, Answer: answer})
	if len(turns) > maxTurnsPerThread {
		turns = turns[len(turns)-maxTurnsPerThread:]
	}
	c.threads[key] = turns
}

// Enrichment renders the thread's recent turns as a short context prefix for
// the next query. Returns "" for a fresh thread.
func (c *ConversationLog) Enrichment(t domain.Thread) string {
	key := threadKey(t)
	c.mu.Lock()
	turns := c.threads[key]
	c.mu.Unlock()

	if len(turns) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Earlier in this conversation:\n")
	for i, tr := range turns {
		fmt.Fprintf(&sb, "%d. Q: %s\n   A: %s\n", i+1, tr.Question, truncate(tr.Answer, 300))
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
