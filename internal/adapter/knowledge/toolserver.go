package knowledge

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"askdesk/internal/domain"
)

// ToolServer exposes the lookup tool over HTTP for the agents runtime to
// call back into. It is mounted on the same server as the chat webhook.
type ToolServer struct {
	source domain.KnowledgeSource
	token  string // optional bearer token; empty disables the check
	logger *slog.Logger
}

// NewToolServer creates the tool endpoint.
func NewToolServer(source domain.KnowledgeSource, token string, logger *slog.Logger) *ToolServer {
	return &ToolServer{source: source, token: token, logger: logger}
}

type lookupRequest struct {
	Dataset string `json:"dataset,omitempty"`
	Query   string `json:"query"`
}

func (t *ToolServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if t.token != "" && r.Header.Get("Authorization") != "Bearer "+t.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	result, err := t.source.Lookup(r.Context(), req.Dataset, req.Query)
	if err != nil {
		t.logger.Warn("tool lookup failed", "error", err, "dataset", req.Dataset)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		t.logger.Warn("tool response encode failed", "error", err)
	}
}
