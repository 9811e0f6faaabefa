// Package server exposes the gateway's HTTP API: a streaming chat
// endpoint, the approval decision endpoint that unblocks suspended tool
// calls, and session management.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/inkgate/inkgate/internal/approval"
	"github.com/inkgate/inkgate/internal/logging"
	"github.com/inkgate/inkgate/internal/orchestrator"
	"github.com/inkgate/inkgate/internal/policy"
	"github.com/inkgate/inkgate/internal/store"
)

// Server handles the gateway HTTP API.
type Server struct {
	Orch      *orchestrator.Orchestrator
	Store     *store.Store
	Approvals *approval.Coordinator
	Policy    *policy.Store

	// sessionLocks serializes exchanges per session; concurrent chats on
	// the same session would interleave ordinals.
	sessionLocks sync.Map // session id -> *sync.Mutex
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/approvals/{ticket}", s.handleApproval)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("PATCH /api/sessions/{id}", s.handleRenameSession)
	return mux
}

func (s *Server) lockSession(id string) func() {
	v, _ := s.sessionLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// approvalRequest is the decision body for a suspended tool call.
type approvalRequest struct {
	// Decision is "approve" or "reject".
	Decision string `json:"decision"`
	// PersistScope, when true on approve, records an allow rule so the
	// same tool (or bash command scope) skips future approvals. On
	// reject it records a deny rule.
	PersistScope bool `json:"persist_scope"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	ticketID := r.PathValue("ticket")

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Decision != "approve" && req.Decision != "reject" {
		writeError(w, http.StatusBadRequest, "decision must be \"approve\" or \"reject\"")
		return
	}
	approve := req.Decision == "approve"

	if req.PersistScope {
		if err := s.persistScope(ticketID, approve); err != nil {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
	}

	if err := s.Approvals.Resolve(ticketID, approve); err != nil {
		status := http.StatusConflict
		if te, ok := err.(*approval.TicketError); ok && te.Reason == "not found" {
			status = http.StatusNotFound
		}
		writeError(w, status, "%v", err)
		return
	}

	state := approval.StateRejected
	if approve {
		state = approval.StateApproved
	}
	writeJSON(w, http.StatusOK, map[string]string{"ticket_id": ticketID, "state": string(state)})
}

// persistScope records a durable rule for the ticket's subject: the
// bash command scope for shell calls, the bare tool name otherwise.
func (s *Server) persistScope(ticketID string, approve bool) error {
	req, err := s.Approvals.Get(ticketID)
	if err != nil {
		return err
	}

	subject := req.Tool
	if req.Tool == "bash" {
		if cmd, ok := req.Args["command"].(string); ok {
			if scope := policy.ScopeForCommand(cmd); scope != "" {
				subject = "bash:" + scope
			}
		}
	}

	effect := policy.Deny
	if approve {
		effect = policy.Allow
	}
	return s.Policy.Add(policy.Rule{Subject: subject, Effect: effect})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.Store.ListSessions()
	if err != nil {
		logging.Error("server: list sessions: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	type item struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		ModelID      string `json:"model_id"`
		CreatedAt    int64  `json:"created_at"`
		UpdatedAt    int64  `json:"updated_at"`
		MessageCount int    `json:"message_count"`
		Preview      string `json:"preview"`
		TotalTokens  int64  `json:"total_tokens"`
	}
	out := make([]item, 0, len(sessions))
	for _, sum := range sessions {
		out = append(out, item{
			ID: sum.ID, Title: sum.Title, ModelID: sum.ModelID,
			CreatedAt: sum.CreatedAt, UpdatedAt: sum.UpdatedAt,
			MessageCount: sum.MessageCount, Preview: sum.Preview,
			TotalTokens: sum.Usage.TotalTokens,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Store.GetSession(r.PathValue("id"))
	if err != nil {
		logging.Error("server: get session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.Store.DeleteSession(id)
	if err != nil {
		logging.Error("server: delete session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if body.Title == "" {
		writeError(w, http.StatusBadRequest, "title must not be empty")
		return
	}

	sess, err := s.Store.GetSession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := s.Store.UpdateSessionTitle(id, body.Title); err != nil {
		logging.Error("server: rename session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to rename session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "title": body.Title})
}

// sessionPayload is the JSON projection of a full session.
func sessionPayload(sess *store.Session) map[string]any {
	type srcItem struct {
		Title   string `json:"title"`
		Hash    string `json:"hash"`
		Content string `json:"content"`
	}
	type invItem struct {
		Tool      string `json:"tool"`
		Arguments string `json:"arguments"`
		Result    string `json:"result,omitempty"`
		Error     string `json:"error,omitempty"`
		Status    string `json:"status"`
	}
	type msgItem struct {
		Ordinal   int       `json:"ordinal"`
		Role      string    `json:"role"`
		Content   string    `json:"content"`
		Reasoning string    `json:"reasoning,omitempty"`
		CreatedAt int64     `json:"created_at"`
		Tools     []invItem `json:"tool_invocations,omitempty"`
		Sources   []srcItem `json:"sources,omitempty"`
	}

	msgs := make([]msgItem, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		mi := msgItem{
			Ordinal: m.Ordinal, Role: m.Role, Content: m.Content,
			Reasoning: m.Reasoning, CreatedAt: m.CreatedAt,
		}
		for _, inv := range m.Tools {
			mi.Tools = append(mi.Tools, invItem{
				Tool: inv.Tool, Arguments: inv.Arguments,
				Result: inv.Result, Error: inv.Error, Status: string(inv.Status),
			})
		}
		for _, src := range m.Sources {
			mi.Sources = append(mi.Sources, srcItem{Title: src.Title, Hash: src.Hash, Content: src.Content})
		}
		msgs = append(msgs, mi)
	}

	return map[string]any{
		"id":         sess.ID,
		"title":      sess.Title,
		"model_id":   sess.ModelID,
		"created_at": sess.CreatedAt,
		"updated_at": sess.UpdatedAt,
		"usage": map[string]int64{
			"input_tokens":     sess.Usage.InputTokens,
			"output_tokens":    sess.Usage.OutputTokens,
			"reasoning_tokens": sess.Usage.ReasoningTokens,
			"cache_tokens":     sess.Usage.CacheTokens,
			"total_tokens":     sess.Usage.TotalTokens,
		},
		"messages": msgs,
	}
}
