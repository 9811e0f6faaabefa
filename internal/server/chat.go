package server

import (
	"encoding/json"
	"net/http"

	"github.com/inkgate/inkgate/internal/llm"
	"github.com/inkgate/inkgate/internal/logging"
	"github.com/inkgate/inkgate/internal/orchestrator"
	"github.com/inkgate/inkgate/internal/store"
)

// chatRequest starts or continues a session with one user message.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Sources   []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"sources"`
}

// sseWriter emits server-sent events on a flushed response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Disable proxy buffering so events reach the client immediately.
	h.Set("X-Accel-Buffering", "no")
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		logging.Error("server: encode sse event %s: %v", event, err)
		return
	}
	if _, err := s.w.Write([]byte("event: " + event + "\ndata: " + string(payload) + "\n\n")); err != nil {
		return
	}
	s.flusher.Flush()
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	var sess *store.Session
	var err error
	if req.SessionID == "" {
		sess, err = s.Store.CreateSession(s.Orch.Model)
		if err != nil {
			logging.Error("server: create session: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create session")
			return
		}
	} else {
		sess, err = s.Store.GetSession(req.SessionID)
		if err != nil {
			logging.Error("server: load session: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to load session")
			return
		}
		if sess == nil {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
	}

	unlock := s.lockSession(sess.ID)
	defer unlock()

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	sse.send("session", map[string]string{"session_id": sess.ID, "model_id": sess.ModelID})

	attachments := make([]store.NewAttachment, 0, len(req.Sources))
	for _, src := range req.Sources {
		attachments = append(attachments, store.NewAttachment{Title: src.Title, Content: src.Content})
	}
	userMsg, err := s.Store.AddUserMessage(sess.ID, req.Message, attachments)
	if err != nil {
		logging.Error("server: store user message: %v", err)
		sse.send("error", map[string]string{"message": "failed to store message"})
		return
	}
	if len(userMsg.Sources) > 0 {
		type srcItem struct {
			Title string `json:"title"`
			Hash  string `json:"hash"`
		}
		items := make([]srcItem, 0, len(userMsg.Sources))
		for _, src := range userMsg.Sources {
			items = append(items, srcItem{Title: src.Title, Hash: src.Hash})
		}
		sse.send("sources", map[string]any{"sources": items})
	}

	// Reload so the exchange sees the message just stored.
	sess, err = s.Store.GetSession(sess.ID)
	if err != nil || sess == nil {
		logging.Error("server: reload session: %v", err)
		sse.send("error", map[string]string{"message": "failed to load session"})
		return
	}

	// The request context cancels when the client disconnects; the
	// orchestrator supersedes any open tickets on that path.
	_, err = s.Orch.RunExchange(r.Context(), sess, func(ev orchestrator.Event) {
		switch ev.Type {
		case orchestrator.EventContent:
			sse.send("content", map[string]string{"delta": ev.Text})
		case orchestrator.EventReasoning:
			sse.send("reasoning", map[string]string{"delta": ev.Text})
		case orchestrator.EventApprovalRequest:
			sse.send("tool_approval_request", ev.Approval)
		case orchestrator.EventToolResult:
			sse.send("tool_invocation_completed", invocationPayload(ev.Invocation))
		case orchestrator.EventUsage:
			sse.send("usage", usagePayload(ev.Usage))
		}
	})
	if err != nil {
		logging.Warn("server: exchange for session %s ended with error: %v", sess.ID, err)
		sse.send("error", map[string]string{"message": err.Error()})
		return
	}
	sse.send("done", map[string]string{"session_id": sess.ID})
}

func invocationPayload(inv *store.ToolInvocation) map[string]any {
	return map[string]any{
		"tool":      inv.Tool,
		"arguments": inv.Arguments,
		"result":    inv.Result,
		"error":     inv.Error,
		"status":    string(inv.Status),
	}
}

func usagePayload(u *llm.Usage) map[string]int64 {
	return map[string]int64{
		"input_tokens":     u.InputTokens,
		"output_tokens":    u.OutputTokens,
		"reasoning_tokens": u.ReasoningTokens,
		"cache_tokens":     u.CacheTokens,
	}
}
