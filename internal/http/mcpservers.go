package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/domain"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/mcpserver"
	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/ws"
)

const scopeAll = "all"

// waitResult is the terminal frame of a readiness stream.
type waitResult struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`
}

func (r *Router) handleMCPServers(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for mcpservers", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodGet:
		r.listMCPServers(w, req, info)
	case http.MethodPost:
		r.createMCPServer(w, req, info)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) listMCPServers(w http.ResponseWriter, req *http.Request, info authInfo) {
	query := req.URL.Query()
	filters := make(map[string]string)
	for key, values := range query {
		if key == "scope" || len(values) == 0 {
			continue
		}
		filters[key] = values[0]
	}
	owner := info.owner()
	if strings.EqualFold(query.Get("scope"), scopeAll) {
		if !info.Admin {
			writeError(w, http.StatusForbidden, "scope=all requires admin")
			return
		}
		owner = nil
	}
	data, err := r.servers.List(req.Context(), filters, owner)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeRaw(w, http.StatusOK, data)
}

func (r *Router) createMCPServer(w http.ResponseWriter, req *http.Request, info authInfo) {
	var payload mcpserver.CreateInput
	if err := decodeBody(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload.Owner = info.owner()
	server, err := r.servers.Create(req.Context(), payload)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	r.respondCreated(w, req, server)
}

// respondCreated answers a create call, optionally waiting for readiness
// when the request carries wait=true.
func (r *Router) respondCreated(w http.ResponseWriter, req *http.Request, server *domain.MCPServer) {
	if !wantWait(req) {
		writeJSON(w, http.StatusCreated, server)
		return
	}
	url, err := r.waiter.Wait(req.Context(), server.Name)
	r.recordWait(err)
	if err != nil {
		status, msg := statusFor(err)
		writeJSON(w, status, map[string]any{"error": msg, "name": server.Name})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"server": server, "url": url})
}

func wantWait(req *http.Request) bool {
	value := strings.TrimSpace(req.URL.Query().Get("wait"))
	if value == "" {
		return false
	}
	wait, err := strconv.ParseBool(value)
	return err == nil && wait
}

func (r *Router) handleMCPServerSubroutes(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for mcpserver", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/mcpservers/"), "/")
	parts := strings.Split(trimmed, "/")
	name := parts[0]
	if name == "" || len(parts) > 2 {
		r.notFound(w)
		return
	}
	if len(parts) == 1 {
		switch req.Method {
		case http.MethodGet:
			r.getMCPServer(w, req, info, name)
		case http.MethodDelete:
			r.deleteMCPServer(w, req, info, name)
		default:
			r.methodNotAllowed(w)
		}
		return
	}
	switch parts[1] {
	case "wait":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		r.waitMCPServer(w, req, info, name)
	case "events":
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		r.streamMCPServerEvents(w, req, info, name)
	default:
		r.notFound(w)
	}
}

// authorizedServer fetches name and hides servers the caller does not own.
func (r *Router) authorizedServer(ctx context.Context, info authInfo, name string) (*domain.MCPServer, error) {
	server, err := r.servers.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !info.canAccess(server.Owner()) {
		return nil, mcpserver.ErrNotFound
	}
	return server, nil
}

func (r *Router) getMCPServer(w http.ResponseWriter, req *http.Request, info authInfo, name string) {
	server, err := r.authorizedServer(req.Context(), info, name)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, server)
}

func (r *Router) deleteMCPServer(w http.ResponseWriter, req *http.Request, info authInfo, name string) {
	if !info.Admin {
		if _, err := r.authorizedServer(req.Context(), info, name); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
	}
	if err := r.servers.Delete(req.Context(), name); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) waitMCPServer(w http.ResponseWriter, req *http.Request, info authInfo, name string) {
	if !info.Admin {
		if _, err := r.authorizedServer(req.Context(), info, name); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
	} else if !r.servers.Exists(req.Context(), name) {
		// Admins skip the ownership lookup, but a missing server would
		// otherwise hold the request for the whole polling budget.
		r.notFound(w)
		return
	}
	url, err := r.waiter.Wait(req.Context(), name)
	r.recordWait(err)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "url": url})
}

func (r *Router) handleMCPServerWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for mcpserver websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	name := strings.Trim(strings.TrimPrefix(req.URL.Path, "/ws/mcpservers/"), "/")
	if name == "" || strings.Contains(name, "/") {
		r.notFound(w)
		return
	}
	if _, err := r.authorizedServer(req.Context(), info, name); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	done := r.trackStream("websocket")

	ctx, cancel := context.WithCancel(context.WithoutCancel(req.Context()))
	go func() {
		defer cancel()
		client.Listen(ctx)
	}()
	go func() {
		defer done()
		defer cancel()
		r.streamWait(ctx, name, client)
		client.Close()
	}()
}

func (r *Router) streamMCPServerEvents(w http.ResponseWriter, req *http.Request, info authInfo, name string) {
	if _, err := r.authorizedServer(req.Context(), info, name); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	if err := client.Open(sseRetry); err != nil {
		return
	}
	defer r.trackStream("sse")()
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	go func() {
		ticker := time.NewTicker(sseHeartbeat / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if time.Since(client.LastActivity()) < sseHeartbeat {
					continue
				}
				if err := client.Heartbeat(); err != nil {
					cancel()
					return
				}
			}
		}
	}()
	r.streamWait(ctx, name, client)
	client.Close()
}

// streamWait subscribes client to name's observations, waits for a terminal
// state and sends the result frame.
func (r *Router) streamWait(ctx context.Context, name string, client ws.Subscriber) {
	r.hub.Register(name, client)
	url, err := r.waiter.Wait(ctx, name)
	// Unregister flushes queued observations, so the result frame is last.
	r.hub.Unregister(name, client)
	r.recordWait(err)

	result := waitResult{Name: name, Done: true}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		result.Code, result.Error = statusFor(err)
	} else {
		result.URL = url
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if sse, ok := client.(eventSender); ok {
		_ = sse.SendEvent(ws.EventResult, payload)
		return
	}
	_ = client.Send(payload)
}

// eventSender is implemented by subscribers that can label frames.
type eventSender interface {
	SendEvent(event string, payload []byte) error
}

// ObservationPublisher broadcasts poll observations to hub subscribers.
func ObservationPublisher(hub *ws.Hub) mcpserver.Observer {
	return func(o mcpserver.Observation) {
		payload, err := json.Marshal(o)
		if err != nil {
			return
		}
		hub.Broadcast(o.Name, payload)
	}
}
