package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"DecideInbox/internal/api"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/gateway"
	"DecideInbox/internal/inbox"
	"DecideInbox/internal/ports"
	"DecideInbox/internal/registry"
)

const maxBodyBytes = 4 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.Health{Status: "ok", Version: s.opts.Version})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.svc.Registry.Register(r.Context(), domain.Registration(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ackOf(rec))
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req api.HeartbeatRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.svc.Registry.Heartbeat(r.Context(), chi.URLParam(r, "id"), domain.HeartbeatReport(req))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ackOf(rec))
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req api.IngestRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.Gateway.Submit(r.Context(), req.Candidates)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.IngestResponse(res))
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	ws, err := s.svc.Registry.List(r.Context(), r.URL.Query().Get("operator"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.WorkerList{Workers: ws})
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRemoveWorker(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Registry.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBumpConfig(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Registry.BumpConfigVersion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ackOf(rec))
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	status := domain.ItemStatus(r.URL.Query().Get("status"))
	items, err := s.svc.Inbox.List(r.Context(), chi.URLParam(r, "id"), status, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.InboxList{Items: items})
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req api.DecisionRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := s.svc.Inbox.Decide(r.Context(), chi.URLParam(r, "itemID"), req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	if limit <= 0 {
		limit = 50
	}
	writeJSON(w, http.StatusOK, api.FeedList{Activities: s.svc.Feed.List(chi.URLParam(r, "id"), limit)})
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	minOps, ok := queryInt(w, r, "min")
	if !ok {
		return
	}
	if minOps < 2 {
		minOps = 2
	}
	writeJSON(w, http.StatusOK, api.SignalList{Signals: s.svc.Feed.Converging(minOps)})
}

func (s *Server) handleDisclosure(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Disclosure.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Disclosure.CompleteOnboarding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCelebrationAck(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Disclosure.AcknowledgeCelebration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func ackOf(rec domain.WorkerRecord) domain.Ack {
	return domain.Ack{WorkerID: rec.ID, Status: rec.Status, ConfigVersion: rec.ConfigVersion}
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownWorker),
		errors.Is(err, inbox.ErrUnknownItem),
		errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, inbox.ErrAlreadyDecided):
		return http.StatusConflict
	case errors.Is(err, inbox.ErrInvalidStatus),
		errors.Is(err, registry.ErrInvalidRegistration),
		errors.Is(err, gateway.ErrEmptyBatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.opts.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, code, "internal error")
		return
	}
	writeMessage(w, code, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", key, raw))
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, api.Error{Error: msg})
}
