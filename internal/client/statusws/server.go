// Package statusws is the daemon's local HTTP surface: engine status,
// sync triggers, the record API and a WebSocket stream of status changes.
package statusws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/shiftsync/internal/client/integrity"
	"github.com/dmitrijs2005/shiftsync/internal/client/services"
	"github.com/dmitrijs2005/shiftsync/internal/client/syncer"
	"github.com/dmitrijs2005/shiftsync/internal/common"
	"github.com/dmitrijs2005/shiftsync/internal/logging"
	"github.com/dmitrijs2005/shiftsync/internal/models"
)

type Engine interface {
	Status() syncer.Status
	Subscribe(fn func(syncer.Status)) (unsubscribe func())
	SyncPendingOperations(ctx context.Context) (syncer.DrainResult, error)
	SetAutoSync(enabled bool)
}

type Checker interface {
	RunIntegrityCheck(ctx context.Context) integrity.Report
}

// PutRequest is the body of PUT /records/{table}/{id}.
type PutRequest struct {
	Fields models.Fields `json:"fields"`
}

// AutoSyncRequest is the body of POST /sync/auto.
type AutoSyncRequest struct {
	Enabled *bool `json:"enabled"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	engine  Engine
	records services.RecordService
	checker Checker
	hub     *Hub
	log     logging.Logger

	srv         *http.Server
	unsubscribe func()
}

func New(engine Engine, records services.RecordService, checker Checker, log logging.Logger) *Server {
	s := &Server{
		engine:  engine,
		records: records,
		checker: checker,
		hub:     NewHub(log),
		log:     log.With("module", "statusws"),
	}
	s.unsubscribe = engine.Subscribe(s.hub.Publish)
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("POST /sync/force", s.handleForceSync)
	mux.HandleFunc("POST /sync/auto", s.handleAutoSync)
	mux.HandleFunc("POST /integrity/check", s.handleCheck)
	mux.HandleFunc("GET /records/{table}", s.handleList)
	mux.HandleFunc("GET /records/{table}/{id}", s.handleGet)
	mux.HandleFunc("PUT /records/{table}/{id}", s.handlePut)
	mux.HandleFunc("DELETE /records/{table}/{id}", s.handleDelete)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Start listens on addr and serves in the background. It returns the
// bound address, which differs from addr when the port is 0.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(context.Background(), "status server stopped", "error", err)
		}
	}()

	s.log.Info(context.Background(), "status server listening", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// Shutdown stops publishing, disconnects WebSocket clients and stops the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.hub.Close()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.SyncPendingOperations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	if err := s.records.ForceSyncAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleAutoSync(w http.ResponseWriter, r *http.Request) {
	var req AutoSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: `body must be {"enabled": true|false}`})
		return
	}
	s.engine.SetAutoSync(*req.Enabled)
	s.log.Info(r.Context(), "auto sync changed", "enabled", *req.Enabled)
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.checker.RunIntegrityCheck(r.Context()))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	table, err := models.ParseTable(r.PathValue("table"))
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := s.records.List(r.Context(), table)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	table, err := models.ParseTable(r.PathValue("table"))
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.records.Get(r.Context(), table, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handlePut creates the record, or patches it when it already exists.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	table, err := models.ParseTable(r.PathValue("table"))
	if err != nil {
		writeError(w, err)
		return
	}
	id := r.PathValue("id")

	var req PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid body: " + err.Error()})
		return
	}

	ctx := r.Context()
	status := http.StatusOK
	_, err = s.records.Get(ctx, table, id)
	var rec models.Record
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusCreated
		rec, err = s.records.Create(ctx, table, id, req.Fields)
	case err == nil:
		rec, err = s.records.Update(ctx, table, id, req.Fields)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table, err := models.ParseTable(r.PathValue("table"))
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.records.Delete(r.Context(), table, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, s.engine.Status())
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, common.ErrUnknownTable), errors.Is(err, services.ErrMissingID):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyExists), errors.Is(err, syncer.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, syncer.ErrOffline), errors.Is(err, syncer.ErrLocalOnly):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusCode(err), ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
