package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"offsync/internal/api"
	"offsync/internal/config"
	"offsync/internal/logging"
	"offsync/internal/queue"
	"offsync/internal/syncengine"
)

const (
	defaultLogLimit = 200
	// followWait stays below WriteTimeout so long polls finish cleanly.
	followWait = 25 * time.Second
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           authMiddleware(cfg.API.Token, srv.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/tenants/{tenant}/entries", s.handleList)
	mux.HandleFunc("POST /api/tenants/{tenant}/entries", s.handleEnqueue)
	mux.HandleFunc("GET /api/tenants/{tenant}/pending", s.handlePending)
	mux.HandleFunc("POST /api/tenants/{tenant}/sync", s.handleSync)
	mux.HandleFunc("POST /api/tenants/{tenant}/requeue", s.handleRequeue)
	mux.HandleFunc("POST /api/tenants/{tenant}/purge", s.handlePurge)
	mux.HandleFunc("POST /api/connectivity", s.handleConnectivity)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound address once start has succeeded.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Connectivity: api.FromConnectivity(status.Connectivity),
		Appliers:     status.Appliers,
	}
	for _, tenant := range status.Tenants {
		ts := api.TenantStatus{TenantID: tenant.TenantID, Counts: api.StatusCounts(tenant.Counts)}
		if tenant.LastPass != nil {
			last := api.FromPassResult(*tenant.LastPass)
			ts.LastPass = &last
		}
		payload.Tenants = append(payload.Tenants, ts)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := queue.ParseStatus(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", trimmed))
			return
		}
		statuses = append(statuses, status)
	}
	entries, err := s.daemon.List(r.Context(), r.PathValue("tenant"), statuses)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EntryListResponse{Entries: api.FromEntries(entries)})
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body api.EnqueueRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	op, ok := queue.ParseOperation(body.Operation)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown operation %q", body.Operation))
		return
	}
	entry, err := s.daemon.Enqueue(r.Context(), queue.EnqueueRequest{
		TenantID:   r.PathValue("tenant"),
		UserID:     body.UserID,
		Operation:  op,
		EntityType: body.EntityType,
		RecordID:   body.RecordID,
		RecordKey:  body.RecordKey,
		Payload:    body.Payload,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.EntryResponse{Entry: api.FromEntry(entry)})
}

func (s *apiServer) handlePending(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	count, err := s.daemon.Pending(r.Context(), tenant)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PendingResponse{TenantID: tenant, Pending: count})
}

func (s *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.daemon.Sync(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromPassResult(result))
}

func (s *apiServer) handleRequeue(w http.ResponseWriter, r *http.Request) {
	var body api.RequeueRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := s.daemon.Requeue(r.Context(), r.PathValue("tenant"), body.IDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handlePurge(w http.ResponseWriter, r *http.Request) {
	count, err := s.daemon.Purge(r.Context(), r.PathValue("tenant"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var body api.ConnectivityRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := s.daemon.ReportConnectivity(body.Connected)
	s.writeJSON(w, http.StatusOK, api.FromConnectivity(status))
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	tenant := strings.TrimSpace(query.Get("tenant"))

	ctx := r.Context()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, followWait)
		defer cancel()
	}
	events, next, err := hub.Fetch(ctx, since, tenant, limit, follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(events) == 0 && since > next {
		next = since
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: api.FromLogEvents(events), Next: next})
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps daemon errors onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrInvalidEntry), errors.Is(err, syncengine.ErrInvalidTenant):
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: err.Error(), Kind: "invalid"})
	case errors.Is(err, queue.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: err.Error(), Kind: "not_found"})
	case errors.Is(err, queue.ErrStorage):
		s.writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: err.Error(), Kind: string(queue.StorageKindOf(err))})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeJSON(w, http.StatusServiceUnavailable, api.ErrorResponse{Error: err.Error(), Kind: "cancelled"})
	default:
		s.log().Error("api request failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
