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

	"github.com/gorilla/mux"

	"capturepair/internal/api"
	"capturepair/internal/config"
	"capturepair/internal/logging"
)

type notificationTester interface {
	TestNotification(ctx context.Context) (bool, string, error)
}

type apiServer struct {
	bind    string
	logger  *slog.Logger
	svc     api.Service
	notify  notificationTester
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, svc api.Service, notify notificationTester, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || svc == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		svc:    svc,
		notify: notify,
	}

	router := mux.NewRouter()
	routes := router.PathPrefix("/api").Subrouter()
	routes.Use(authMiddleware(cfg.Paths.APIToken))
	routes.HandleFunc("/status", srv.handleStatus).Methods(http.MethodGet)
	routes.HandleFunc("/drivers", srv.handleDriverState).Methods(http.MethodGet)
	routes.HandleFunc("/drivers/check", srv.handleDriverCheck).Methods(http.MethodPost)
	routes.HandleFunc("/drivers/install", srv.handleDriverInstall).Methods(http.MethodPost)
	routes.HandleFunc("/devices", srv.handleDevices).Methods(http.MethodGet)
	routes.HandleFunc("/devices/refresh", srv.handleDevicesRefresh).Methods(http.MethodPost)
	routes.HandleFunc("/devices/{id}/pairing-file", srv.handlePairingFile).Methods(http.MethodPost)
	routes.HandleFunc("/sessions", srv.handleBeginSession).Methods(http.MethodPost)
	routes.HandleFunc("/sessions/current", srv.handleCurrentSession).Methods(http.MethodGet)
	routes.HandleFunc("/sessions/history", srv.handleHistory).Methods(http.MethodGet)
	routes.HandleFunc("/notifications/test", srv.handleTestNotification).Methods(http.MethodPost)
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		srv.writeError(w, http.StatusMethodNotAllowed, api.CodeInvalidRequest, "method not allowed")
	})
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		srv.writeError(w, http.StatusNotFound, api.CodeInvalidRequest, "not found")
	})
	srv.handler = router

	// No write timeout: a session response is sent only once the device
	// tools have answered.
	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
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
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
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

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleDriverState(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.DriverState(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *apiServer) handleDriverCheck(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.CheckDrivers(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *apiServer) handleDriverInstall(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.InstallDrivers(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *apiServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Devices(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *apiServer) handleDevicesRefresh(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.RefreshDevices(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *apiServer) handleBeginSession(w http.ResponseWriter, r *http.Request) {
	var req api.BeginSessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		s.writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "deviceId is required")
		return
	}
	session, err := s.svc.BeginSession(r.Context(), req.DeviceID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionResponse{Session: &session})
}

func (s *apiServer) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.CurrentSession(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionResponse{Session: session})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	sessions, err := s.svc.History(r.Context(), api.HistoryQuery{
		DeviceID: strings.TrimSpace(query.Get("device")),
		Limit:    limit,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Sessions: sessions})
}

func (s *apiServer) handlePairingFile(w http.ResponseWriter, r *http.Request) {
	var req api.PairingFileRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}
	session, err := s.svc.ExportPairingFile(r.Context(), mux.Vars(r)["id"], req.Destination)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionResponse{Session: &session})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if s.notify == nil {
		s.writeError(w, http.StatusNotFound, api.CodeInvalidRequest, "notifications unavailable")
		return
	}
	sent, message, err := s.notify.TestNotification(r.Context())
	if err != nil {
		s.writeServiceError(w, fmt.Errorf("%s: %w", message, err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sent": sent, "message": message})
}

// decodeBody reads an optional JSON body into dst.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	code := api.ErrorCode(err)
	status := api.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("api request failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String("code", code),
		)
	}
	s.writeError(w, status, code, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(s.logger, w, status, payload)
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}
