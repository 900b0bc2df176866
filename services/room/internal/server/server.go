package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"plantroom/internal/ratelimit"
	"plantroom/internal/util"
	"plantroom/pkg/engine"
	"plantroom/services/room/internal/app"
)

const (
	maxBodyBytes    = 1 << 20
	busyRetryAfter  = "1"
	rateLimitWindow = time.Minute
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                *app.App
	RedisAddr          string
	RedisPassword      string
	RateLimitPerMinute int
	TrustedProxyCIDRs  []string
}

// Server exposes HTTP endpoints for the room service.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	limiter        *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies
}

// New constructs the server with routes configured. Rate limiting of
// mutations is enabled when RateLimitPerMinute is positive.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: app is required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		trustedProxies: trusted,
	}
	if cfg.RateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.RateLimitPerMinute, rateLimitWindow)
		if err != nil {
			return nil, err
		}
		s.limiter = limiter
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("room", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

// Close releases the rate limiter connection.
func (s *Server) Close() error {
	return s.limiter.Close()
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/room/", s.handleRoom)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /room/{id} or /room/{id}/visual
func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/room/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] != "visual" {
			notFound(w, "not found")
			return
		}
		s.handleVisual(w, r, id)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleGetRoom(w, r, id)
	case http.MethodPost:
		s.handleMutateRoom(w, r, id)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request, id string) {
	room, rev, err := s.app.GetRoom(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(rev))
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleVisual(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	params, err := s.app.Visual(r.Context(), id)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, params)
}

type roomRequest struct {
	Op      string  `json:"op"`
	Me      *string `json:"me"`
	Partner *string `json:"partner"`
	Action  string  `json:"action"`
	By      string  `json:"by"`
	Date    string  `json:"date"`
}

func (s *Server) handleMutateRoom(w http.ResponseWriter, r *http.Request, id string) {
	if !s.allowRate(w, r) {
		return
	}
	var req roomRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var (
		state any
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(req.Op)) {
	case "rename":
		state, err = s.app.Rename(r.Context(), id, req.Me, req.Partner)
	case "log":
		state, err = s.app.Log(r.Context(), id, req.Action, req.By, req.Date)
	default:
		writeError(w, http.StatusBadRequest, "unknown op")
		return
	}
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	allowed, retryAfter := s.limiter.Allow(r.Context(), "room|"+util.ClientIP(r, s.trustedProxies))
	if allowed {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *engine.ValidationError
	switch {
	case errors.Is(err, engine.ErrDuplicateLog):
		writeError(w, http.StatusConflict, engine.ErrDuplicateLog.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, app.ErrInvalidRoomID), errors.Is(err, app.ErrDateInFuture):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrRoomBusy):
		w.Header().Set("Retry-After", busyRetryAfter)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("room request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForRoom(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForRoom(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == engine.ErrDuplicateLog.Error():
		return "ROOM_ALREADY_LOGGED"
	case message == app.ErrInvalidRoomID.Error():
		return "ROOM_INVALID_ID"
	case message == app.ErrDateInFuture.Error():
		return "ROOM_DATE_IN_FUTURE"
	case message == app.ErrRoomBusy.Error():
		return "ROOM_BUSY"
	case message == "invalid json body":
		return "ROOM_INVALID_REQUEST"
	case message == "unknown op":
		return "ROOM_UNKNOWN_OP"
	case message == "too many requests":
		return "SYSTEM_RATE_LIMITED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "ROOM_INVALID_REQUEST"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusConflict:
		return "ROOM_CONFLICT"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
