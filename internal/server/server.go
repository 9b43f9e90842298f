// Package server exposes the relay over HTTP: the websocket endpoint plus health,
// metrics and read-only history and archive routes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/its-me-navee/e4square/internal/archive"
	"github.com/its-me-navee/e4square/internal/gateway"
	"github.com/its-me-navee/e4square/internal/hub"
	"github.com/its-me-navee/e4square/internal/identity"
	"github.com/its-me-navee/e4square/internal/obslog"
	"github.com/its-me-navee/e4square/internal/session"
	"github.com/its-me-navee/e4square/pkg/relaydto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	defaultRecentGames = 20
	maxRecentGames     = 100
)

// ArchiveReader serves finished games; nil disables the archive routes.
type ArchiveReader interface {
	Get(ctx context.Context, id string) (archive.Record, error)
	Recent(ctx context.Context, n int64) ([]string, error)
}

type Options struct {
	Gateway        *gateway.Gateway
	Hub            *hub.Hub
	Metrics        http.Handler
	Archive        ArchiveReader
	AllowedOrigins []string
}

type Server struct {
	gw      *gateway.Gateway
	hub     *hub.Hub
	archive ArchiveReader
	origins []string
	router  chi.Router
}

func New(opts Options) *Server {
	s := &Server{gw: opts.Gateway, hub: opts.Hub, archive: opts.Archive, origins: opts.AllowedOrigins}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	r.Get("/ws", s.handleWS)
	r.Route("/api/rooms/{roomID}", func(r chi.Router) {
		r.Get("/history", s.handleHistory)
	})
	if s.archive != nil {
		r.Get("/api/archive/games", s.handleRecentGames)
		r.Get("/api/archive/games/{gameID}", s.handleArchivedGame)
	}
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "connections": s.hub.Count()})
}

// handleWS authenticates before upgrading; a rejected token never reaches the core.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		obslog.L().Info("server_ws_accept_failed", zap.String("identity", id.ID), zap.Error(err))
		return
	}
	conn := s.hub.Attach(ws)
	if err := s.gw.Connect(conn, id); err != nil {
		obslog.L().Warn("server_connect_failed", zap.String("identity", id.ID), zap.Error(err))
		s.hub.Close(conn)
		return
	}
	obslog.L().Info("server_ws_open", zap.String("identity", id.ID), zap.String("conn", conn))

	ctx := r.Context()
	err = s.hub.ReadLoop(ctx, conn, func(env relaydto.Envelope) {
		s.gw.Dispatch(ctx, conn, env)
	})
	s.hub.Close(conn)
	s.gw.Disconnect(conn)
	fields := []zap.Field{zap.String("identity", id.ID), zap.String("conn", conn)}
	if err != nil && !errors.Is(err, context.Canceled) {
		fields = append(fields, zap.Error(err))
	}
	obslog.L().Info("server_ws_closed", fields...)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	roomID := chi.URLParam(r, "roomID")
	moves, err := s.gw.History(roomID)
	if errors.Is(err, session.ErrRoomNotFound) {
		writeJSON(w, http.StatusNotFound, relaydto.GameNotFound{RoomID: roomID})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, relaydto.Error{Code: "internal", Message: "history unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, relaydto.MoveHistory{RoomID: roomID, Moves: moves})
}

func (s *Server) handleRecentGames(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	limit := int64(defaultRecentGames)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, relaydto.Error{Code: "invalid_request", Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentGames)
	}
	ids, err := s.archive.Recent(r.Context(), limit)
	if err != nil {
		obslog.L().Warn("server_archive_recent_failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, relaydto.Error{Code: "internal", Message: "archive unavailable"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": ids})
}

func (s *Server) handleArchivedGame(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}
	gameID := chi.URLParam(r, "gameID")
	rec, err := s.archive.Get(r.Context(), gameID)
	switch {
	case errors.Is(err, archive.ErrNotFound):
		writeJSON(w, http.StatusNotFound, relaydto.Error{Code: "not_found", Message: "archived game not found"})
	case err != nil:
		obslog.L().Warn("server_archive_get_failed", zap.String("game_id", gameID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, relaydto.Error{Code: "internal", Message: "archive unavailable"})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, err := s.gw.Authenticate(r.Context(), bearerToken(r))
	switch {
	case err == nil:
		return id, true
	case errors.Is(err, identity.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, relaydto.Error{Code: "unauthorized", Message: "authentication required"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, relaydto.Error{Code: "auth_unavailable", Message: "identity provider unavailable"})
	}
	return identity.Identity{}, false
}

// bearerToken reads the Authorization header, falling back to the token query
// parameter browsers must use for websocket handshakes.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Debug("server_write_failed", zap.Error(err))
	}
}
