// Package server exposes matches over HTTP and player connections over
// WebSocket.
//
//	POST /matches                              create a match (optional map document as body)
//	GET  /matches                              list matches
//	GET  /matches/{code}                       match snapshot
//	POST /matches/{code}/meeting/end           end the current meeting
//	POST /matches/{code}/players/{id}/alive    {"alive": false} kills a player
//	GET  /ws?match={code}&player={id}&name=    player connection (JSON-RPC over WebSocket)
//	GET  /healthz
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/taskparty/channel"
	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/game"
	"github.com/vinayprograms/taskparty/logging"
	"github.com/vinayprograms/taskparty/ratelimit"
	"github.com/vinayprograms/taskparty/task"
	"github.com/vinayprograms/taskparty/transport"
)

const maxMapSize = 1 << 20

// MapSource returns the map new matches play when the create request has
// no body.
type MapSource func() (*task.Map, error)

// Config configures the server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	WebSocket      transport.WebSocketConfig

	// CreateLimit throttles match creation per client address.
	CreateLimit ratelimit.Config
}

// Server is the party server's HTTP front end.
type Server struct {
	cfg      Config
	manager  *game.Manager
	maps     MapSource
	log      *logging.Logger
	upgrader *websocket.Upgrader
	creates  *ratelimit.Limiter
	http     *http.Server

	// ctx ends player connections on shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup
}

// New creates a server for manager's matches.
func New(cfg Config, manager *game.Manager, maps MapSource, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:      cfg,
		manager:  manager,
		maps:     maps,
		log:      log.WithComponent("server"),
		upgrader: transport.NewWebSocketUpgrader(cfg.AllowedOrigins...),
		creates:  ratelimit.New(cfg.CreateLimit),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /matches", s.handleCreate)
	mux.HandleFunc("GET /matches", s.handleList)
	mux.HandleFunc("GET /matches/{code}", s.handleSnapshot)
	mux.HandleFunc("POST /matches/{code}/meeting/end", s.handleEndMeeting)
	mux.HandleFunc("POST /matches/{code}/players/{player}/alive", s.handleAlive)
	mux.HandleFunc("GET /ws", s.handleConnect)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", map[string]interface{}{"addr": s.cfg.Addr})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// OnShutdown stops accepting requests, closes player connections and waits
// for their handlers to return.
func (s *Server) OnShutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return gerrors.Wrap(ctx.Err(), "wait for player connections")
	}
	return err
}

type createResponse struct {
	Code string `json:"code"`
	Map  string `json:"map"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	host := clientHost(r)
	s.creates.Prune()
	if !s.creates.Allow(host) {
		writeError(w, gerrors.RateLimited(host))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMapSize))
	if err != nil {
		writeError(w, gerrors.InvalidInput("read body: "+err.Error()))
		return
	}

	var mp *task.Map
	if len(body) > 0 {
		mp, err = task.ParseMap(body)
	} else {
		mp, err = s.maps()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := s.manager.Create(mp)
	if err != nil {
		s.log.Warn("create_failed", map[string]interface{}{"map": mp.Name, "error": err.Error()})
		writeError(w, err)
		return
	}
	s.log.Info("match_created", map[string]interface{}{"match": c.ID(), "map": mp.Name})
	writeJSON(w, http.StatusCreated, createResponse{Code: c.ID(), Map: mp.Name})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	c, ok := s.match(w, r)
	if !ok {
		return
	}
	snap, err := c.Snapshot()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEndMeeting(w http.ResponseWriter, r *http.Request) {
	c, ok := s.match(w, r)
	if !ok {
		return
	}
	if err := c.EndMeeting(); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type aliveRequest struct {
	Alive bool `json:"alive"`
}

func (s *Server) handleAlive(w http.ResponseWriter, r *http.Request) {
	c, ok := s.match(w, r)
	if !ok {
		return
	}
	var req aliveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gerrors.InvalidInput("bad body: "+err.Error()))
		return
	}
	if err := c.SetAlive(r.PathValue("player"), req.Alive); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, playerID := q.Get("match"), q.Get("player")
	c, ok := s.manager.Get(code)
	if !ok {
		writeError(w, gerrors.NotFound("no match "+code))
		return
	}
	if playerID == "" {
		writeError(w, gerrors.InvalidInput("player is required"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		s.log.Warn("upgrade_failed", map[string]interface{}{"error": err.Error()})
		return
	}

	s.conns.Add(1)
	defer s.conns.Done()

	wt := transport.NewWebSocketTransport(conn, s.cfg.WebSocket)
	ch := channel.New(wt, channel.WithLogger(s.log), channel.WithID(code+"/"+playerID))
	if _, err := c.Join(r.Context(), playerID, q.Get("name"), ch); err != nil {
		s.log.Info("join_rejected", map[string]interface{}{"match": code, "player": playerID, "error": err.Error()})
		rejectConnection(conn, err)
		return
	}

	if err := ch.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug("connection_ended", map[string]interface{}{"match": code, "player": playerID, "error": err.Error()})
	}
}

func (s *Server) match(w http.ResponseWriter, r *http.Request) (*game.Coordinator, bool) {
	code := r.PathValue("code")
	c, ok := s.manager.Get(code)
	if !ok {
		writeError(w, gerrors.NotFound("no match "+code))
	}
	return c, ok
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rejectConnection closes an upgraded connection with the join error as
// the close reason.
func rejectConnection(conn *websocket.Conn, err error) {
	reason := string(gerrors.Code(err))
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	gameErr, ok := gerrors.AsGameError(err).(*gerrors.Error)
	if !ok || gameErr == nil {
		gameErr = gerrors.Wrap(err, "request failed")
	}
	writeJSON(w, statusFor(gameErr.Code()), gameErr)
}

func statusFor(code gerrors.ErrorCode) int {
	switch code {
	case gerrors.ErrCodeNotFound:
		return http.StatusNotFound
	case gerrors.ErrCodeInvalidInput, gerrors.ErrCodeUnknownTaskType, gerrors.ErrCodeDuplicateTaskID:
		return http.StatusBadRequest
	case gerrors.ErrCodeWrongPhase, gerrors.ErrCodeTaskInProgress, gerrors.ErrCodeTaskCompleted,
		gerrors.ErrCodePlayerNotAlive, gerrors.ErrCodeOutOfOrder:
		return http.StatusConflict
	case gerrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case gerrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
