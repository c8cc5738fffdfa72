// Package ws exposes the game over Socket.IO and implements game.Transport.
package ws

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/asfreeas-aatto/aatto/internal/game"
	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/rs/zerolog/log"
)

const (
	namespace = "/"
	// outboxSize bounds the events queued for one connection before new ones
	// are dropped.
	outboxSize = 64
)

// conn is the part of socketio.Conn the handlers use.
type conn interface {
	ID() string
	Emit(event string, v ...interface{})
}

type envelope struct {
	event   string
	payload any
}

// outbox queues events for one connection and writes them from its own
// goroutine, so callers holding game locks never wait on the network.
type outbox struct {
	c    conn
	ch   chan envelope
	done chan struct{}
}

func newOutbox(c conn, size int) *outbox {
	ob := &outbox{c: c, ch: make(chan envelope, size), done: make(chan struct{})}
	go ob.run()
	return ob
}

func (ob *outbox) run() {
	for {
		select {
		case <-ob.done:
			return
		case e := <-ob.ch:
			ob.c.Emit(e.event, e.payload)
		}
	}
}

func (ob *outbox) push(event string, payload any) bool {
	select {
	case ob.ch <- envelope{event: event, payload: payload}:
		return true
	default:
		return false
	}
}

type Server struct {
	lobby *game.Lobby
	ctrl  *game.Controller

	mu    sync.RWMutex
	conns map[string]*outbox // socketID -> outbox
	io    *socketio.Server
}

var _ game.Transport = (*Server)(nil)

func New() *Server {
	return &Server{conns: make(map[string]*outbox)}
}

// Attach wires the game the socket handlers drive. It must be called before
// Mount.
func (srv *Server) Attach(lobby *game.Lobby, ctrl *game.Controller) {
	srv.lobby, srv.ctrl = lobby, ctrl
}

// Emit queues one event for a single connection. It never blocks; a full
// outbox drops the event and reports it.
func (srv *Server) Emit(connID, event string, payload any) error {
	srv.mu.RLock()
	ob := srv.conns[connID]
	srv.mu.RUnlock()
	if ob == nil {
		return fmt.Errorf("connection %s is gone", connID)
	}
	if !ob.push(event, payload) {
		return fmt.Errorf("outbox of %s is full, dropped %s", connID, event)
	}
	return nil
}

// EmitAll queues the event for every connected socket.
func (srv *Server) EmitAll(event string, payload any) error {
	srv.mu.RLock()
	var dropped []string
	for id, ob := range srv.conns {
		if !ob.push(event, payload) {
			dropped = append(dropped, id)
		}
	}
	srv.mu.RUnlock()
	if len(dropped) > 0 {
		return fmt.Errorf("broadcast %s: outbox full for %s", event, strings.Join(dropped, ", "))
	}
	return nil
}

func (srv *Server) register(c conn) {
	ob := newOutbox(c, outboxSize)
	srv.mu.Lock()
	old := srv.conns[c.ID()]
	srv.conns[c.ID()] = ob
	srv.mu.Unlock()
	if old != nil {
		close(old.done)
	}
}

func (srv *Server) unregister(id string) {
	srv.mu.Lock()
	ob := srv.conns[id]
	delete(srv.conns, id)
	srv.mu.Unlock()
	if ob != nil {
		close(ob.done)
	}
}

// send replies on c through its outbox so replies keep their order with game
// events.
func (srv *Server) send(c conn, event string, payload any) {
	if err := srv.Emit(c.ID(), event, payload); err != nil {
		log.Warn().Err(fmt.Errorf("%w: %v", game.ErrTransportFailure, err)).Str("sid", c.ID()).Str("event", event).Msg("reply dropped")
	}
}

type poemLines struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
	Line3 string `json:"line3"`
}

type joinQueuePayload struct {
	UserID   string `json:"userId"`
	Rank     string `json:"rank"`
	Nickname string `json:"nickname"`
	Level    int    `json:"level"`
}

type userPayload struct {
	UserID string `json:"userId"`
}

type submitPoemPayload struct {
	GameID string    `json:"gameId"`
	UserID string    `json:"userId"`
	Poem   poemLines `json:"poem"`
}

type votePayload struct {
	GameID  string `json:"gameId"`
	PoemID  string `json:"poemId"`
	VoterID string `json:"voterId"`
}

type aiBattlePayload struct {
	UserID     string `json:"userId"`
	Nickname   string `json:"nickname"`
	Rank       string `json:"rank"`
	Difficulty string `json:"difficulty"`
	Theme      string `json:"theme"`
}

// Mount attaches Socket.IO server with handlers to the given Gin engine.
// allowOrigin decides which browser origins may connect.
func (srv *Server) Mount(r *gin.Engine, allowOrigin func(origin string) bool) *socketio.Server {
	check := func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		return origin == "" || allowOrigin == nil || allowOrigin(origin)
	}
	io := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{CheckOrigin: check},
			&websocket.Transport{CheckOrigin: check},
		},
	})
	srv.io = io

	io.OnConnect(namespace, func(s socketio.Conn) error {
		srv.onConnect(s)
		return nil
	})
	io.OnEvent(namespace, "join-queue", func(s socketio.Conn, p joinQueuePayload) map[string]any {
		return srv.joinQueue(s, p)
	})
	io.OnEvent(namespace, "leave-queue", func(s socketio.Conn, p userPayload) map[string]any {
		return srv.leaveQueue(s, p)
	})
	io.OnEvent(namespace, "get-queue-status", func(s socketio.Conn) map[string]any {
		return srv.queueStatus(s)
	})
	io.OnEvent(namespace, "submit-poem", func(s socketio.Conn, p submitPoemPayload) map[string]any {
		return srv.submitPoem(s, p)
	})
	io.OnEvent(namespace, "vote", func(s socketio.Conn, p votePayload) map[string]any {
		return srv.vote(s, p)
	})
	io.OnEvent(namespace, "start-ai-battle", func(s socketio.Conn, p aiBattlePayload) map[string]any {
		return srv.startAIBattle(s, p)
	})
	// resume (reconnection)
	io.OnEvent(namespace, "resume", func(s socketio.Conn, p userPayload) map[string]any {
		return srv.resume(s, p)
	})
	io.OnError(namespace, func(s socketio.Conn, e error) {
		if s == nil {
			log.Error().Err(e).Msg("socket error")
			return
		}
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect(namespace, func(s socketio.Conn, reason string) {
		srv.onDisconnect(s, reason)
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket server stopped")
		}
	}()

	// Mount to router
	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	return io
}

func (srv *Server) onConnect(c conn) {
	srv.register(c)
	log.Info().Str("sid", c.ID()).Msg("socket connected")
}

func (srv *Server) onDisconnect(c conn, reason string) {
	srv.unregister(c.ID())
	srv.lobby.Disconnect(c.ID())
	log.Info().Str("sid", c.ID()).Str("reason", reason).Msg("socket disconnected")
}

func (srv *Server) joinQueue(c conn, p joinQueuePayload) map[string]any {
	res, err := srv.lobby.Join(game.Participant{
		ID:       p.UserID,
		Bracket:  game.Bracket(p.Rank),
		Nickname: p.Nickname,
		Level:    p.Level,
	}, c.ID())
	if err != nil {
		return srv.err(c, err)
	}
	log.Info().Str("sid", c.ID()).Str("userId", p.UserID).Str("rank", string(res.Bracket)).Msg("join-queue")
	return map[string]any{"ok": true, "position": res.Position, "gameId": res.SessionID}
}

func (srv *Server) leaveQueue(c conn, p userPayload) map[string]any {
	st, left := srv.lobby.Leave(srv.identity(c, p.UserID))
	if !left {
		// nothing queued: still answer so the client can reset its view
		srv.send(c, "queue-left", st)
	}
	return map[string]any{"ok": true}
}

func (srv *Server) queueStatus(c conn) map[string]any {
	st := srv.lobby.Status()
	srv.send(c, "queue-status", st)
	return map[string]any{"total": st.Total, "byRank": st.ByBracket}
}

func (srv *Server) submitPoem(c conn, p submitPoemPayload) map[string]any {
	userID := strings.TrimSpace(p.UserID)
	if bound, ok := srv.lobby.Registry().Identity(c.ID()); ok && userID != "" && bound != userID {
		return srv.err(c, fmt.Errorf("%w: connection belongs to %s", game.ErrInvalidInput, bound))
	}
	sub, err := srv.ctrl.Submit(p.GameID, userID, game.Lines{p.Poem.Line1, p.Poem.Line2, p.Poem.Line3})
	if err != nil {
		return srv.err(c, err)
	}
	srv.send(c, "poem-submit-success", map[string]any{"poemId": sub.ID, "gameId": sub.SessionID})
	return map[string]any{"ok": true, "poemId": sub.ID}
}

func (srv *Server) vote(c conn, p votePayload) map[string]any {
	voter := strings.TrimSpace(p.VoterID)
	if voter == "" {
		voter = srv.identity(c, c.ID())
	}
	if _, err := srv.ctrl.Vote(p.GameID, voter, p.PoemID); err != nil {
		return srv.err(c, err)
	}
	return map[string]any{"ok": true}
}

func (srv *Server) startAIBattle(c conn, p aiBattlePayload) map[string]any {
	view, err := srv.lobby.StartAIBattle(game.Participant{
		ID:       p.UserID,
		Bracket:  game.Bracket(p.Rank),
		Nickname: p.Nickname,
	}, c.ID(), p.Theme, p.Difficulty)
	if err != nil {
		return srv.err(c, err)
	}
	log.Info().Str("sid", c.ID()).Str("userId", p.UserID).Str("gameId", view.ID).Msg("start-ai-battle")
	return map[string]any{"ok": true, "game": view}
}

func (srv *Server) resume(c conn, p userPayload) map[string]any {
	if strings.TrimSpace(p.UserID) == "" {
		return srv.err(c, fmt.Errorf("%w: userId is required", game.ErrInvalidInput))
	}
	view, ok := srv.lobby.Resume(p.UserID, c.ID())
	log.Info().Str("sid", c.ID()).Str("userId", p.UserID).Bool("inGame", ok).Msg("resume")
	if !ok {
		return map[string]any{"ok": true}
	}
	return map[string]any{"ok": true, "game": view}
}

// identity prefers the identity bound to the connection over what the
// client claims.
func (srv *Server) identity(c conn, fallback string) string {
	if id, ok := srv.lobby.Registry().Identity(c.ID()); ok {
		return id
	}
	return strings.TrimSpace(fallback)
}

func (srv *Server) err(c conn, err error) map[string]any {
	code := game.ReasonCode(err)
	ev := log.Debug()
	if code == "internal" {
		ev = log.Warn()
	}
	ev.Str("sid", c.ID()).Str("code", code).Err(err).Msg("request rejected")
	srv.send(c, "error", map[string]any{"code": code, "message": err.Error()})
	return map[string]any{"error": code, "message": err.Error()}
}
