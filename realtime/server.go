package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"pictionary/game"
	"pictionary/middlewares"
	"pictionary/models"
	"pictionary/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server はプレイヤーごとの WebSocket 接続を扱います。
type Server struct {
	engine   *game.Engine
	issuer   *middlewares.TokenIssuer
	cfg      models.ServerConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// プレイヤーごとに有効な接続は1つだけ
	mu    sync.Mutex
	conns map[string]*session
}

func NewServer(engine *game.Engine, issuer *middlewares.TokenIssuer, cfg models.ServerConfig, logger *zap.Logger) *Server {
	srv := &Server{
		engine: engine,
		issuer: issuer,
		cfg:    cfg,
		logger: logger,
		conns:  make(map[string]*session),
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     srv.checkOrigin,
	}
	return srv
}

// checkOrigin allows requests without an Origin header (non-browser clients).
func (srv *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range srv.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	srv.logger.Warn("Rejected websocket origin", zap.String("origin", origin))
	return false
}

// HandleConnections upgrades an authenticated player and serves the connection
// until it closes.
func (srv *Server) HandleConnections(c *gin.Context) {
	tokenString := middlewares.TokenFromRequest(c)
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "unauthorized", "error": "Token is required"})
		return
	}
	claims, err := srv.issuer.ParseToken(tokenString)
	if err != nil {
		srv.logger.Warn("認証失敗", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"status": "unauthorized", "error": "Invalid token"})
		return
	}

	ctx := context.Background()
	presence, err := srv.engine.Connect(ctx, claims.SessionID, claims.PlayerID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, game.ErrSessionNotFound) || errors.Is(err, game.ErrPlayerNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"status": game.ErrorCode(err), "error": err.Error()})
		return
	}

	conn, err := srv.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade が既にエラー応答を書き込んでいる
		srv.logger.Error("Error upgrading WebSocket", zap.Error(err))
		presence.Release()
		return
	}

	logger := srv.logger.With(zap.String("sessionID", claims.SessionID), zap.String("playerID", claims.PlayerID))
	logger.Info("WebSocket connected")
	sess := &session{
		srv:      srv,
		ctx:      ctx,
		presence: presence,
		client:   newClient(conn, logger),
		conn:     conn,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(srv.cfg.MessagesPerSec), srv.cfg.MessageBurst),
	}
	if old := srv.register(sess); old != nil {
		logger.Info("Superseding an older connection of the same player")
		old.supersede()
	}
	sess.run()
}

func connKey(sessionID, playerID string) string { return sessionID + "/" + playerID }

// register makes sess the player's connection and returns the one it replaces.
func (srv *Server) register(sess *session) *session {
	key := connKey(sess.sessionID(), sess.playerID())
	srv.mu.Lock()
	defer srv.mu.Unlock()
	old := srv.conns[key]
	srv.conns[key] = sess
	return old
}

// unregister reports whether sess was still the player's connection.
func (srv *Server) unregister(sess *session) bool {
	key := connKey(sess.sessionID(), sess.playerID())
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.conns[key] != sess {
		return false
	}
	delete(srv.conns, key)
	return true
}

// session is one player's live connection.
type session struct {
	srv      *Server
	ctx      context.Context
	presence *game.Presence
	client   *client
	conn     *websocket.Conn
	logger   *zap.Logger
	limiter  *rate.Limiter
	driver   *game.HostDriver

	// deliverMu orders onChange calls from the subscription and the initial read.
	deliverMu sync.Mutex
	version   int64

	mu       sync.Mutex
	graceful bool
}

func (s *session) sessionID() string { return s.presence.SessionID }
func (s *session) playerID() string  { return s.presence.PlayerID }

func (s *session) run() {
	s.driver = s.srv.engine.NewHostDriver(s.ctx, s.sessionID(), s.playerID())

	go s.client.writePump(s.srv.cfg.PingPeriod.Std())

	unsubscribe, err := s.srv.engine.Subscribe(s.ctx, s.sessionID(), s.onChange)
	if err != nil {
		s.logger.Error("Failed to subscribe", zap.Error(err))
		s.client.close()
		s.driver.Stop()
		if s.srv.unregister(s) {
			s.presence.Close()
		} else {
			s.presence.Release()
		}
		return
	}

	// 購読前の状態を初回として送る
	if snapshot, err := s.srv.engine.Session(s.ctx, s.sessionID()); err == nil {
		s.onChange(store.Change{SessionID: s.sessionID(), Session: snapshot})
	} else {
		s.onChange(store.Change{SessionID: s.sessionID(), Deleted: true})
	}

	s.readPump()

	unsubscribe()
	s.driver.Stop()
	s.client.close()
	current := s.srv.unregister(s)
	if s.isGraceful() || !current {
		// 退出済み、または新しい接続に引き継がれた
		s.presence.Release()
	} else {
		s.presence.Close()
	}
	s.logger.Info("WebSocket disconnected")
}

// onChange pushes the player's view and lets the host driver react to the new state.
func (s *session) onChange(change store.Change) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if change.Deleted || change.Session == nil {
		s.driver.Observe(nil)
		s.closeGracefully()
		return
	}
	// 初回読み込みと購読が競合した場合の古いスナップショット
	if change.Session.Version <= s.version {
		return
	}
	s.version = change.Session.Version
	s.driver.Observe(change.Session)
	if !change.Session.HasPlayer(s.playerID()) {
		// 別の接続やスイープで退出済み
		s.closeGracefully()
		return
	}
	view := game.View(change.Session, s.playerID())
	s.client.sendState(OutboundMessage{Type: TypeGameState, Session: &view})
}

// supersede hands the player over to a newer connection. The player stays in the session.
func (s *session) supersede() {
	s.client.sendReply(OutboundMessage{Type: TypeError, Status: "superseded", Error: "Connected from another tab"})
	s.closeGracefully()
}

func (s *session) isGraceful() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graceful
}

// closeGracefully ends the connection without running the disconnect cleanup.
func (s *session) closeGracefully() {
	s.mu.Lock()
	already := s.graceful
	s.graceful = true
	s.mu.Unlock()
	if already {
		return
	}
	s.client.close()
	// 読み込みループを止める
	s.conn.SetReadDeadline(time.Now())
}

func (s *session) readPump() {
	readDeadline := s.srv.cfg.ReadDeadline.Std()
	s.conn.SetReadLimit(64 * 1024)
	s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(readDeadline))
		s.heartbeat()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !s.isGraceful() {
				s.logger.Info("Error reading message", zap.Error(err))
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(readDeadline))

		if !s.limiter.Allow() {
			s.logger.Debug("Rate limit exceeded, dropping message")
			continue
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("Invalid message", zap.Error(err))
			s.client.sendReply(OutboundMessage{Type: TypeError, Status: "bad_request", Error: "Invalid message"})
			continue
		}
		if stop := s.dispatch(msg); stop {
			return
		}
	}
}

func (s *session) heartbeat() {
	if err := s.srv.engine.Heartbeat(s.ctx, s.sessionID(), s.playerID()); err != nil {
		s.logger.Debug("Heartbeat failed", zap.Error(err))
	}
}

// dispatch handles one inbound message and reports whether the connection should end.
func (s *session) dispatch(msg InboundMessage) bool {
	ctx, sid, pid := s.ctx, s.sessionID(), s.playerID()

	switch msg.Type {
	case TypeChatMessage:
		out, err := s.srv.engine.SubmitChat(ctx, sid, pid, msg.Text)
		if err != nil {
			s.replyError(err)
			return false
		}
		if out.Correct {
			s.client.sendReply(OutboundMessage{Type: TypeGuess, Correct: true, Settled: out.Settled})
		}
	case TypeDraw:
		if msg.Stroke == nil {
			return false
		}
		s.ignoreNotYourTurn(s.srv.engine.Draw(ctx, sid, pid, *msg.Stroke))
	case TypeClearCanvas:
		s.ignoreNotYourTurn(s.srv.engine.ClearCanvas(ctx, sid, pid))
	case TypeStartGame:
		if _, err := s.srv.engine.StartGame(ctx, sid, pid); err != nil {
			s.replyError(err)
		}
	case TypePlayAgain:
		if _, err := s.srv.engine.PlayAgain(ctx, sid, pid); err != nil {
			s.replyError(err)
		}
	case TypeHeartbeat:
		s.heartbeat()
	case TypeLeave:
		if _, err := s.srv.engine.Leave(ctx, sid, pid); err != nil &&
			!errors.Is(err, game.ErrPlayerNotFound) && !errors.Is(err, game.ErrSessionNotFound) {
			s.logger.Error("Failed to leave", zap.Error(err))
		}
		s.closeGracefully()
		return true
	default:
		s.logger.Warn("Unknown message type", zap.String("type", msg.Type))
	}
	return false
}

func (s *session) ignoreNotYourTurn(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, game.ErrNotYourTurn) {
		s.logger.Debug("Ignoring drawing from non-drawer")
		return
	}
	s.replyError(err)
}

func (s *session) replyError(err error) {
	code := game.ErrorCode(err)
	if code == "internal_error" {
		s.logger.Error("Game action failed", zap.Error(err))
	}
	s.client.sendReply(OutboundMessage{Type: TypeError, Status: code, Error: err.Error()})
}
