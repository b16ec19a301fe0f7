package web

import (
	iface "FaceSyncServer/interface"
	"FaceSyncServer/logger"
	"FaceSyncServer/session"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	wsReadLimit    = 64 * 1024
	wsWriteTimeout = 2 * time.Second
)

const (
	commandStart  = "start"
	commandStop   = "stop"
	commandFilter = "filter"
	commandPing   = "ping"
)

type wsCommand struct {
	Type       string `json:"type"`
	Permission string `json:"permission,omitempty"`
	Filter     string `json:"filter,omitempty"`
}

// wsConn 串行化写操作，gorilla 的连接不支持并发写
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) sendError(msg string) {
	_ = w.send(session.Event{Type: session.EventError, Error: msg})
}

func (s *Server) serveWS(c *gin.Context) {
	sessionID := c.Param("sessionID")
	// 在升级前检查会话是否存在
	sess, err := s.manager.Get(sessionID)
	if err != nil {
		abort(c, err)
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 升级失败，不要再写 JSON
		return
	}
	conn.SetReadLimit(wsReadLimit)
	wc := &wsConn{conn: conn}

	events, unsubscribe := sess.Subscribe()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range events {
			if err := wc.send(ev); err != nil {
				logger.Log().Debug("websocket write failed", zap.String("sessionID", sessionID), zap.Error(err))
				return
			}
		}
	}()

	limiter := rate.NewLimiter(s.cfg.CommandRate, s.cfg.CommandBurst)
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			// 客户端断开或读取错误，释放会话
			logger.Log().Info("websocket closed", zap.String("sessionID", sessionID), zap.Error(err))
			break
		}
		sess.Touch()
		if mt != websocket.TextMessage {
			wc.sendError("unsupported message type")
			continue
		}
		if !limiter.Allow() {
			wc.sendError("too many commands")
			continue
		}
		var cmd wsCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			wc.sendError("invalid command: " + err.Error())
			continue
		}
		s.handleCommand(c, sess, wc, cmd)
	}

	unsubscribe()
	<-writerDone
	if err := s.manager.Release(sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
		logger.Log().Warn("release after websocket close failed", zap.String("sessionID", sessionID), zap.Error(err))
	}
	_ = conn.Close()
}

func (s *Server) handleCommand(c *gin.Context, sess *session.Session, wc *wsConn, cmd wsCommand) {
	switch cmd.Type {
	case commandStart:
		// 拒绝授权的结果已通过 status 事件推送
		if err := sess.Start(c.Request.Context(), iface.Permission(cmd.Permission)); errors.Is(err, session.ErrAlreadyStreaming) {
			wc.sendError(err.Error())
		}
	case commandStop:
		sess.Stop()
	case commandFilter:
		if _, err := sess.SetFilter(cmd.Filter); err != nil {
			wc.sendError(err.Error())
		}
	case commandPing:
		_ = wc.send(gin.H{"type": "pong"})
	default:
		wc.sendError("unknown command: " + cmd.Type)
	}
}
