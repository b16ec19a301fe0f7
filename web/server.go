package web

import (
	"FaceSyncServer/engine"
	iface "FaceSyncServer/interface"
	"FaceSyncServer/logger"
	"FaceSyncServer/render"
	"FaceSyncServer/session"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultFrameWidth  = 640
	defaultFrameHeight = 480
)

type Config struct {
	// CommandRate 为每个 websocket 连接每秒允许的指令数
	CommandRate  rate.Limit
	CommandBurst int
	IdleTimeout  time.Duration
}

type Server struct {
	manager  *session.Manager
	sim      iface.Simulator
	cfg      Config
	router   *gin.Engine
	upgrader websocket.Upgrader
}

func New(manager *session.Manager, sim iface.Simulator, cfg Config) *Server {
	if cfg.CommandRate <= 0 {
		cfg.CommandRate = 20
	}
	if cfg.CommandBurst <= 0 {
		cfg.CommandBurst = 10
	}
	s := &Server{
		manager: manager,
		sim:     sim,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/filters", s.listFilters)
	r.POST("/api/simulate", s.simulate)
	r.POST("/api/sessions", s.allocSession)
	r.GET("/api/sessions", s.listSessions)
	r.GET("/api/sessions/:sessionID", s.checkSession)
	r.POST("/api/sessions/:sessionID/start", s.startSession)
	r.POST("/api/sessions/:sessionID/stop", s.stopSession)
	r.PUT("/api/sessions/:sessionID/filter", s.setFilter)
	r.POST("/api/sessions/:sessionID/release", s.releaseSession)
	r.GET("/api/sessions/:sessionID/frame.png", s.framePNG)
	r.GET("/ws/:sessionID", s.serveWS)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log().Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Run 阻塞直到 ctx 取消，然后优雅关闭
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Log().Info("HTTP server listening", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoCapacity):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrAlreadyStreaming):
		return http.StatusConflict
	case errors.Is(err, session.ErrPermissionDenied), errors.Is(err, session.ErrUnsupportedDevice):
		return http.StatusForbidden
	case errors.Is(err, iface.ErrUnknownFilter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

type filterInfo struct {
	Name    iface.Filter  `json:"name"`
	Style   iface.Style   `json:"style"`
	Overlay iface.Overlay `json:"overlay"`
}

func (s *Server) listFilters(c *gin.Context) {
	rng := rand.New(rand.NewPCG(1, 1))
	out := make([]filterInfo, 0, len(iface.Filters))
	for _, f := range iface.Filters {
		out = append(out, filterInfo{
			Name:    f,
			Style:   engine.StyleFor(f, iface.DetectionBox{}, rng),
			Overlay: engine.OverlayFor(f),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

type simulateRequest struct {
	Time   *float64 `json:"time" binding:"required"`
	Filter string   `json:"filter"`
	Seed   *uint64  `json:"seed"`
}

// simulate 执行一次无状态 tick。未知滤镜照常返回检测框，只是不加样式。
func (s *Server) simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter := iface.Filter(req.Filter)
	if filter == "" {
		filter = iface.FilterNormal
	}
	seed := rand.Uint64()
	if req.Seed != nil {
		seed = *req.Seed
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	boxes := s.sim.Tick(*req.Time, filter, rng)
	c.JSON(http.StatusOK, gin.H{
		"detectionChance": engine.DetectionChance(*req.Time),
		"filter":          filter,
		"seed":            seed,
		"boxes":           boxes,
		"overlay":         engine.OverlayFor(filter),
	})
}

type allocRequest struct {
	Seed uint64 `json:"seed"`
}

func (s *Server) allocSession(c *gin.Context) {
	var req allocRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	sess, err := s.manager.Alloc(req.Seed)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionID": sess.ID,
		"wsURL":     fmt.Sprintf("ws://%s/ws/%s", c.Request.Host, sess.ID),
		"timeoutMs": s.cfg.IdleTimeout.Milliseconds(),
		"filter":    sess.Filter(),
	})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.manager.List()})
}

func (s *Server) lookup(c *gin.Context) (*session.Session, bool) {
	sess, err := s.manager.Get(c.Param("sessionID"))
	if err != nil {
		abort(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) checkSession(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	sess.Touch()
	c.JSON(http.StatusOK, gin.H{"data": sess.Snapshot()})
}

type startRequest struct {
	Permission string `json:"permission" binding:"required"`
}

func (s *Server) startSession(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := sess.Start(c.Request.Context(), iface.Permission(req.Permission)); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sess.Snapshot()})
}

func (s *Server) stopSession(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	sess.Stop()
	c.JSON(http.StatusOK, gin.H{"data": sess.Snapshot()})
}

type filterRequest struct {
	Filter string `json:"filter" binding:"required"`
}

func (s *Server) setFilter(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, err := sess.SetFilter(req.Filter)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"filter": f}})
}

func (s *Server) releaseSession(c *gin.Context) {
	if err := s.manager.Release(c.Param("sessionID")); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": "Session released"})
}

func queryDimension(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func (s *Server) framePNG(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	width, err := queryDimension(c, "width", defaultFrameWidth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	height, err := queryDimension(c, "height", defaultFrameHeight)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := render.PNG(sess.Boxes(), sess.Filter(), width, height)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, render.ErrInvalidSize) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}
