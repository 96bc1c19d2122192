package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appconfig "cascadeflow/config"
	"cascadeflow/internal/analytics"
	"cascadeflow/internal/feed"
	"cascadeflow/internal/models"
	"cascadeflow/logger"
)

// Server exposes the read-only query API over the analytics result store.
type Server struct {
	cfg        appconfig.APIConfig
	store      *analytics.Store
	regime     *analytics.RegimeDetector
	health     *feed.Health
	log        *logger.Log
	httpServer *http.Server
	startedAt  time.Time
}

// NewServer constructs the API server when enabled; returns nil otherwise.
func NewServer(cfg appconfig.APIConfig, store *analytics.Store, regime *analytics.RegimeDetector, health *feed.Health) *Server {
	if !cfg.Enabled {
		return nil
	}
	cfg.Address = normalizeAddress(cfg.Address)
	return &Server{
		cfg:       cfg,
		store:     store,
		regime:    regime,
		health:    health,
		log:       logger.GetLogger(),
		startedAt: time.Now().UTC(),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled or the
// server exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	s.log.WithComponent("api").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("api server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/api/v1/health", s.handleHealth)
	router.GET("/api/v1/regime", s.handleRegime)
	router.GET("/api/v1/symbols", s.handleSymbols)
	router.GET("/api/v1/signals/active", s.handleActiveSignals)
	router.GET("/api/v1/signal/:symbol", s.handleSignal)
	router.GET("/api/v1/signal/:symbol/history", s.handleSignalHistory)
	router.GET("/api/v1/risk/:symbol", s.handleRisk)
	router.GET("/api/v1/velocity/:symbol", s.handleVelocity)

	return router, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	lastSeen := s.health.Snapshot()
	venues := make(gin.H, len(models.Exchanges))
	healthy := true
	for _, ex := range models.Exchanges {
		stale := s.health.Stale(ex)
		venue := gin.H{"live": !stale}
		if seen, ok := lastSeen[ex]; ok {
			venue["last_seen"] = seen.UTC()
		}
		venues[string(ex)] = venue
		if stale {
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy":        healthy,
		"venues":         venues,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleRegime(c *gin.Context) {
	c.JSON(http.StatusOK, s.regime.Current())
}

func (s *Server) handleSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.store.Symbols()})
}

func (s *Server) handleActiveSignals(c *gin.Context) {
	min := models.LevelWatch
	if lvl := c.Query("min_level"); lvl != "" {
		min = parseLevel(lvl)
	}
	maxAge := time.Minute
	if raw := c.Query("max_age"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			maxAge = d
		}
	}
	c.JSON(http.StatusOK, gin.H{"signals": s.store.ActiveSignals(min, maxAge)})
}

func (s *Server) handleSignal(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	sig, ok := s.store.LatestSignal(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not evaluated", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (s *Server) handleSignalHistory(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":  symbol,
		"signals": s.store.SignalHistory(symbol, limit),
	})
}

func (s *Server) handleRisk(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	a, ok := s.store.LatestAssessment(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not evaluated", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleVelocity(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	v, ok := s.store.Velocity(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "symbol not evaluated", "symbol": symbol})
		return
	}

	coeff, level, _ := s.store.Correlation(symbol)
	c.JSON(http.StatusOK, gin.H{
		"symbol":            symbol,
		"exchanges":         v,
		"correlation":       coeff,
		"correlation_level": level,
	})
}

func parseLevel(raw string) models.SignalLevel {
	switch strings.ToUpper(raw) {
	case "EXTREME":
		return models.LevelExtreme
	case "CRITICAL":
		return models.LevelCritical
	case "ALERT":
		return models.LevelAlert
	case "WATCH":
		return models.LevelWatch
	default:
		return models.LevelNone
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ":8080"
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}
