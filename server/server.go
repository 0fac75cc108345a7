// Package server exposes the configured adapters over a read-only HTTP API,
// next to the Prometheus scrape endpoint and recent metric and log events.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"exchangeflow/config"
	"exchangeflow/exchange"
	"exchangeflow/internal/metrics"
	"exchangeflow/logger"
)

const historySize = 200

// Server hosts the gateway.
type Server struct {
	cfg           config.ServerConfig
	appName       string
	exchanges     map[string]exchange.Exchange
	log           *logger.Log
	metricStore   *metricStore
	logStore      *logStore
	metricHandler metrics.MetricHandlerID
	httpServer    *http.Server
}

// New builds a server over exchanges. It starts capturing metric events and
// warnings right away; Run serves them.
func New(cfg config.ServerConfig, appName string, exchanges map[string]exchange.Exchange, log *logger.Log) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	cfg.Address = normalizeAddress(cfg.Address)

	metricStore := newMetricStore(historySize)
	logStore := newLogStore(historySize)
	log.AddHook(logStore)

	return &Server{
		cfg:           cfg,
		appName:       appName,
		exchanges:     exchanges,
		log:           log,
		metricStore:   metricStore,
		logStore:      logStore,
		metricHandler: metrics.RegisterMetricHandler(metricStore.handle),
	}
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithComponent("server").WithFields(logger.Fields{
		"address":   s.cfg.Address,
		"exchanges": s.exchangeIDs(),
	}).Info("starting http gateway")

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

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	s.logStore.close()
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	return s.cfg.Address
}

func (s *Server) exchangeIDs() []string {
	ids := make([]string, 0, len(s.exchanges))
	for id := range s.exchanges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	switch s.cfg.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(s.cfg.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "app": s.appName, "exchanges": s.exchangeIDs()})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.GET("/api/metrics", func(c *gin.Context) {
		snapshot := s.metricStore.forExchange(c.Query("exchange"))
		payload := make([]gin.H, 0, len(snapshot))
		for _, m := range snapshot {
			payload = append(payload, gin.H{
				"timestamp": m.Timestamp.Format(time.RFC3339Nano),
				"component": m.Component,
				"exchange":  m.Exchange,
				"name":      m.Name,
				"value":     m.Value,
				"type":      m.Type,
				"fields":    m.Fields,
			})
		}
		c.JSON(http.StatusOK, gin.H{"metrics": payload})
	})
	router.GET("/api/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot(nil)})
	})

	h := &handler{exchanges: s.exchanges, log: s.log}
	api := router.Group("/api/v1")
	api.GET("/exchanges", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"exchanges": s.exchangeIDs()})
	})
	registerExchangeRoutes(api, h)

	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil && parsed.Host != "" {
			addr = parsed.Host
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		if ip := net.ParseIP(addr); ip != nil || !strings.Contains(addr, ":") {
			return net.JoinHostPort(addr, "8080")
		}
		return addr
	}
	if host == "" || host == "*" {
		host = "0.0.0.0"
	}
	if port == "" {
		port = "8080"
	}
	return net.JoinHostPort(host, port)
}
