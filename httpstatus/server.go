// Package httpstatus is an optional read-only status/metrics surface for
// a running engine: a health endpoint and a Prometheus scrape endpoint,
// wired the way the reference demo server wires gin plus CORS. It never
// reaches into combining logic — it only reports what StatusProvider
// exposes.
package httpstatus

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// StatusProvider is implemented by anything that can report an engine's
// durability progress without exposing its internals. PBComb and PWFComb
// both implement it directly through their Seq and EngineID methods, so
// an engine can be passed to New as is.
type StatusProvider interface {
	// Seq reports the number of combining rounds durably published so far.
	Seq() uint64
	// EngineID identifies which engine instance this is reporting for.
	EngineID() string
}

// Server is a read-only HTTP front for one or more engines.
type Server struct {
	router    *gin.Engine
	http      *http.Server
	log       *logrus.Logger
	providers []StatusProvider
}

// Config configures Server.
type Config struct {
	Addr           string
	AllowedOrigins []string
}

// New builds a Server reporting status for the given providers.
func New(cfg Config, log *logrus.Logger, providers ...StatusProvider) *Server {
	if log == nil {
		log = logrus.New()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET"}
	router.Use(cors.New(corsConfig))

	s := &Server{router: router, log: log, providers: providers}

	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.http = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}
	return s
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	out := make([]gin.H, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, gin.H{
			"engine_id": p.EngineID(),
			"seq":       p.Seq(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"engines": out})
}

// Start begins serving and blocks until the server stops or an error
// other than http.ErrServerClosed occurs.
func (s *Server) Start() error {
	s.log.Infof("status server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpstatus: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
