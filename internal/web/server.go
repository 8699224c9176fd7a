// Package web exposes the HTTP API: manual ingest, rule management,
// alert history and manual downlinks.
package web

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agrisense/internal/downlink"
	"agrisense/internal/models"
)

// IngestService accepts decoded reading batches.
type IngestService interface {
	Ingest(ctx context.Context, serial string, readings map[string]float64) (int, error)
}

// RuleStore is the rule and alert persistence surface.
type RuleStore interface {
	CreateRule(ctx context.Context, r *models.TriggerRule) error
	RulesByFarm(ctx context.Context, farmID string) ([]models.TriggerRule, error)
	DeleteRule(ctx context.Context, id string) error
	AlertLogsByFarm(ctx context.Context, farmID string, limit int) ([]models.AlertLog, error)
}

// DownlinkSender queues manual device commands.
type DownlinkSender interface {
	Send(ctx context.Context, deviceID, hexData string, port int, commandName string, triggeredBy models.TriggeredBy, ruleID *string) (*downlink.Result, error)
}

// Server wires the gin router over the service layer.
type Server struct {
	router    *gin.Engine
	ingest    IngestService
	rules     RuleStore
	downlinks DownlinkSender
	log       *zap.Logger
}

// NewServer builds the router. Callers run it with Router().Run(addr)
// or mount it in an http.Server for graceful shutdown.
func NewServer(ingest IngestService, rules RuleStore, downlinks DownlinkSender, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:    gin.New(),
		ingest:    ingest,
		rules:     rules,
		downlinks: downlinks,
		log:       log,
	}
	s.router.Use(gin.Recovery())

	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/ingest", s.handleIngest)
	api.POST("/rules", s.handleCreateRule)
	api.GET("/rules", s.handleListRules)
	api.DELETE("/rules/:id", s.handleDeleteRule)
	api.GET("/alerts", s.handleListAlerts)
	api.POST("/downlink", s.handleDownlink)
	return s
}

// Router exposes the underlying gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
