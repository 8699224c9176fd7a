package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agrisense/internal/db"
	"agrisense/internal/downlink"
	"agrisense/internal/ingest"
	"agrisense/internal/models"
)

type ingestRequest struct {
	Serial   string             `json:"serial" binding:"required"`
	Readings map[string]float64 `json:"readings" binding:"required"`
}

func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := s.ingest.Ingest(c.Request.Context(), req.Serial, req.Readings)
	if errors.Is(err, ingest.ErrDeviceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	if err != nil {
		s.log.Error("ingest failed", zap.String("serial", req.Serial), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"persisted": n})
}

type createRuleRequest struct {
	FarmID          string          `json:"farmId" binding:"required"`
	DeviceID        *string         `json:"deviceId"`
	Name            string          `json:"name" binding:"required"`
	SensorCode      string          `json:"sensorCode" binding:"required"`
	Condition       string          `json:"condition" binding:"required"`
	Threshold       float64         `json:"threshold"`
	Threshold2      *float64        `json:"threshold2"`
	CoolDownMinutes int             `json:"coolDownMinutes"`
	Actions         []models.Action `json:"actions"`
}

func (s *Server) handleCreateRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cond, err := models.ParseCondition(req.Condition)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if cond == models.CondBetween && req.Threshold2 == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "BETWEEN requires threshold2"})
		return
	}
	for i := range req.Actions {
		if !req.Actions[i].Type.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action type " + string(req.Actions[i].Type)})
			return
		}
	}

	rule := models.TriggerRule{
		FarmID:          req.FarmID,
		DeviceID:        req.DeviceID,
		Name:            req.Name,
		SensorCode:      req.SensorCode,
		Condition:       cond,
		Threshold:       req.Threshold,
		Threshold2:      req.Threshold2,
		CoolDownMinutes: req.CoolDownMinutes,
		IsActive:        true,
		Actions:         req.Actions,
	}
	if err := s.rules.CreateRule(c.Request.Context(), &rule); err != nil {
		s.log.Error("rule creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rule creation failed"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) handleListRules(c *gin.Context) {
	farmID := c.Query("farm")
	if farmID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "farm query parameter is required"})
		return
	}
	rules, err := s.rules.RulesByFarm(c.Request.Context(), farmID)
	if err != nil {
		s.log.Error("rule listing failed", zap.String("farm", farmID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rule listing failed"})
		return
	}
	if rules == nil {
		rules = []models.TriggerRule{}
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) handleDeleteRule(c *gin.Context) {
	err := s.rules.DeleteRule(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err != nil {
		s.log.Error("rule deletion failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rule deletion failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	farmID := c.Query("farm")
	if farmID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "farm query parameter is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	alerts, err := s.rules.AlertLogsByFarm(c.Request.Context(), farmID, limit)
	if err != nil {
		s.log.Error("alert listing failed", zap.String("farm", farmID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alert listing failed"})
		return
	}
	if alerts == nil {
		alerts = []models.AlertLog{}
	}
	c.JSON(http.StatusOK, alerts)
}

type downlinkRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
	HexData  string `json:"hexData" binding:"required"`
	Port     int    `json:"port"`
	Name     string `json:"name"`
}

func (s *Server) handleDownlink(c *gin.Context) {
	var req downlinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.downlinks.Send(c.Request.Context(), req.DeviceID, req.HexData,
		req.Port, req.Name, models.TriggeredByManual, nil)
	switch {
	case errors.Is(err, downlink.ErrInvalidHex):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hex payload"})
	case errors.Is(err, downlink.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
	case errors.Is(err, downlink.ErrNoNetworkServer):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no network server configured"})
	case err != nil:
		// Delivery failed but the attempt is recorded.
		body := gin.H{"error": "downlink delivery failed"}
		if res != nil {
			body["logId"] = res.LogID
		}
		c.JSON(http.StatusBadGateway, body)
	default:
		c.JSON(http.StatusOK, gin.H{"logId": res.LogID, "status": string(models.DownlinkSent)})
	}
}
