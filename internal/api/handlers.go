package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"project-alert-service/internal/apperr"
	"project-alert-service/internal/logging"
	"project-alert-service/internal/models"
	"project-alert-service/internal/notification"
	"project-alert-service/internal/runner"
	"project-alert-service/internal/schedule"
)

// RuleStore is the rule configuration surface.
type RuleStore interface {
	EnsureDefaultRules(ctx context.Context) error
	ListRules(ctx context.Context) ([]models.Rule, error)
	UpdateRule(ctx context.Context, key string, u models.RuleUpdate) (models.Rule, []models.RuleChange, error)
	ListRuleChanges(ctx context.Context, limit int) ([]models.RuleChange, error)
}

// ScheduleAdmin is the schedule administration surface.
type ScheduleAdmin interface {
	ListEffective(ctx context.Context, tenantID string) ([]models.EffectiveSchedule, error)
	SetOverride(ctx context.Context, scheduleID, tenantID, cronExpr, timezone string) (models.EffectiveSchedule, error)
	RemoveOverride(ctx context.Context, scheduleID, tenantID string) (models.EffectiveSchedule, error)
	SetGlobalCron(ctx context.Context, scheduleID, cronExpr string) (models.EffectiveSchedule, error)
	SetGlobalTimezone(ctx context.Context, timezone string) error
	ContactPointsChanged(ctx context.Context, tenantID string)
}

// Timers exposes the live timer set.
type Timers interface {
	Timers() []schedule.TimerInfo
	Trigger(ctx context.Context, key schedule.TimerKey) (models.JobRun, error)
}

// AuditStore lists firing outcomes and ledger rows.
type AuditStore interface {
	ListJobRuns(ctx context.Context, limit int) ([]models.JobRun, error)
	ListAlertRecords(ctx context.Context, ruleID string, limit int) ([]models.AlertRecord, error)
}

// Previewer runs a dry evaluation.
type Previewer interface {
	Preview(ctx context.Context, tenantID string, ruleKeys []string) (runner.PreviewResult, error)
}

// ContactPointStore manages tenant delivery channels.
type ContactPointStore interface {
	CreateContactPoint(ctx context.Context, cp models.ContactPoint) (models.ContactPoint, error)
	GetContactPointsByTenant(ctx context.Context, tenantID string) ([]models.ContactPoint, error)
	DeleteContactPoint(ctx context.Context, id string) error
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Handler struct {
	rules     RuleStore
	schedules ScheduleAdmin
	timers    Timers
	audit     AuditStore
	previewer Previewer
	contacts  ContactPointStore
	ws        *notification.WebSocketManager
	upgrader  websocket.Upgrader
	logger    *logging.Logger
}

// Deps groups the collaborators of Handler.
type Deps struct {
	Rules         RuleStore
	Schedules     ScheduleAdmin
	Timers        Timers
	Audit         AuditStore
	Previewer     Previewer
	ContactPoints ContactPointStore
	WebSockets    *notification.WebSocketManager
	Logger        *logging.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		rules:     d.Rules,
		schedules: d.Schedules,
		timers:    d.Timers,
		audit:     d.Audit,
		previewer: d.Previewer,
		contacts:  d.ContactPoints,
		ws:        d.WebSockets,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: d.Logger,
	}
}

// respondError maps the error taxonomy to HTTP statuses. Validation messages
// are returned verbatim; other failures get a generic message.
func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrConfiguration):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrTransientSource):
		h.logger.Warnf("%s: %v", fallback, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": fallback})
	default:
		h.logger.Errorf("%s: %v", fallback, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func pageSize(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultPageSize, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return 0, false
	}
	if n > maxPageSize {
		n = maxPageSize
	}
	return n, true
}

func (h *Handler) ListRules(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.rules.EnsureDefaultRules(ctx); err != nil {
		h.respondError(c, err, "Failed to load rules")
		return
	}
	list, err := h.rules.ListRules(ctx)
	if err != nil {
		h.respondError(c, err, "Failed to load rules")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) UpdateRule(c *gin.Context) {
	key := c.Param("key")
	var u models.RuleUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rule, changes, err := h.rules.UpdateRule(c.Request.Context(), key, u)
	if err != nil {
		h.respondError(c, err, "Failed to update rule")
		return
	}

	h.logger.WithField("rule_key", key).Infof("Updated rule (%d changes)", len(changes))
	c.JSON(http.StatusOK, gin.H{"rule": rule, "changes": changes})
}

func (h *Handler) ListRuleChanges(c *gin.Context) {
	limit, ok := pageSize(c)
	if !ok {
		return
	}
	changes, err := h.rules.ListRuleChanges(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err, "Failed to load rule changes")
		return
	}
	c.JSON(http.StatusOK, changes)
}

func (h *Handler) ListSchedules(c *gin.Context) {
	list, err := h.schedules.ListEffective(c.Request.Context(), c.Query("tenant_id"))
	if err != nil {
		h.respondError(c, err, "Failed to resolve schedules")
		return
	}
	c.JSON(http.StatusOK, list)
}

type overrideRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
	Cron     string `json:"cron" binding:"required"`
	Timezone string `json:"timezone"`
}

func (h *Handler) SetOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: tenant_id and cron are required"})
		return
	}
	eff, err := h.schedules.SetOverride(c.Request.Context(), c.Param("id"), req.TenantID, req.Cron, req.Timezone)
	if err != nil {
		h.respondError(c, err, "Failed to set schedule override")
		return
	}
	c.JSON(http.StatusOK, eff)
}

func (h *Handler) RemoveOverride(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}
	eff, err := h.schedules.RemoveOverride(c.Request.Context(), c.Param("id"), tenantID)
	if err != nil {
		h.respondError(c, err, "Failed to remove schedule override")
		return
	}
	c.JSON(http.StatusOK, eff)
}

type cronRequest struct {
	Cron string `json:"cron" binding:"required"`
}

func (h *Handler) SetGlobalCron(c *gin.Context) {
	var req cronRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: cron is required"})
		return
	}
	eff, err := h.schedules.SetGlobalCron(c.Request.Context(), c.Param("id"), req.Cron)
	if err != nil {
		h.respondError(c, err, "Failed to set schedule cron")
		return
	}
	c.JSON(http.StatusOK, eff)
}

type timezoneRequest struct {
	Timezone string `json:"timezone" binding:"required"`
}

func (h *Handler) SetGlobalTimezone(c *gin.Context) {
	var req timezoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: timezone is required"})
		return
	}
	if err := h.schedules.SetGlobalTimezone(c.Request.Context(), req.Timezone); err != nil {
		h.respondError(c, err, "Failed to set timezone")
		return
	}
	c.JSON(http.StatusOK, gin.H{"timezone": req.Timezone})
}

func (h *Handler) ListTimers(c *gin.Context) {
	c.JSON(http.StatusOK, h.timers.Timers())
}

// RunSchedule fires a schedule now. The outcome is returned and also recorded
// in the run audit.
func (h *Handler) RunSchedule(c *gin.Context) {
	key := schedule.TimerKey{Scope: schedule.ScopeSystem, ScheduleID: c.Param("id")}
	if tenantID := c.Query("tenant_id"); tenantID != "" {
		key.Scope = schedule.ScopeTenant
		key.TenantID = tenantID
	}

	run, err := h.timers.Trigger(c.Request.Context(), key)
	if err != nil && run.ID == "" {
		h.respondError(c, err, "Failed to run schedule")
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit, ok := pageSize(c)
	if !ok {
		return
	}
	runs, err := h.audit.ListJobRuns(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err, "Failed to load runs")
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	limit, ok := pageSize(c)
	if !ok {
		return
	}
	alerts, err := h.audit.ListAlertRecords(c.Request.Context(), c.Query("rule_id"), limit)
	if err != nil {
		h.respondError(c, err, "Failed to load alerts")
		return
	}
	c.JSON(http.StatusOK, alerts)
}

type previewRequest struct {
	TenantID string   `json:"tenant_id"`
	RuleKeys []string `json:"rule_keys"`
}

func (h *Handler) Preview(c *gin.Context) {
	var req previewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	result, err := h.previewer.Preview(c.Request.Context(), req.TenantID, req.RuleKeys)
	if err != nil {
		h.respondError(c, err, "Failed to preview")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) CreateContactPoint(c *gin.Context) {
	var req models.ContactPointCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request body for contact point: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	cp, err := h.contacts.CreateContactPoint(c.Request.Context(), models.ContactPoint{
		TenantID:      req.TenantID,
		Name:          req.Name,
		Type:          req.Type,
		Configuration: req.Configuration,
		Status:        models.ContactPointActive,
	})
	if err != nil {
		h.respondError(c, err, "Failed to create contact point")
		return
	}
	h.schedules.ContactPointsChanged(c.Request.Context(), cp.TenantID)

	h.logger.Infof("Created contact point: %s", uuid.UUID(cp.ID))
	c.JSON(http.StatusCreated, cp)
}

func (h *Handler) GetContactPointsByTenant(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	cps, err := h.contacts.GetContactPointsByTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.respondError(c, err, "Failed to get contact points")
		return
	}
	if cps == nil {
		cps = []models.ContactPoint{}
	}
	c.JSON(http.StatusOK, cps)
}

func (h *Handler) DeleteContactPoint(c *gin.Context) {
	id := c.Param("id")
	if err := h.contacts.DeleteContactPoint(c.Request.Context(), id); err != nil {
		h.respondError(c, err, "Failed to delete contact point")
		return
	}
	h.schedules.ContactPointsChanged(c.Request.Context(), "")

	h.logger.Infof("Deleted contact point: %s", id)
	c.Status(http.StatusNoContent)
}

// WebSocket upgrades an in-app connection for ?tenant_id and keeps it until
// the client goes away.
func (h *Handler) WebSocket(c *gin.Context) {
	tenantID := strings.TrimSpace(c.Query("tenant_id"))
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	if !h.ws.AddConnection(tenantID, conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"))
		_ = conn.Close()
		return
	}
	defer func() {
		h.ws.RemoveConnection(tenantID, conn)
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
