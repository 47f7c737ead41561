package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"callpulse/internal/audit"
	"callpulse/internal/auth"
	"callpulse/internal/calls"
	"callpulse/internal/campaign"
	"callpulse/internal/orchestrator"
	"callpulse/internal/reporting"
	"callpulse/internal/store"
	"callpulse/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Orch    *orchestrator.Orchestrator
	Store   store.Store
	Reports *reporting.Service
	Audit   *audit.Service
}

/* ===================== AUTH ===================== */

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues an access token.
//
// NOTE: credential validation is out of scope for this service; tokens are
// normally issued by the platform's identity service. This endpoint exists
// for local development and is disabled in production via routing.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role required"})
		return
	}
	tok, err := h.Auth.IssueAccess(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

/* ===================== CAMPAIGNS ===================== */

type retryPolicyRequest struct {
	MaxRetries        int  `json:"max_retries"`
	RetryDelaySeconds int  `json:"retry_delay_seconds"`
	RetryOnBusy       bool `json:"retry_on_busy"`
	RetryOnNoAnswer   bool `json:"retry_on_no_answer"`
	RetryOnFailed     bool `json:"retry_on_failed"`
}

type startCampaignRequest struct {
	Name               string                   `json:"name"`
	Customers          []campaign.CustomerInput `json:"customers"`
	TargetServiceTags  []string                 `json:"target_service_tags"`
	MaxConcurrentCalls int                      `json:"max_concurrent_calls"`
	RetryPolicy        *retryPolicyRequest      `json:"retry_policy,omitempty"`
	ScriptTemplate     string                   `json:"script_template,omitempty"`
}

// StartCampaign validates the request and launches the campaign. Validation
// failures return 400 with the reason; nothing is persisted in that case.
func (h Handlers) StartCampaign(c *gin.Context) {
	var req startCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	cfg := campaign.StartConfig{
		Name:               req.Name,
		Customers:          req.Customers,
		TargetServiceTags:  req.TargetServiceTags,
		MaxConcurrentCalls: req.MaxConcurrentCalls,
		ScriptTemplate:     req.ScriptTemplate,
	}
	if req.RetryPolicy != nil {
		cfg.RetryPolicy = &campaign.RetryPolicy{
			MaxRetries:      req.RetryPolicy.MaxRetries,
			RetryDelay:      time.Duration(req.RetryPolicy.RetryDelaySeconds) * time.Second,
			RetryOnBusy:     req.RetryPolicy.RetryOnBusy,
			RetryOnNoAnswer: req.RetryPolicy.RetryOnNoAnswer,
			RetryOnFailed:   req.RetryPolicy.RetryOnFailed,
		}
	}

	res, err := h.Orch.StartCampaign(c.Request.Context(), cfg)
	if err != nil {
		if errors.Is(err, campaign.ErrValidation) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("start campaign failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign start failed"})
		return
	}

	h.auditCampaign(c, audit.EventTypeCampaignStart, res.CampaignID, "campaign started")
	c.JSON(http.StatusCreated, gin.H{
		"campaign_id":                res.CampaignID,
		"calls_scheduled":            res.CallsScheduled,
		"estimated_duration_seconds": int(res.EstimatedDuration.Seconds()),
	})
}

func (h Handlers) GetCampaignStatus(c *gin.Context) {
	st, err := h.Orch.GetCampaignStatus(c.Request.Context(), c.Param("campaign_id"))
	if err != nil {
		logger.FromGin(c).Error("campaign status failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "campaign status failed"})
		return
	}
	if st == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) CancelCampaign(c *gin.Context) {
	id := c.Param("campaign_id")
	err := h.Orch.CancelCampaign(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
		return
	case errors.Is(err, orchestrator.ErrCampaignFinished):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "campaign already completed"})
		return
	case err != nil:
		logger.FromGin(c).Error("cancel campaign failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		return
	}
	h.auditCampaign(c, audit.EventTypeCampaignCancel, id, "campaign cancelled")
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// ListCampaignCalls returns a paginated view of a campaign's calls.
// Query params: status, sort_by (created_at|scheduled_at|status), order
// (asc|desc), limit, offset.
func (h Handlers) ListCampaignCalls(c *gin.Context) {
	campaignID := c.Param("campaign_id")
	if _, err := h.Store.GetCampaignByID(c.Request.Context(), campaignID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		logger.FromGin(c).Error("load campaign failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list calls failed"})
		return
	}

	f := store.ListCallsFilter{
		CampaignID: campaignID,
		Status:     calls.CallStatus(c.Query("status")),
		SortBy:     c.Query("sort_by"),
		SortDesc:   c.Query("order") == "desc",
		Limit:      intQuery(c, "limit"),
		Offset:     intQuery(c, "offset"),
	}
	if f.Status != "" && !f.Status.Valid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
		return
	}

	rows, total, err := h.Store.ListCalls(c.Request.Context(), f)
	if err != nil {
		logger.FromGin(c).Error("list calls failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list calls failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows, "total": total})
}

func (h Handlers) CampaignReport(c *gin.Context) {
	rep, err := h.Reports.CampaignReport(c.Request.Context(), c.Param("campaign_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		logger.FromGin(c).Error("campaign report failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

/* ===================== CALLS ===================== */

func (h Handlers) GetCall(c *gin.Context) {
	call, err := h.Store.GetCallByID(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		logger.FromGin(c).Error("load call failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "load call failed"})
		return
	}
	c.JSON(http.StatusOK, call)
}

type cancelCallsRequest struct {
	CallIDs []string `json:"call_ids"`
}

func (h Handlers) CancelCalls(c *gin.Context) {
	var req cancelCallsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.CallIDs) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_ids required"})
		return
	}
	n, err := h.Orch.CancelCalls(c.Request.Context(), req.CallIDs)
	if err != nil {
		logger.FromGin(c).Error("cancel calls failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		return
	}
	for _, id := range req.CallIDs {
		h.auditCall(c, audit.EventTypeCallCancel, id, "call cancelled", "")
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}

type overrideStatusRequest struct {
	Status string `json:"status"`
}

// OverrideCallStatus is the operator escape hatch for stuck calls.
func (h Handlers) OverrideCallStatus(c *gin.Context) {
	var req overrideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status required"})
		return
	}

	call, err := h.Orch.OverrideCallStatus(c.Request.Context(), c.Param("call_id"), calls.CallStatus(req.Status))
	switch {
	case errors.Is(err, orchestrator.ErrInvalidStatus):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	case err != nil:
		logger.FromGin(c).Error("status override failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "override failed"})
		return
	}
	h.auditCall(c, audit.EventTypeCallOverride, call.ID, "status set to "+req.Status, "")
	c.JSON(http.StatusOK, call)
}

/* ===================== HELPERS ===================== */

func (h Handlers) auditCampaign(c *gin.Context, t audit.EventType, campaignID, message string) {
	if h.Audit == nil {
		return
	}
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	if err := h.Audit.LogCampaign(c.Request.Context(), t, uid, role, c.ClientIP(), campaignID, message); err != nil {
		logger.FromGin(c).Warn("audit write failed", "err", err)
	}
}

func (h Handlers) auditCall(c *gin.Context, t audit.EventType, callID, message, metadata string) {
	if h.Audit == nil {
		return
	}
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	ev := audit.Event{
		Type:        t,
		ActorUserID: uid,
		ActorRole:   role,
		IPAddress:   c.ClientIP(),
		CallID:      callID,
		Message:     message,
		Metadata:    metadata,
	}
	if err := h.Audit.Append(c.Request.Context(), ev); err != nil {
		logger.FromGin(c).Warn("audit write failed", "err", err)
	}
}

func intQuery(c *gin.Context, key string) int {
	v := c.Query(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
