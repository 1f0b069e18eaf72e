package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/moxworks/auditflow/internal/directory"
	"github.com/moxworks/auditflow/internal/dsl"
	"github.com/moxworks/auditflow/internal/models"
	"github.com/moxworks/auditflow/internal/repository"
	"github.com/moxworks/auditflow/internal/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine        *workflow.Engine
	templates     *workflow.TemplateService
	directory     *directory.Service
	notifications *repository.NotificationRepository
	logger        *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine *workflow.Engine,
	templates *workflow.TemplateService,
	dir *directory.Service,
	notifications *repository.NotificationRepository,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:        engine,
		templates:     templates,
		directory:     dir,
		notifications: notifications,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// fail maps the error taxonomy to status codes: lookup misses to 404, other
// expected kinds to 400, everything else opaque 500.
func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errors.Is(err, workflow.ErrTemplateNotFound),
		errors.Is(err, workflow.ErrInvalidState),
		errors.Is(err, workflow.ErrInvalidStepState),
		errors.Is(err, workflow.ErrInvalidAssignee),
		errors.Is(err, workflow.ErrFallbackExists),
		errors.Is(err, dsl.ErrSyntax):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error("Internal error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// Health handles the health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// --- activities ---

type createActivityRequest struct {
	CreatorID int64                  `json:"creator_id" binding:"required"`
	Subtype   string                 `json:"subtype"`
	ConfigID  int64                  `json:"config_id"`
	Payload   map[string]interface{} `json:"payload"`
	Submit    bool                   `json:"submit"`
}

// CreateActivity handles POST /api/v1/activities
func (h *Handlers) CreateActivity(c *gin.Context) {
	var req createActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Subtype == "" && req.ConfigID == 0 {
		badRequest(c, "subtype or config_id is required")
		return
	}

	activity, err := h.engine.CreateActivity(c.Request.Context(), workflow.CreateActivityInput{
		CreatorID: req.CreatorID,
		Subtype:   req.Subtype,
		ConfigID:  req.ConfigID,
		Payload:   req.Payload,
		Submit:    req.Submit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, activity)
}

type activityView struct {
	*models.AuditActivity
	Steps []*models.AuditStep `json:"steps"`
}

// GetActivity handles GET /api/v1/activities/:id
func (h *Handlers) GetActivity(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	activity, steps, err := h.engine.GetActivity(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, activityView{AuditActivity: activity, Steps: steps})
}

// ListActivities handles GET /api/v1/activities?creator_id=
func (h *Handlers) ListActivities(c *gin.Context) {
	creatorID, err := strconv.ParseInt(c.Query("creator_id"), 10, 64)
	if err != nil {
		badRequest(c, "creator_id is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	activities, err := h.engine.ListByCreator(c.Request.Context(), creatorID, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, activities)
}

// SubmitDraft handles POST /api/v1/activities/:id/submit
func (h *Handlers) SubmitDraft(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.engine.SubmitDraft(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

// CancelActivity handles POST /api/v1/activities/:id/cancel
func (h *Handlers) CancelActivity(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.engine.Cancel(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

type actorRequest struct {
	ActorID int64 `json:"actor_id" binding:"required"`
}

// RelaunchActivity handles POST /api/v1/activities/:id/relaunch
func (h *Handlers) RelaunchActivity(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	fresh, err := h.engine.Relaunch(c.Request.Context(), id, req.ActorID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, fresh)
}

// HurryUp handles POST /api/v1/activities/:id/hurryup
func (h *Handlers) HurryUp(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.engine.HurryUp(c.Request.Context(), id, req.ActorID); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

// CompleteTask handles POST /api/v1/activities/:id/task-done
func (h *Handlers) CompleteTask(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req actorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.engine.CompleteTask(c.Request.Context(), id, req.ActorID); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

// --- steps ---

type decideStepRequest struct {
	ActorID int64  `json:"actor_id" binding:"required"`
	Note    string `json:"note"`
}

// ApproveStep handles POST /api/v1/steps/:id/approve
func (h *Handlers) ApproveStep(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req decideStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.engine.ApproveStep(c.Request.Context(), id, req.ActorID, req.Note); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

// RejectStep handles POST /api/v1/steps/:id/reject
func (h *Handlers) RejectStep(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req decideStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.engine.RejectStep(c.Request.Context(), id, req.ActorID, req.Note); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

// ListPendingSteps handles GET /api/v1/steps/pending?assignee_id=
func (h *Handlers) ListPendingSteps(c *gin.Context) {
	assigneeID, err := strconv.ParseInt(c.Query("assignee_id"), 10, 64)
	if err != nil {
		badRequest(c, "assignee_id is required")
		return
	}
	steps, err := h.engine.ListPendingSteps(c.Request.Context(), assigneeID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, steps)
}

// --- templates ---

// CreateTemplate handles POST /api/v1/configs
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var cfg models.AuditConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.templates.Create(c.Request.Context(), &cfg); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, cfg)
}

type dslRequest struct {
	Spec     string `json:"spec" binding:"required"`
	Priority int    `json:"priority"`
	Fallback bool   `json:"fallback"`
}

// CreateTemplateFromDSL handles POST /api/v1/configs/dsl
func (h *Handlers) CreateTemplateFromDSL(c *gin.Context) {
	var req dslRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cfg, err := h.templates.CreateFromDSL(c.Request.Context(), req.Spec, req.Priority, req.Fallback)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, cfg)
}

// ListTemplates handles GET /api/v1/configs?subtype=
func (h *Handlers) ListTemplates(c *gin.Context) {
	configs, err := h.templates.List(c.Request.Context(), c.Query("subtype"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, configs)
}

// ArchiveTemplate handles DELETE /api/v1/configs/:id
func (h *Handlers) ArchiveTemplate(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.templates.Archive(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

// --- directory ---

type createDepartmentRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name" binding:"required"`
	ParentID *int64 `json:"parent_id"`
}

// CreateDepartment handles POST /api/v1/directory/departments
func (h *Handlers) CreateDepartment(c *gin.Context) {
	var req createDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	dept, err := h.directory.CreateDepartment(c.Request.Context(), req.Code, req.Name, req.ParentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, dept)
}

// ListDepartments handles GET /api/v1/directory/departments
func (h *Handlers) ListDepartments(c *gin.Context) {
	depts, err := h.directory.ListDepartments(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, depts)
}

// ArchiveDepartment handles DELETE /api/v1/directory/departments/:id
func (h *Handlers) ArchiveDepartment(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.directory.ArchiveDepartment(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

type createPositionRequest struct {
	Code string `json:"code"`
	Name string `json:"name" binding:"required"`
}

// CreatePosition handles POST /api/v1/directory/positions
func (h *Handlers) CreatePosition(c *gin.Context) {
	var req createPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	pos, err := h.directory.CreatePosition(c.Request.Context(), req.Code, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, pos)
}

// ListPositions handles GET /api/v1/directory/positions
func (h *Handlers) ListPositions(c *gin.Context) {
	positions, err := h.directory.ListPositions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, positions)
}

// ArchivePosition handles DELETE /api/v1/directory/positions/:id
func (h *Handlers) ArchivePosition(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.directory.ArchivePosition(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

type linkRequest struct {
	DepartmentID int64 `json:"department_id" binding:"required"`
	PositionID   int64 `json:"position_id" binding:"required"`
}

// Link handles POST /api/v1/directory/links
func (h *Handlers) Link(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.directory.Link(c.Request.Context(), req.DepartmentID, req.PositionID); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

// Unlink handles DELETE /api/v1/directory/links
func (h *Handlers) Unlink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.directory.Unlink(c.Request.Context(), req.DepartmentID, req.PositionID); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

type createProfileRequest struct {
	Name         string `json:"name" binding:"required"`
	DepartmentID *int64 `json:"department_id"`
	PositionID   *int64 `json:"position_id"`
}

// CreateProfile handles POST /api/v1/directory/profiles
func (h *Handlers) CreateProfile(c *gin.Context) {
	var req createProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.directory.CreateProfile(c.Request.Context(), req.Name, req.DepartmentID, req.PositionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, p)
}

type moveProfileRequest struct {
	DepartmentID *int64 `json:"department_id"`
	PositionID   *int64 `json:"position_id"`
}

// MoveProfile handles PUT /api/v1/directory/profiles/:id/assignment
func (h *Handlers) MoveProfile(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var req moveProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.directory.MoveProfile(c.Request.Context(), id, req.DepartmentID, req.PositionID); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

// ArchiveProfile handles DELETE /api/v1/directory/profiles/:id
func (h *Handlers) ArchiveProfile(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.directory.ArchiveProfile(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}

// --- notifications ---

// ListNotifications handles GET /api/v1/notifications?profile_id=
func (h *Handlers) ListNotifications(c *gin.Context) {
	profileID, err := strconv.ParseInt(c.Query("profile_id"), 10, 64)
	if err != nil {
		badRequest(c, "profile_id is required")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	notifications, err := h.notifications.ListByProfile(nil, profileID, limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, notifications)
}

// MarkNotificationRead handles POST /api/v1/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.notifications.MarkRead(nil, id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, nil)
}
