package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// Handlers contains HTTP request handlers
type Handlers struct {
	deps   Deps
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps, logger Logger) *Handlers {
	return &Handlers{
		deps:   deps,
		logger: logger,
	}
}

// Response is a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse is the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  time.Time   `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// DecisionRequest is the body of an approval decision
type DecisionRequest struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
	}

	status := http.StatusOK
	if h.deps.Health != nil {
		healthy, details := h.deps.Health()
		resp.Components = details
		if !healthy {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, resp)
}

// ServeRealtime handles GET /ws
func (h *Handlers) ServeRealtime(c *gin.Context) {
	actor := actorFrom(c)
	if err := h.deps.Realtime.ServeWS(c.Writer, c.Request, actor.CompanyID, actor.UserID); err != nil {
		// the upgrader has already written a response when the handshake failed
		if !c.Writer.Written() {
			c.JSON(http.StatusServiceUnavailable, Response{
				Success: false,
				Error:   err.Error(),
			})
		}
		h.logger.Error("Realtime connection failed", "user_id", actor.UserID, "error", err)
	}
}

// CreateWorkflow handles POST /api/v1/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var input service.WorkflowInput
	if !h.bind(c, &input) {
		return
	}

	def, err := h.deps.Workflows.Create(c.Request.Context(), actorFrom(c), input)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: def})
}

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))

	defs, err := h.deps.Workflows.List(c.Request.Context(), actorFrom(c), activeOnly)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// GetWorkflow handles GET /api/v1/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id, ok := h.pathID(c, "workflow")
	if !ok {
		return
	}

	def, err := h.deps.Workflows.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// UpdateWorkflow handles PUT /api/v1/workflows/:id
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	id, ok := h.pathID(c, "workflow")
	if !ok {
		return
	}

	var input service.WorkflowInput
	if !h.bind(c, &input) {
		return
	}

	def, err := h.deps.Workflows.Update(c.Request.Context(), actorFrom(c), id, input)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// DeleteWorkflow handles DELETE /api/v1/workflows/:id
func (h *Handlers) DeleteWorkflow(c *gin.Context) {
	id, ok := h.pathID(c, "workflow")
	if !ok {
		return
	}

	if err := h.deps.Workflows.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// CreateExpense handles POST /api/v1/expenses
func (h *Handlers) CreateExpense(c *gin.Context) {
	var input service.ExpenseInput
	if !h.bind(c, &input) {
		return
	}

	expense, err := h.deps.Expenses.CreateDraft(c.Request.Context(), actorFrom(c), input)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: expense})
}

// ListExpenses handles GET /api/v1/expenses
func (h *Handlers) ListExpenses(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	status := domainwf.State(c.Query("status"))

	expenses, err := h.deps.Expenses.List(c.Request.Context(), actorFrom(c), status, limit, offset)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: expenses})
}

// GetExpense handles GET /api/v1/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	id, ok := h.pathID(c, "expense")
	if !ok {
		return
	}

	expense, err := h.deps.Expenses.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: expense})
}

// SubmitExpense handles POST /api/v1/expenses/:id/submit
func (h *Handlers) SubmitExpense(c *gin.Context) {
	id, ok := h.pathID(c, "expense")
	if !ok {
		return
	}

	result, err := h.deps.Engine.Submit(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		// the expense is submitted but waits for a workflow
		if errors.Is(err, approval.ErrNoWorkflowConfigured) {
			h.writeError(c, err, result)
			return
		}
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// ListApprovals handles GET /api/v1/expenses/:id/approvals
func (h *Handlers) ListApprovals(c *gin.Context) {
	id, ok := h.pathID(c, "expense")
	if !ok {
		return
	}

	summary, err := h.deps.Expenses.ListApprovals(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// AuditTrail handles GET /api/v1/expenses/:id/audit
func (h *Handlers) AuditTrail(c *gin.Context) {
	id, ok := h.pathID(c, "expense")
	if !ok {
		return
	}

	entries, err := h.deps.Expenses.AuditTrail(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// PendingApprovals handles GET /api/v1/approvals/pending
func (h *Handlers) PendingApprovals(c *gin.Context) {
	records, err := h.deps.Expenses.PendingForApprover(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// Decide handles POST /api/v1/approvals/:id/decision
func (h *Handlers) Decide(c *gin.Context) {
	id, ok := h.pathID(c, "approval")
	if !ok {
		return
	}

	var req DecisionRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.deps.Engine.Decide(c.Request.Context(), actorFrom(c), id,
		approval.RecordStatus(req.Decision), req.Comments)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// UpsertUser handles PUT /api/v1/users/:id
func (h *Handlers) UpsertUser(c *gin.Context) {
	var input service.UserInput
	if !h.bind(c, &input) {
		return
	}

	user, err := h.deps.Directory.Upsert(c.Request.Context(), actorFrom(c), c.Param("id"), input)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// GetUser handles GET /api/v1/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.deps.Directory.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

func (h *Handlers) pathID(c *gin.Context, kind string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid " + kind + " ID",
		})
		return 0, false
	}
	return id, true
}

func (h *Handlers) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}
