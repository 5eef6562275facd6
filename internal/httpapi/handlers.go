package httpapi

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/roach88/contest/internal/admin"
	"github.com/roach88/contest/internal/answer"
	"github.com/roach88/contest/internal/config"
	"github.com/roach88/contest/internal/gate"
	"github.com/roach88/contest/internal/store"
)

// AdminOverviewResponse is the GET admin_stage_control body.
type AdminOverviewResponse struct {
	Success     bool                   `json:"success"`
	Stages      []admin.StageRow       `json:"stages"`
	SolveCounts map[config.StageID]int `json:"solve_counts"`
}

// AdminWriteRequest is the POST admin_stage_control body. Without
// is_enabled only the notes are replaced.
type AdminWriteRequest struct {
	Stage     int    `json:"stage"`
	Enabled   *bool  `json:"is_enabled"`
	AdminUser string `json:"admin_user"`
	Notes     string `json:"notes"`
}

// AdminWriteResponse is the POST admin_stage_control reply.
type AdminWriteResponse struct {
	Success bool               `json:"success"`
	Stage   store.StageControl `json:"stage"`
}

// AdminBulkResponse is the PUT bulk reply.
type AdminBulkResponse struct {
	Success bool             `json:"success"`
	Result  admin.BulkResult `json:"result"`
}

// SolvedStagesResponse is the GET solves body.
type SolvedStagesResponse struct {
	UserID string `json:"user_id"`
	Stages []int  `json:"stages"`
}

// WriteSolveResponse is the POST solves reply.
type WriteSolveResponse struct {
	Inserted bool `json:"inserted"`
}

// HandleValidate handles POST /functions/v1/validate-answer.
//
//	200 OK: answer.Response
//	400 Bad Request: malformed body, stage or step
//	503 Service Unavailable: no verdict
func (h *Handlers) HandleValidate(c *gin.Context) {
	var req answer.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	cfg := h.deps.Config
	stage := config.StageID(req.Stage)
	if !cfg.Valid(stage) || req.Step < 1 || req.Step > cfg.Steps(stage) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown stage or step", Code: "INVALID_STAGE"})
		return
	}

	ok, err := h.deps.Validator.Validate(c.Request.Context(), stage, req.Step, req.Answer)
	if err != nil {
		h.logger.Error("validation failed", "stage", req.Stage, "step", req.Step, "error", err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "validation unavailable", Code: "VALIDATION_UNAVAILABLE"})
		return
	}
	c.JSON(http.StatusOK, answer.Response{OK: ok})
}

// HandleAdminOverview handles GET /functions/v1/admin_stage_control. The
// administrator's email goes in the X-Admin-User header.
func (h *Handlers) HandleAdminOverview(c *gin.Context) {
	if h.deps.Admin == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "admin console disabled", Code: "NOT_FOUND"})
		return
	}
	if err := h.deps.Admin.Authorize(c.GetHeader(AdminHeader)); err != nil {
		h.adminError(c, err)
		return
	}

	ov, err := h.deps.Admin.Overview(c.Request.Context())
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, AdminOverviewResponse{Success: true, Stages: ov.Stages, SolveCounts: ov.SolveCounts})
}

// HandleAdminWrite handles POST /functions/v1/admin_stage_control.
func (h *Handlers) HandleAdminWrite(c *gin.Context) {
	if h.deps.Admin == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "admin console disabled", Code: "NOT_FOUND"})
		return
	}
	var req AdminWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	ctx := c.Request.Context()
	var (
		sc  store.StageControl
		err error
	)
	if req.Enabled == nil {
		sc, err = h.deps.Admin.UpdateNotes(ctx, admin.NotesRequest{Stage: req.Stage, AdminUser: req.AdminUser, Notes: req.Notes})
	} else {
		sc, err = h.deps.Admin.Toggle(ctx, admin.ToggleRequest{
			Stage: req.Stage, Enabled: req.Enabled, AdminUser: req.AdminUser, Notes: req.Notes,
		})
	}
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, AdminWriteResponse{Success: true, Stage: sc})
}

// HandleAdminBulk handles PUT /functions/v1/admin_stage_control/bulk.
func (h *Handlers) HandleAdminBulk(c *gin.Context) {
	if h.deps.Admin == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "admin console disabled", Code: "NOT_FOUND"})
		return
	}
	var req admin.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}

	res, err := h.deps.Admin.Bulk(c.Request.Context(), req)
	if err != nil {
		h.adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, AdminBulkResponse{Success: true, Result: res})
}

func (h *Handlers) adminError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "ADMIN_FAILED"
	switch {
	case errors.Is(err, admin.ErrInvalid):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, admin.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("admin request failed", "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

// HandleWinners handles GET /api/stage_winners.
func (h *Handlers) HandleWinners(c *gin.Context) {
	winners, err := h.deps.Store.Winners(c.Request.Context())
	if err != nil {
		h.logger.Error("read winners failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "winners unavailable", Code: "STORE_FAILED"})
		return
	}
	c.JSON(http.StatusOK, winners)
}

// HandleAvailability handles GET /api/stage_control.
func (h *Handlers) HandleAvailability(c *gin.Context) {
	avail, err := h.deps.Store.StageAvailability(c.Request.Context())
	if err != nil {
		h.logger.Error("read availability failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "availability unavailable", Code: "STORE_FAILED"})
		return
	}

	entries := make([]gate.Entry, 0, len(avail))
	for s, enabled := range avail {
		entries = append(entries, gate.Entry{Stage: int(s), Enabled: enabled})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Stage < entries[j].Stage })
	c.JSON(http.StatusOK, entries)
}

// HandleSolvedStages handles GET /api/solves/:user_id.
func (h *Handlers) HandleSolvedStages(c *gin.Context) {
	userID := c.Param("user_id")
	stages, err := h.deps.Store.SolvedStages(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("read solves failed", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "solves unavailable", Code: "STORE_FAILED"})
		return
	}
	c.JSON(http.StatusOK, SolvedStagesResponse{UserID: userID, Stages: stages.Ints()})
}

// HandleWriteSolve handles POST /api/solves.
func (h *Handlers) HandleWriteSolve(c *gin.Context) {
	var solve store.Solve
	if err := c.ShouldBindJSON(&solve); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST"})
		return
	}
	if solve.ID == "" || solve.UserID == "" || !h.deps.Config.Valid(solve.Stage) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "id, user_id and a valid stage are required", Code: "INVALID_REQUEST"})
		return
	}

	inserted, err := h.deps.Store.WriteSolve(c.Request.Context(), solve)
	if err != nil {
		h.logger.Error("write solve failed", "stage", int(solve.Stage), "user_id", solve.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "solve not recorded", Code: "STORE_FAILED"})
		return
	}
	c.JSON(http.StatusOK, WriteSolveResponse{Inserted: inserted})
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	if err := h.deps.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
