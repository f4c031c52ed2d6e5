package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_backend/internal/tasks"
	"outreach_backend/platform/httpkit"
)

// CreateTask records an enhancement task in the ledger. A duplicate
// within the anti-waste window comes back as suppressed, not an error.
// POST /api/v1/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	taskID, created, err := h.tasks.CreateTask(c.Request.Context(), subjectID, tasks.Kind(req.Kind), "api")
	if httpkit.HandleError(c, err) {
		return
	}

	if !created {
		httpkit.OK(c, CreateTaskResponse{Created: false, Suppressed: true})
		return
	}
	httpkit.Created(c, CreateTaskResponse{TaskID: taskID, Created: true})
}

// GetTask returns one ledger entry.
// GET /api/v1/tasks/:id
func (h *Handler) GetTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	task, err := h.tasks.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toTaskResponse(task))
}

// Stats returns sequence and task counters for dashboards.
// GET /api/v1/stats
func (h *Handler) Stats(c *gin.Context) {
	seqStats, err := h.sequences.Stats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	taskStats, err := h.tasks.Stats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"sequences": toSequenceStatsResponse(seqStats),
		"tasks":     taskStats,
	})
}
