package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_backend/internal/sequence/scheduler"
	"outreach_backend/platform/httpkit"
)

// StartSequence starts an outreach sequence for a lead.
// POST /api/v1/sequences
func (h *Handler) StartSequence(c *gin.Context) {
	var req StartSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	lead, err := h.leads.GetByID(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	seq, err := h.sequences.Start(c.Request.Context(), scheduler.StartParams{
		LeadID:     leadID,
		TemplateID: req.TemplateID,
		LeadContext: map[string]string{
			"first_name":  lead.FirstName,
			"last_name":   lead.LastName,
			"company":     lead.Company,
			"title":       lead.Title,
			"email":       lead.Email,
			"sender_name": h.senderName,
		},
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, toSequenceResponse(seq))
}

// GetSequence returns one sequence.
// GET /api/v1/sequences/:id
func (h *Handler) GetSequence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	seq, err := h.sequences.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toSequenceResponse(seq))
}

// ListSequenceSteps returns the step timeline of a sequence.
// GET /api/v1/sequences/:id/steps
func (h *Handler) ListSequenceSteps(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	steps, err := h.sequences.ListSteps(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"steps": toStepResponses(steps)})
}

// PauseSequence pauses an active sequence.
// POST /api/v1/sequences/:id/pause
func (h *Handler) PauseSequence(c *gin.Context) {
	h.sequenceAction(c, h.sequences.Pause, "paused")
}

// ResumeSequence resumes a paused sequence.
// POST /api/v1/sequences/:id/resume
func (h *Handler) ResumeSequence(c *gin.Context) {
	h.sequenceAction(c, h.sequences.Resume, "resumed")
}

// CancelSequence cancels a sequence permanently.
// POST /api/v1/sequences/:id/cancel
func (h *Handler) CancelSequence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req CancelSequenceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
	}

	if err := h.sequences.Cancel(c.Request.Context(), id, req.Reason); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "cancelled"})
}

func (h *Handler) sequenceAction(c *gin.Context, action func(ctx context.Context, id uuid.UUID) error, status string) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	if err := action(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": status})
}
