package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/orchestrator"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/phone"
)

// IngestLead accepts a new lead from an external form or integration
// and runs the creation pipeline on it.
// POST /api/v1/webhooks/leads
func (h *Handler) IngestLead(c *gin.Context) {
	var req IngestLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	source := req.Source
	if source == "" {
		source = "webhook"
	}

	lead, err := h.leads.Create(c.Request.Context(), repository.CreateLeadParams{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     phone.NormalizeE164(req.Phone),
		Company:   strings.TrimSpace(req.Company),
		Title:     strings.TrimSpace(req.Title),
		Source:    source,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	evt := orchestrator.NewEvent(orchestrator.LeadCreated, lead.ID, source, nil)
	res := h.dispatcher.HandleEvent(c.Request.Context(), evt)

	// Re-read so the response reflects what the pipeline did.
	if updated, err := h.leads.GetByID(c.Request.Context(), lead.ID); err == nil {
		lead = updated
	}

	httpkit.Created(c, IngestLeadResponse{
		Lead:          toLeadResponse(lead),
		Orchestration: toOrchestrationResponse(res),
	})
}

// ListLeads returns leads, newest first.
// GET /api/v1/leads
func (h *Handler) ListLeads(c *gin.Context) {
	limit := queryInt(c, "limit", 50, 200)
	offset := queryInt(c, "offset", 0, 1<<30)

	leads, err := h.leads.List(c.Request.Context(), limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]LeadResponse, 0, len(leads))
	for _, lead := range leads {
		out = append(out, toLeadResponse(lead))
	}
	httpkit.OK(c, gin.H{"leads": out})
}

// GetLead returns one lead.
// GET /api/v1/leads/:id
func (h *Handler) GetLead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	lead, err := h.leads.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toLeadResponse(lead))
}

// ListLeadSequences returns every sequence a lead has been through.
// GET /api/v1/leads/:id/sequences
func (h *Handler) ListLeadSequences(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	seqs, err := h.sequences.ListForLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"sequences": toSequenceResponses(seqs)})
}

// ListLeadTasks returns the enhancement ledger entries for a lead.
// GET /api/v1/leads/:id/tasks
func (h *Handler) ListLeadTasks(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	list, err := h.tasks.ListForSubject(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"tasks": toTaskResponses(list)})
}

func queryInt(c *gin.Context, key string, fallback, max int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	if parsed > max {
		return max
	}
	return parsed
}
