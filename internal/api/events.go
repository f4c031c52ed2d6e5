package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_backend/internal/orchestrator"
	"outreach_backend/platform/httpkit"
)

// ingestableEvents is the closed set of event types external callers
// may inject. Everything else is rejected before it reaches a pipeline.
var ingestableEvents = map[orchestrator.EventType]bool{
	orchestrator.MessageReceived:   true,
	orchestrator.CallScheduled:     true,
	orchestrator.CallCompleted:     true,
	orchestrator.DFIOpportunity:    true,
	orchestrator.Escalation:        true,
	orchestrator.ResearchRequested: true,
	orchestrator.NoResponse:        true,
	orchestrator.ProposalRequested: true,
}

// IngestEvent accepts a domain event for an existing lead.
// POST /api/v1/webhooks/events
func (h *Handler) IngestEvent(c *gin.Context) {
	var req IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	eventType := orchestrator.EventType(req.Type)
	if !ingestableEvents[eventType] {
		httpkit.Error(c, http.StatusBadRequest, "unsupported event type", req.Type)
		return
	}

	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	source := req.Source
	if source == "" {
		source = "webhook"
	}

	evt := orchestrator.NewEvent(eventType, leadID, source, req.Payload)
	res := h.dispatcher.HandleEvent(c.Request.Context(), evt)
	httpkit.OK(c, toOrchestrationResponse(res))
}

// RecordEngagement accepts open and click signals from the email
// tracking provider.
// POST /api/v1/webhooks/engagement
func (h *Handler) RecordEngagement(c *gin.Context) {
	var req EngagementRequest
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

	eventType := orchestrator.EmailOpened
	if req.Kind == "click" {
		eventType = orchestrator.EmailClicked
	}

	evt := orchestrator.NewEvent(eventType, leadID, "tracking", nil)
	res := h.dispatcher.HandleEvent(c.Request.Context(), evt)
	httpkit.OK(c, toOrchestrationResponse(res))
}
