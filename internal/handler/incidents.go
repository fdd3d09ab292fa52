package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/lifecycle"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/service"
)

// IncidentHandler serves incident review.
type IncidentHandler struct {
	exams  *service.ExamService
	engine *ledger.Engine
	logger *slog.Logger
}

// NewIncidentHandler creates a new IncidentHandler.
func NewIncidentHandler(exams *service.ExamService, engine *ledger.Engine, logger *slog.Logger) *IncidentHandler {
	return &IncidentHandler{exams: exams, engine: engine, logger: logger}
}

type adjudicateRequest struct {
	Status string `json:"status"`
}

type adjudicateResponse struct {
	Incident *domain.Incident `json:"incident"`
	Student  *domain.Student  `json:"student"`
	Effect   lifecycle.Effect `json:"effect"`
	Changed  bool             `json:"changed"`
}

// Adjudicate handles PATCH /api/incidents/{incidentID}.
func (h *IncidentHandler) Adjudicate(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "incidentID")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req adjudicateRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidArgument("invalid request body"))
		return
	}
	target, err := domain.ParseIncidentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err != nil {
		RespondError(w, err)
		return
	}
	if _, err := h.exams.AuthorizeIncident(r.Context(), auth.ClaimsFromContext(r.Context()), id); err != nil {
		RespondError(w, err)
		return
	}

	res, err := h.engine.Adjudicate(r.Context(), id, target)
	if err != nil {
		RespondError(w, err)
		return
	}
	if res.Changed {
		h.logger.Info("incident adjudicated",
			"incident_id", id,
			"status", target,
			"effect", res.Effect,
			"reviewer", auth.SubjectFromContext(r.Context()),
		)
	}
	RespondJSON(w, http.StatusOK, adjudicateResponse{
		Incident: res.Incident,
		Student:  res.Student,
		Effect:   res.Effect,
		Changed:  res.Changed,
	})
}
