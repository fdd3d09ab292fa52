package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/service"
)

// ExamHandler serves the proctor's session management and review endpoints.
type ExamHandler struct {
	exams  *service.ExamService
	engine *ledger.Engine
	logger *slog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(exams *service.ExamService, engine *ledger.Engine, logger *slog.Logger) *ExamHandler {
	return &ExamHandler{exams: exams, engine: engine, logger: logger}
}

type createExamRequest struct {
	Title                  string    `json:"title"`
	SubjectCode            string    `json:"subjectCode"`
	Instructions           string    `json:"instructions"`
	StartTime              time.Time `json:"startTime"`
	EndTime                time.Time `json:"endTime"`
	MaxWarnings            *int      `json:"maxWarnings"`
	Sensitivity            string    `json:"sensitivity"`
	IsMobileSentinelActive bool      `json:"isMobileSentinelActive"`
}

// Create handles POST /api/exams.
func (h *ExamHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createExamRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidArgument("invalid request body"))
		return
	}
	owner, err := uuid.Parse(auth.SubjectFromContext(r.Context()))
	if err != nil {
		RespondError(w, domain.ErrUnauthorized("invalid subject"))
		return
	}

	es, err := h.engine.CreateSession(r.Context(), ledger.CreateSessionParams{
		OwnerID:                owner,
		Title:                  req.Title,
		SubjectCode:            req.SubjectCode,
		Instructions:           req.Instructions,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		MaxWarnings:            req.MaxWarnings,
		Sensitivity:            domain.Sensitivity(strings.ToUpper(strings.TrimSpace(req.Sensitivity))),
		MobileSentinelRequired: req.IsMobileSentinelActive,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, es)
}

// ListMine handles GET /api/exams.
func (h *ExamHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(auth.SubjectFromContext(r.Context()))
	if err != nil {
		RespondError(w, domain.ErrUnauthorized("invalid subject"))
		return
	}
	sessions, err := h.engine.SessionsOwnedBy(r.Context(), owner)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, sessions)
}

// Get handles GET /api/exams/{sessionID}.
func (h *ExamHandler) Get(w http.ResponseWriter, r *http.Request) {
	es, ok := h.authorize(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, es)
}

// Publish handles POST /api/exams/{sessionID}/publish.
func (h *ExamHandler) Publish(w http.ResponseWriter, r *http.Request) {
	es, ok := h.authorize(w, r)
	if !ok {
		return
	}
	out, err := h.engine.PublishSession(r.Context(), es.ID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, out)
}

// Close handles POST /api/exams/{sessionID}/close.
func (h *ExamHandler) Close(w http.ResponseWriter, r *http.Request) {
	es, ok := h.authorize(w, r)
	if !ok {
		return
	}
	out, err := h.engine.CloseSession(r.Context(), es.ID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, out)
}

// Incidents handles GET /api/exams/{sessionID}/incidents.
func (h *ExamHandler) Incidents(w http.ResponseWriter, r *http.Request) {
	es, ok := h.authorize(w, r)
	if !ok {
		return
	}
	incidents, err := h.engine.ListForSession(r.Context(), es.ID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, incidents)
}

// Pending handles GET /api/exams/{sessionID}/pending.
func (h *ExamHandler) Pending(w http.ResponseWriter, r *http.Request) {
	es, ok := h.authorize(w, r)
	if !ok {
		return
	}
	incidents, err := h.engine.ListPending(r.Context(), es.ID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, incidents)
}

// Summary handles GET /api/exams/{sessionID}/summary.
func (h *ExamHandler) Summary(w http.ResponseWriter, r *http.Request) {
	es, ok := h.authorize(w, r)
	if !ok {
		return
	}
	sum, err := h.engine.Summarize(r.Context(), es.ID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, sum)
}

// Roster handles GET /api/exams/{sessionID}/students.
func (h *ExamHandler) Roster(w http.ResponseWriter, r *http.Request) {
	es, ok := h.authorize(w, r)
	if !ok {
		return
	}
	students, err := h.engine.Roster(r.Context(), es.ID)
	if err != nil {
		RespondError(w, err)
		return
	}
	views := make([]domain.StudentStatusView, 0, len(students))
	for i := range students {
		views = append(views, ledger.StatusView(&students[i], es))
	}
	RespondJSON(w, http.StatusOK, views)
}

// IssueReporterToken handles POST /api/reporter-tokens.
func (h *ExamHandler) IssueReporterToken(w http.ResponseWriter, r *http.Request) {
	var input service.ReporterTokenInput
	if err := DecodeJSON(r, &input); err != nil {
		RespondError(w, domain.ErrInvalidArgument("invalid request body"))
		return
	}
	res, err := h.exams.IssueReporterToken(input)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.logger.Info("reporter token issued",
		"reporter_id", input.ReporterID,
		"scopes", input.Scopes,
		"issued_by", auth.SubjectFromContext(r.Context()),
	)
	RespondJSON(w, http.StatusCreated, res)
}

func (h *ExamHandler) authorize(w http.ResponseWriter, r *http.Request) (*domain.ExamSession, bool) {
	id, err := uuidParam(r, "sessionID")
	if err != nil {
		RespondError(w, err)
		return nil, false
	}
	es, err := h.exams.AuthorizeSession(r.Context(), auth.ClaimsFromContext(r.Context()), id)
	if err != nil {
		RespondError(w, err)
		return nil, false
	}
	return es, true
}
