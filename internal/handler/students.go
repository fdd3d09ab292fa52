package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/service"
)

// StudentHandler serves the student lifecycle endpoints and the proctor's
// per-student actions.
type StudentHandler struct {
	exams  *service.ExamService
	engine *ledger.Engine
	logger *slog.Logger
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(exams *service.ExamService, engine *ledger.Engine, logger *slog.Logger) *StudentHandler {
	return &StudentHandler{exams: exams, engine: engine, logger: logger}
}

type joinRequest struct {
	FullName           string `json:"fullName"`
	Email              string `json:"email"`
	ExamCode           string `json:"examCode"`
	BrowserFingerprint string `json:"browserFingerprint"`
	IPAddress          string `json:"ipAddress"`
}

// Join handles POST /api/students/join.
func (h *StudentHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidArgument("invalid request body"))
		return
	}
	ip := strings.TrimSpace(req.IPAddress)
	if ip == "" {
		ip = ClientIP(r)
	}

	result, err := h.exams.Join(r.Context(), ledger.JoinParams{
		JoinCode:           req.ExamCode,
		FullName:           req.FullName,
		Email:              req.Email,
		IPAddress:          ip,
		BrowserFingerprint: req.BrowserFingerprint,
	})
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, result)
}

// Status handles GET /api/students/{studentID}/status.
func (h *StudentHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "studentID")
	if err != nil {
		RespondError(w, err)
		return
	}
	view, err := h.exams.Status(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, view)
}

// Heartbeat handles POST /api/students/{studentID}/heartbeat.
func (h *StudentHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.engine.Heartbeat)
}

// Start handles POST /api/students/{studentID}/start.
func (h *StudentHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.engine.Start)
}

// Submit handles POST /api/students/{studentID}/submit.
func (h *StudentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.engine.Submit)
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

// Terminate handles POST /api/students/{studentID}/terminate. Proctor only.
func (h *StudentHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "studentID")
	if err != nil {
		RespondError(w, err)
		return
	}
	var req terminateRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidArgument("invalid request body"))
		return
	}
	if _, err := h.exams.AuthorizeStudent(r.Context(), auth.ClaimsFromContext(r.Context()), id); err != nil {
		RespondError(w, err)
		return
	}

	st, err := h.engine.Terminate(r.Context(), id, req.Reason)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.logger.Info("student terminated by proctor",
		"student_id", id,
		"proctor_id", auth.SubjectFromContext(r.Context()),
	)
	RespondJSON(w, http.StatusOK, st)
}

// Incidents handles GET /api/students/{studentID}/incidents. Proctor only.
func (h *StudentHandler) Incidents(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "studentID")
	if err != nil {
		RespondError(w, err)
		return
	}
	if _, err := h.exams.AuthorizeStudent(r.Context(), auth.ClaimsFromContext(r.Context()), id); err != nil {
		RespondError(w, err)
		return
	}
	incidents, err := h.engine.ListForStudent(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, incidents)
}

// Reconcile handles GET /api/students/{studentID}/reconcile. Proctor only.
func (h *StudentHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "studentID")
	if err != nil {
		RespondError(w, err)
		return
	}
	if _, err := h.exams.AuthorizeStudent(r.Context(), auth.ClaimsFromContext(r.Context()), id); err != nil {
		RespondError(w, err)
		return
	}
	res, err := h.engine.Reconcile(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	if !res.AllPassed {
		h.logger.Warn("student counters diverge from ledger", "student_id", id)
	}
	RespondJSON(w, http.StatusOK, res)
}

type studentOp func(ctx context.Context, studentID uuid.UUID) (*domain.Student, error)

func (h *StudentHandler) mutate(w http.ResponseWriter, r *http.Request, op studentOp) {
	id, err := uuidParam(r, "studentID")
	if err != nil {
		RespondError(w, err)
		return
	}
	st, err := op(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, st)
}
