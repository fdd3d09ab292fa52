package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
)

const throttledMessage = "Incident acknowledged but throttled."

// ProctorHandler serves the reporter-facing endpoints: violation reports
// from detectors and the mobile watcher handshake.
type ProctorHandler struct {
	engine    *ledger.Engine
	validator *ReportValidator
	logger    *slog.Logger
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(engine *ledger.Engine, validator *ReportValidator, logger *slog.Logger) *ProctorHandler {
	return &ProctorHandler{engine: engine, validator: validator, logger: logger}
}

type reportRequest struct {
	StudentID       uuid.UUID  `json:"studentId"`
	SessionID       uuid.UUID  `json:"sessionId"`
	CheatType       string     `json:"cheatType"`
	Description     string     `json:"description"`
	ConfidenceScore float64    `json:"confidenceScore"`
	SnapshotURL     string     `json:"snapshotUrl"`
	DetectedAt      *time.Time `json:"detectedAt"`
}

type reportResponse struct {
	Status            string        `json:"status"`
	Message           string        `json:"message,omitempty"`
	IncidentID        *uuid.UUID    `json:"incidentId,omitempty"`
	NewSuspicionScore *domain.Score `json:"newSuspicionScore,omitempty"`
	StrikeCount       *int          `json:"strikeCount,omitempty"`
	BanEligible       bool          `json:"banEligible,omitempty"`
}

// Report handles POST /api/proctor/report.
func (h *ProctorHandler) Report(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		RespondError(w, domain.ErrInvalidArgument("invalid request body"))
		return
	}
	if err := h.validator.Validate(raw); err != nil {
		RespondError(w, err)
		return
	}

	var req reportRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		RespondError(w, domain.ErrInvalidArgument("invalid request body"))
		return
	}
	vt, err := domain.ParseViolationType(strings.TrimSpace(req.CheatType))
	if err != nil {
		RespondError(w, err)
		return
	}

	params := ledger.ReportParams{
		StudentID:   req.StudentID,
		SessionID:   req.SessionID,
		Type:        vt,
		Description: req.Description,
		Confidence:  req.ConfidenceScore,
		EvidenceRef: req.SnapshotURL,
	}
	if req.DetectedAt != nil {
		params.ObservedAt = *req.DetectedAt
	}

	res, err := h.engine.Record(r.Context(), params)
	if err != nil {
		RespondError(w, err)
		return
	}

	if res.Suppressed {
		h.logger.Debug("report throttled",
			"student_id", req.StudentID,
			"type", vt,
			"reporter", reporterSub(r),
		)
		RespondJSON(w, http.StatusOK, reportResponse{Status: "throttled", Message: throttledMessage})
		return
	}

	score := res.Student.SuspicionScore
	strikes := res.Student.StrikeCount
	RespondJSON(w, http.StatusOK, reportResponse{
		Status:            "logged",
		IncidentID:        &res.Incident.ID,
		NewSuspicionScore: &score,
		StrikeCount:       &strikes,
		BanEligible:       res.BanEligible,
	})
}

type handshakeRequest struct {
	PairingCode string `json:"pairingCode"`
}

type handshakeResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	AlreadyConnected bool   `json:"alreadyConnected,omitempty"`
}

// Handshake handles POST /api/proctor/mobile/handshake from the mobile watcher.
func (h *ProctorHandler) Handshake(w http.ResponseWriter, r *http.Request) {
	var req handshakeRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrInvalidArgument("invalid request body"))
		return
	}
	if strings.TrimSpace(req.PairingCode) == "" {
		RespondError(w, domain.ErrInvalidArgument("pairingCode is required"))
		return
	}

	res, err := h.engine.Pair(r.Context(), req.PairingCode)
	if err != nil {
		if domain.IsNotFound(err) {
			RespondJSON(w, http.StatusNotFound, handshakeResponse{Message: "Invalid pairing code"})
			return
		}
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusOK, handshakeResponse{
		Success:          true,
		Message:          "Mobile device paired successfully",
		AlreadyConnected: res.AlreadyConnected,
	})
}

// Health handles GET /api/proctor/health.
func (h *ProctorHandler) Health(w http.ResponseWriter, _ *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "UP",
		"message": "Proctor Server is UP. Ready to receive evidence.",
	})
}

func reporterSub(r *http.Request) string {
	if tok := auth.ReporterFromContext(r.Context()); tok != nil {
		return tok.Sub
	}
	return ""
}

