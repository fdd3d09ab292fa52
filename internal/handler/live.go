package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/referee"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/service"
)

const (
	detectorReadLimit = 4096
	detectorIdle      = 60 * time.Second
	detectorWriteWait = 10 * time.Second
)

// LiveHandler serves the WebSocket endpoints.
type LiveHandler struct {
	hub     *infra.WSHub
	exams   *service.ExamService
	referee *referee.Referee
	logger  *slog.Logger
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(hub *infra.WSHub, exams *service.ExamService, ref *referee.Referee, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{hub: hub, exams: exams, referee: ref, logger: logger}
}

// Student handles GET /ws/students/{studentID}. The student token is checked
// by middleware before the upgrade.
func (h *LiveHandler) Student(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "studentID")
	if err != nil {
		RespondError(w, err)
		return
	}
	h.hub.Serve(r.Context(), w, r, infra.StudentRoom(id.String()))
}

// Session handles GET /ws/sessions/{sessionID} for the owning proctor.
func (h *LiveHandler) Session(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "sessionID")
	if err != nil {
		RespondError(w, err)
		return
	}
	if _, err := h.exams.AuthorizeSession(r.Context(), auth.ClaimsFromContext(r.Context()), id); err != nil {
		RespondError(w, err)
		return
	}
	h.hub.Serve(r.Context(), w, r, infra.SessionRoom(id.String()))
}

type frameAck struct {
	StudentID   string `json:"studentId"`
	Fired       bool   `json:"fired"`
	Suppressed  bool   `json:"suppressed,omitempty"`
	IncidentID  string `json:"incidentId,omitempty"`
	BanEligible bool   `json:"banEligible,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Detector handles GET /ws/detector. The detector streams one JSON frame per
// message; an acknowledgement is written only when a frame fires a report
// or is rejected.
func (h *LiveHandler) Detector(w http.ResponseWriter, r *http.Request) {
	ws, err := h.hub.Upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("detector upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	reporter := reporterSub(r)
	h.logger.Info("detector stream opened", "reporter", reporter)
	defer h.logger.Info("detector stream closed", "reporter", reporter)

	ws.SetReadLimit(detectorReadLimit)
	ctx := r.Context()
	for {
		_ = ws.SetReadDeadline(time.Now().Add(detectorIdle))
		var fr referee.Frame
		if err := ws.ReadJSON(&fr); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("detector stream read failed", "error", err, "reporter", reporter)
			}
			return
		}

		res, err := h.referee.Process(ctx, fr)
		var ack *frameAck
		switch {
		case err != nil:
			ack = &frameAck{StudentID: fr.StudentID.String(), Error: err.Error()}
		case res != nil:
			ack = &frameAck{
				StudentID:   fr.StudentID.String(),
				Fired:       true,
				Suppressed:  res.Suppressed,
				BanEligible: res.BanEligible,
			}
			if res.Incident != nil {
				ack.IncidentID = res.Incident.ID.String()
			}
		}
		if ack == nil {
			continue
		}
		_ = ws.SetWriteDeadline(time.Now().Add(detectorWriteWait))
		if err := ws.WriteJSON(ack); err != nil {
			return
		}
	}
}
