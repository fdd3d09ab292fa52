package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/projection"
)

// RoomPublisher delivers a message to every subscriber of a room.
type RoomPublisher interface {
	Publish(room, event string, data any)
}

// LiveNotifier fans committed changes out to WebSocket rooms and keeps the
// risk projection fresh.
type LiveNotifier struct {
	rooms  RoomPublisher
	cache  projection.Store
	logger *slog.Logger
}

var _ ledger.Notifier = (*LiveNotifier)(nil)

// NewLiveNotifier creates a notifier. Either rooms or cache may be nil.
func NewLiveNotifier(rooms RoomPublisher, cache projection.Store, logger *slog.Logger) *LiveNotifier {
	return &LiveNotifier{rooms: rooms, cache: cache, logger: logger}
}

// liveEvent maps a domain event to its live channel name,
// e.g. proctor.incident.recorded -> incident.recorded.
func liveEvent(evt domain.EventType) string {
	return strings.TrimPrefix(string(evt), "proctor.")
}

// Notify implements ledger.Notifier.
func (n *LiveNotifier) Notify(ctx context.Context, c ledger.Change) {
	if c.Student != nil {
		n.refresh(ctx, c)
	}
	if n.rooms == nil {
		return
	}

	event := liveEvent(c.Event)
	switch {
	case c.Student != nil:
		payload := map[string]any{"student": c.Student}
		if c.Incident != nil {
			payload["incident"] = c.Incident
		}
		if c.Session != nil {
			payload["status"] = ledger.StatusView(c.Student, c.Session)
		}
		n.rooms.Publish(infra.StudentRoom(c.Student.ID.String()), event, payload)
		n.rooms.Publish(infra.SessionRoom(c.Student.SessionID.String()), event, payload)
		n.rooms.Publish(infra.StudentRoom(c.Student.ID.String()), "student.updated", c.Student)
	case c.Session != nil:
		n.rooms.Publish(infra.SessionRoom(c.Session.ID.String()), event, c.Session)
	}
}

// refresh writes the snapshot when the session is known and drops it
// otherwise, so the next status read repopulates it from the store.
func (n *LiveNotifier) refresh(ctx context.Context, c ledger.Change) {
	if n.cache == nil {
		return
	}
	var err error
	if c.Session != nil {
		err = projection.UpdateRisk(ctx, n.cache, projection.RiskSnapshot{
			StudentStatusView: ledger.StatusView(c.Student, c.Session),
			MaxWarnings:       c.Session.MaxWarnings,
		})
	} else {
		err = projection.InvalidateRisk(ctx, n.cache, c.Student.ID)
	}
	if err != nil {
		n.logger.Warn("risk projection refresh failed",
			"student_id", c.Student.ID, "event", c.Event, "error", err)
	}
}
