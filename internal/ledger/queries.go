package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/policy"
)

// ListForSession returns a session's incidents, newest detection first.
func (e *Engine) ListForSession(ctx context.Context, sessionID uuid.UUID) ([]domain.Incident, error) {
	if _, err := e.findSession(ctx, sessionID); err != nil {
		return nil, err
	}
	incs, err := e.store.ListIncidentsBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session incidents: %w", err)
	}
	return incs, nil
}

// ListForStudent returns a student's incidents, newest detection first.
func (e *Engine) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]domain.Incident, error) {
	if _, err := e.findStudent(ctx, studentID); err != nil {
		return nil, err
	}
	incs, err := e.store.ListIncidentsByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student incidents: %w", err)
	}
	return incs, nil
}

// ListPending returns the review queue of a session, oldest detection first.
func (e *Engine) ListPending(ctx context.Context, sessionID uuid.UUID) ([]domain.Incident, error) {
	if _, err := e.findSession(ctx, sessionID); err != nil {
		return nil, err
	}
	incs, err := e.store.ListPendingIncidents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list pending incidents: %w", err)
	}
	return incs, nil
}

// Incident returns an incident by id.
func (e *Engine) Incident(ctx context.Context, incidentID uuid.UUID) (*domain.Incident, error) {
	inc, err := e.store.FindIncident(ctx, incidentID)
	if err != nil {
		return nil, fmt.Errorf("find incident: %w", err)
	}
	if inc == nil {
		return nil, domain.ErrNotFound("incident", incidentID.String())
	}
	return inc, nil
}

// Student returns a student by id.
func (e *Engine) Student(ctx context.Context, studentID uuid.UUID) (*domain.Student, error) {
	return e.findStudent(ctx, studentID)
}

// Status returns the student's progress and risk standing.
func (e *Engine) Status(ctx context.Context, studentID uuid.UUID) (*domain.StudentStatusView, error) {
	st, err := e.findStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	es, err := e.findSession(ctx, st.SessionID)
	if err != nil {
		return nil, err
	}
	v := StatusView(st, es)
	return &v, nil
}

// StatusView derives the status view from a student and its session.
func StatusView(st *domain.Student, es *domain.ExamSession) domain.StudentStatusView {
	risk := policy.EvaluateStudentRisk(policy.StudentRiskSignals{
		SuspicionScore:  st.SuspicionScore,
		StrikeCount:     st.StrikeCount,
		MaxWarnings:     es.MaxWarnings,
		MobileRequired:  es.MobileSentinelRequired,
		MobileConnected: st.MobileConnected,
	})
	return domain.StudentStatusView{
		StudentID:       st.ID,
		SessionID:       st.SessionID,
		Status:          st.Status,
		Banned:          st.Banned,
		BanEligible:     risk.BanEligible,
		SuspicionScore:  st.SuspicionScore,
		StrikeCount:     st.StrikeCount,
		RiskLevel:       string(risk.Level),
		RiskFlags:       risk.Flags,
		MobileConnected: st.MobileConnected,
	}
}

func (e *Engine) findStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	st, err := e.store.FindStudent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find student: %w", err)
	}
	if st == nil {
		return nil, domain.ErrNotFound("student", id.String())
	}
	return st, nil
}

func (e *Engine) findSession(ctx context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	es, err := e.store.FindSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find exam session: %w", err)
	}
	if es == nil {
		return nil, domain.ErrNotFound("exam session", id.String())
	}
	return es, nil
}
