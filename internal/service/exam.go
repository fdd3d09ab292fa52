package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/projection"
)

// ExamService fronts the engine for the HTTP layer: it issues credentials,
// serves cached status and enforces session ownership.
type ExamService struct {
	engine    *ledger.Engine
	jwtMgr    *auth.JWTManager
	reporters *auth.ReporterAuthManager
	cache     projection.Store
	logger    *slog.Logger
}

// NewExamService creates an ExamService. cache may be nil to always read the store.
func NewExamService(engine *ledger.Engine, jwtMgr *auth.JWTManager, reporters *auth.ReporterAuthManager, cache projection.Store, logger *slog.Logger) *ExamService {
	return &ExamService{engine: engine, jwtMgr: jwtMgr, reporters: reporters, cache: cache, logger: logger}
}

// JoinResult is returned to a student who joined a session.
type JoinResult struct {
	Token       string          `json:"token"`
	Student     *domain.Student `json:"student"`
	SessionID   uuid.UUID       `json:"sessionId"`
	PairingCode string          `json:"pairingCode"`
}

// Join registers the student and issues a student-realm token.
func (s *ExamService) Join(ctx context.Context, p ledger.JoinParams) (*JoinResult, error) {
	st, err := s.engine.Join(ctx, p)
	if err != nil {
		return nil, err
	}
	token, err := s.jwtMgr.GenerateToken(auth.RealmStudent, st.ID, st.Email, "", st.SessionID.String())
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}
	return &JoinResult{Token: token, Student: st, SessionID: st.SessionID, PairingCode: st.PairingCode}, nil
}

// Status serves the student's status from the projection, falling back to
// the store on a miss and refilling the cache.
func (s *ExamService) Status(ctx context.Context, studentID uuid.UUID) (*domain.StudentStatusView, error) {
	if s.cache != nil {
		snap, err := projection.GetRisk(ctx, s.cache, studentID)
		if err == nil {
			return &snap.StudentStatusView, nil
		}
		if !errors.Is(err, projection.ErrMiss) {
			s.logger.Warn("risk projection read failed", "student_id", studentID, "error", err)
		}
	}

	view, err := s.engine.Status(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := projection.UpdateRisk(ctx, s.cache, projection.RiskSnapshot{StudentStatusView: *view}); err != nil {
			s.logger.Warn("risk projection write failed", "student_id", studentID, "error", err)
		}
	}
	return view, nil
}

// ReporterTokenInput requests a reporter credential.
type ReporterTokenInput struct {
	ReporterID string   `json:"reporterId"`
	Scopes     []string `json:"scopes"`
	TTLSeconds int      `json:"ttlSeconds,omitempty"`
}

// ReporterTokenResult carries a freshly minted reporter credential.
type ReporterTokenResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueReporterToken mints a scoped token for a detector worker or mobile watcher.
func (s *ExamService) IssueReporterToken(input ReporterTokenInput) (*ReporterTokenResult, error) {
	if len(input.Scopes) == 0 {
		return nil, domain.ErrInvalidArgument("at least one scope is required")
	}
	ttl := time.Duration(input.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = auth.DefaultReporterTTL
	}
	token, err := s.reporters.GenerateReporterToken(input.ReporterID, input.Scopes, ttl)
	if err != nil {
		return nil, domain.ErrInvalidArgument(err.Error())
	}
	return &ReporterTokenResult{Token: token, ExpiresAt: time.Now().UTC().Add(ttl)}, nil
}

// AuthorizeSession checks the proctor owns the session. Admins see everything.
func (s *ExamService) AuthorizeSession(ctx context.Context, claims *auth.Claims, sessionID uuid.UUID) (*domain.ExamSession, error) {
	es, err := s.engine.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := owns(claims, es); err != nil {
		return nil, err
	}
	return es, nil
}

// AuthorizeStudent checks the proctor owns the student's session.
func (s *ExamService) AuthorizeStudent(ctx context.Context, claims *auth.Claims, studentID uuid.UUID) (*domain.Student, error) {
	st, err := s.engine.Student(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.AuthorizeSession(ctx, claims, st.SessionID); err != nil {
		return nil, err
	}
	return st, nil
}

// AuthorizeIncident checks the proctor owns the incident's session.
func (s *ExamService) AuthorizeIncident(ctx context.Context, claims *auth.Claims, incidentID uuid.UUID) (*domain.Incident, error) {
	inc, err := s.engine.Incident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.AuthorizeSession(ctx, claims, inc.SessionID); err != nil {
		return nil, err
	}
	return inc, nil
}

func owns(claims *auth.Claims, es *domain.ExamSession) error {
	if claims == nil {
		return domain.ErrUnauthorized("no auth context")
	}
	if claims.Role == auth.RoleAdmin || claims.Subject == es.OwnerID.String() {
		return nil
	}
	return domain.ErrForbidden("exam session belongs to another proctor")
}
