package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/guard"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/projection"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type roomMessage struct {
	room, event string
}

type recordingRooms struct {
	mu   sync.Mutex
	msgs []roomMessage
}

func (r *recordingRooms) Publish(room, event string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, roomMessage{room, event})
}

func (r *recordingRooms) has(room, event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.room == room && m.event == event {
			return true
		}
	}
	return false
}

type env struct {
	store   *repository.MemoryStore
	cache   *projection.InMemoryStore
	rooms   *recordingRooms
	engine  *ledger.Engine
	exams   *ExamService
	authSvc *AuthService
	jwt     *auth.JWTManager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := repository.NewMemoryStore()
	cache := projection.NewInMemoryStore()
	rooms := &recordingRooms{}
	jwtMgr := auth.NewJWTManager("service-test-secret", time.Hour, time.Hour)
	engine := ledger.NewEngine(store, guard.NewDedupWindow(0), NewLiveNotifier(rooms, cache, discardLogger()), discardLogger())
	return &env{
		store:   store,
		cache:   cache,
		rooms:   rooms,
		engine:  engine,
		exams:   NewExamService(engine, jwtMgr, auth.NewReporterAuthManager("reporter-test-secret"), cache, discardLogger()),
		authSvc: NewAuthService(store, jwtMgr).WithHashCost(bcrypt.MinCost),
		jwt:     jwtMgr,
	}
}

func (e *env) session(t *testing.T, owner uuid.UUID) *domain.ExamSession {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	es, err := e.engine.CreateSession(ctx, ledger.CreateSessionParams{
		OwnerID: owner, Title: "Organic Chemistry", StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
	})
	require.NoError(t, err)
	es, err = e.engine.PublishSession(ctx, es.ID)
	require.NoError(t, err)
	return es
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.authSvc.Register(ctx, RegisterInput{Email: " Grace@Example.edu ", Password: "correct horse", FullName: "Grace"})
	require.NoError(t, err)
	assert.Equal(t, "grace@example.edu", res.Email)
	assert.Equal(t, auth.RoleProctor, res.Role)

	claims, err := e.jwt.ValidateTokenForRealm(res.Token, auth.RealmProctor)
	require.NoError(t, err)
	assert.Equal(t, res.ProctorID.String(), claims.Subject)

	_, err = e.authSvc.Register(ctx, RegisterInput{Email: "grace@example.edu", Password: "another pass", FullName: "G"})
	assert.Equal(t, domain.CodeConflict, domain.KindOf(err))

	login, err := e.authSvc.Login(ctx, LoginInput{Email: "GRACE@example.edu", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, res.ProctorID, login.ProctorID)

	_, err = e.authSvc.Login(ctx, LoginInput{Email: "grace@example.edu", Password: "wrong"})
	assert.Equal(t, domain.CodeUnauthorized, domain.KindOf(err))
	_, err = e.authSvc.Login(ctx, LoginInput{Email: "nobody@example.edu", Password: "whatever1"})
	assert.Equal(t, domain.CodeUnauthorized, domain.KindOf(err))
}

func TestAuthService_RegisterValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tests := []struct {
		name  string
		input RegisterInput
		code  string
	}{
		{"bad email", RegisterInput{Email: "nope", Password: "longenough", FullName: "A"}, domain.CodeInvalidArgument},
		{"short password", RegisterInput{Email: "a@b.co", Password: "short", FullName: "A"}, domain.CodeInvalidArgument},
		{"missing name", RegisterInput{Email: "a@b.co", Password: "longenough"}, domain.CodeInvalidArgument},
		{"unknown role", RegisterInput{Email: "a@b.co", Password: "longenough", FullName: "A", Role: "dean"}, domain.CodeInvalidArgument},
		{"admin", RegisterInput{Email: "a@b.co", Password: "longenough", FullName: "A", Role: auth.RoleAdmin}, domain.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.authSvc.Register(ctx, tt.input)
			assert.Equal(t, tt.code, domain.KindOf(err))
		})
	}
}

func TestExamService_JoinIssuesStudentToken(t *testing.T) {
	e := newEnv(t)
	es := e.session(t, uuid.New())

	res, err := e.exams.Join(context.Background(), ledger.JoinParams{JoinCode: es.JoinCode, FullName: "Ada", Email: "ada@example.edu"})
	require.NoError(t, err)
	assert.Len(t, res.PairingCode, 8)

	claims, err := e.jwt.ValidateTokenForRealm(res.Token, auth.RealmStudent)
	require.NoError(t, err)
	assert.Equal(t, res.Student.ID.String(), claims.Subject)
	assert.Equal(t, es.ID.String(), claims.SessionID)
	assert.True(t, e.rooms.has(infra.SessionRoom(es.ID.String()), "student.joined"))
}

func TestExamService_StatusUsesProjection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	es := e.session(t, uuid.New())
	joined, err := e.exams.Join(ctx, ledger.JoinParams{JoinCode: es.JoinCode, FullName: "Ada", Email: "ada@example.edu"})
	require.NoError(t, err)
	id := joined.Student.ID

	// Join has no session in its change, so the snapshot is dropped.
	_, err = projection.GetRisk(ctx, e.cache, id)
	assert.ErrorIs(t, err, projection.ErrMiss)

	view, err := e.exams.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StudentRegistered, view.Status)

	_, err = projection.GetRisk(ctx, e.cache, id)
	require.NoError(t, err, "status read refills the cache")

	_, err = e.engine.Record(ctx, ledger.ReportParams{StudentID: id, Type: domain.ViolationMobilePhone, Confidence: 1})
	require.NoError(t, err)

	snap, err := projection.GetRisk(ctx, e.cache, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ScoreFromPoints(20), snap.SuspicionScore)
	assert.Equal(t, 1, snap.StrikeCount)

	view, err = e.exams.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, view.StrikeCount)
	assert.True(t, e.rooms.has(infra.StudentRoom(id.String()), "incident.recorded"))

	_, err = e.exams.Status(ctx, uuid.New())
	assert.True(t, domain.IsNotFound(err))
}

func TestExamService_Authorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	es := e.session(t, owner)
	joined, err := e.exams.Join(ctx, ledger.JoinParams{JoinCode: es.JoinCode, FullName: "Ada", Email: "ada@example.edu"})
	require.NoError(t, err)
	rec, err := e.engine.Record(ctx, ledger.ReportParams{StudentID: joined.Student.ID, Type: domain.ViolationTabSwitch, Confidence: 0.9})
	require.NoError(t, err)

	mine := &auth.Claims{Role: auth.RoleProctor}
	mine.Subject = owner.String()
	stranger := &auth.Claims{Role: auth.RoleProctor}
	stranger.Subject = uuid.NewString()
	admin := &auth.Claims{Role: auth.RoleAdmin}
	admin.Subject = uuid.NewString()

	_, err = e.exams.AuthorizeSession(ctx, mine, es.ID)
	assert.NoError(t, err)
	_, err = e.exams.AuthorizeSession(ctx, admin, es.ID)
	assert.NoError(t, err)
	_, err = e.exams.AuthorizeSession(ctx, stranger, es.ID)
	assert.Equal(t, domain.CodeForbidden, domain.KindOf(err))

	_, err = e.exams.AuthorizeStudent(ctx, stranger, joined.Student.ID)
	assert.Equal(t, domain.CodeForbidden, domain.KindOf(err))
	_, err = e.exams.AuthorizeIncident(ctx, mine, rec.Incident.ID)
	assert.NoError(t, err)
	_, err = e.exams.AuthorizeIncident(ctx, mine, uuid.New())
	assert.True(t, domain.IsNotFound(err))
	_, err = e.exams.AuthorizeSession(ctx, nil, es.ID)
	assert.Equal(t, domain.CodeUnauthorized, domain.KindOf(err))
}

func TestExamService_IssueReporterToken(t *testing.T) {
	e := newEnv(t)

	res, err := e.exams.IssueReporterToken(ReporterTokenInput{ReporterID: "detector-7", Scopes: []string{auth.ScopeIncidentsReport}})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	_, err = e.exams.IssueReporterToken(ReporterTokenInput{ReporterID: "detector-7"})
	assert.Equal(t, domain.CodeInvalidArgument, domain.KindOf(err))
	_, err = e.exams.IssueReporterToken(ReporterTokenInput{ReporterID: "detector-7", Scopes: []string{"admin:all"}})
	assert.Equal(t, domain.CodeInvalidArgument, domain.KindOf(err))
}
