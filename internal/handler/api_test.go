package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/guard"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/projection"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/referee"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/service"
)

const (
	testProctorHeader = "X-Test-Proctor"
	testRoleHeader    = "X-Test-Role"
)

type api struct {
	engine  *ledger.Engine
	exams   *service.ExamService
	owner   uuid.UUID
	session *domain.ExamSession
	router  http.Handler
}

// asProctor stands in for token auth: the subject and role come from test headers.
func asProctor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := r.Header.Get(testProctorHeader)
		if sub == "" {
			next.ServeHTTP(w, r)
			return
		}
		role := r.Header.Get(testRoleHeader)
		if role == "" {
			role = auth.RoleProctor
		}
		claims := &auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
			Realm:            auth.RealmProctor,
			Role:             role,
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := noopLogger()
	store := repository.NewMemoryStore()
	engine := ledger.NewEngine(store, guard.NewDedupWindow(10*time.Second), nil, logger)
	jwtMgr := auth.NewJWTManager("handler-test-secret", time.Hour, time.Hour)
	exams := service.NewExamService(engine, jwtMgr, auth.NewReporterAuthManager("handler-reporter-secret"), projection.NewInMemoryStore(), logger)

	owner := uuid.New()
	now := time.Now().UTC()
	es, err := engine.CreateSession(context.Background(), ledger.CreateSessionParams{
		OwnerID: owner, Title: "Thermodynamics Final", StartTime: now.Add(-time.Hour), EndTime: now.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	es, err = engine.PublishSession(context.Background(), es.ID)
	require.NoError(t, err)

	proctor := NewProctorHandler(engine, MustReportValidator(), logger)
	students := NewStudentHandler(exams, engine, logger)
	examH := NewExamHandler(exams, engine, logger)
	incidents := NewIncidentHandler(exams, engine, logger)
	live := NewLiveHandler(infra.NewWSHub([]string{"*"}, logger), exams, referee.New(engine, 3, logger), logger)

	r := chi.NewRouter()
	r.Use(asProctor)
	r.Get("/api/proctor/health", proctor.Health)
	r.Post("/api/proctor/report", proctor.Report)
	r.Post("/api/proctor/mobile/handshake", proctor.Handshake)
	r.Post("/api/students/join", students.Join)
	r.Get("/api/students/{studentID}/status", students.Status)
	r.Post("/api/students/{studentID}/start", students.Start)
	r.Post("/api/students/{studentID}/terminate", students.Terminate)
	r.Get("/api/students/{studentID}/incidents", students.Incidents)
	r.Get("/api/students/{studentID}/reconcile", students.Reconcile)
	r.Post("/api/exams", examH.Create)
	r.Get("/api/exams", examH.ListMine)
	r.Get("/api/exams/{sessionID}", examH.Get)
	r.Post("/api/exams/{sessionID}/close", examH.Close)
	r.Get("/api/exams/{sessionID}/summary", examH.Summary)
	r.Get("/api/exams/{sessionID}/students", examH.Roster)
	r.Patch("/api/incidents/{incidentID}", incidents.Adjudicate)
	r.Get("/ws/detector", live.Detector)

	return &api{engine: engine, exams: exams, owner: owner, session: es, router: r}
}

func (a *api) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		r.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)
	return w
}

func (a *api) asOwner() []string { return []string{testProctorHeader, a.owner.String()} }

func (a *api) join(t *testing.T, email string) *service.JoinResult {
	t.Helper()
	res, err := a.exams.Join(context.Background(), ledger.JoinParams{
		JoinCode: a.session.JoinCode, FullName: "Test Student", Email: email,
	})
	require.NoError(t, err)
	return res
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestReport_LoggedThenThrottled(t *testing.T) {
	a := newAPI(t)
	st := a.join(t, "ada@example.edu")

	report := map[string]any{
		"studentId":       st.Student.ID,
		"cheatType":       "MOBILE_PHONE_DETECTED",
		"description":     "phone in frame",
		"confidenceScore": 0.9,
		"snapshotUrl":     "s3://evidence/1.jpg",
	}
	w := a.do(t, http.MethodPost, "/api/proctor/report", report)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeMap(t, w)
	assert.Equal(t, "logged", body["status"])
	assert.NotEmpty(t, body["incidentId"])
	assert.Greater(t, body["newSuspicionScore"], 0.0)
	assert.EqualValues(t, 1, body["strikeCount"])

	w = a.do(t, http.MethodPost, "/api/proctor/report", report)
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeMap(t, w)
	assert.Equal(t, "throttled", body["status"])
	assert.Equal(t, throttledMessage, body["message"])
	assert.NotContains(t, body, "incidentId")
}

func TestReport_SchemaRejections(t *testing.T) {
	a := newAPI(t)
	st := a.join(t, "bob@example.edu")
	id := st.Student.ID.String()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{nope`},
		{"missing cheat type", `{"studentId":"` + id + `"}`},
		{"bad student id", `{"studentId":"123","cheatType":"TAB_SWITCH"}`},
		{"confidence above one", `{"studentId":"` + id + `","cheatType":"TAB_SWITCH","confidenceScore":1.5}`},
		{"unknown field", `{"studentId":"` + id + `","cheatType":"TAB_SWITCH","extra":true}`},
		{"malformed type", `{"studentId":"` + id + `","cheatType":"tab switch"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := a.do(t, http.MethodPost, "/api/proctor/report", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, domain.CodeInvalidArgument, decodeMap(t, w)["code"])
		})
	}
}

func TestReport_UnknownStudentAndClosedSession(t *testing.T) {
	a := newAPI(t)
	w := a.do(t, http.MethodPost, "/api/proctor/report", map[string]any{
		"studentId": uuid.New(), "cheatType": "TAB_SWITCH",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	st := a.join(t, "cy@example.edu")
	_, err := a.engine.CloseSession(context.Background(), a.session.ID)
	require.NoError(t, err)
	w = a.do(t, http.MethodPost, "/api/proctor/report", map[string]any{
		"studentId": st.Student.ID, "cheatType": "TAB_SWITCH",
	})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestHandshake(t *testing.T) {
	a := newAPI(t)
	st := a.join(t, "dee@example.edu")

	w := a.do(t, http.MethodPost, "/api/proctor/mobile/handshake", map[string]string{"pairingCode": strings.ToLower(st.PairingCode)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeMap(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Mobile device paired successfully", body["message"])

	w = a.do(t, http.MethodPost, "/api/proctor/mobile/handshake", map[string]string{"pairingCode": st.PairingCode})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeMap(t, w)["alreadyConnected"])

	w = a.do(t, http.MethodPost, "/api/proctor/mobile/handshake", map[string]string{"pairingCode": "ZZZZZZZZ"})
	require.Equal(t, http.StatusNotFound, w.Code)
	body = decodeMap(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Invalid pairing code", body["message"])

	w = a.do(t, http.MethodPost, "/api/proctor/mobile/handshake", map[string]string{"pairingCode": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	w := a.do(t, http.MethodGet, "/api/proctor/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Ready to receive evidence")
}

func TestJoin_UsesForwardedIP(t *testing.T) {
	a := newAPI(t)
	w := a.do(t, http.MethodPost, "/api/students/join", map[string]string{
		"fullName": "Eve Student",
		"email":    "eve@example.edu",
		"examCode": strings.ToLower(a.session.JoinCode),
	}, "X-Forwarded-For", "203.0.113.7")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res struct {
		Token       string         `json:"token"`
		PairingCode string         `json:"pairingCode"`
		Student     domain.Student `json:"student"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Token)
	assert.Len(t, res.PairingCode, 8)
	assert.Equal(t, "203.0.113.7", res.Student.IPAddress)
	assert.Equal(t, domain.StudentRegistered, res.Student.Status)

	w = a.do(t, http.MethodPost, "/api/students/join", map[string]string{
		"fullName": "Eve", "email": "eve2@example.edu", "examCode": "QQQQQQ",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentLifecycle(t *testing.T) {
	a := newAPI(t)
	st := a.join(t, "fay@example.edu")
	base := "/api/students/" + st.Student.ID.String()

	w := a.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(domain.StudentInProgress), decodeMap(t, w)["status"])

	w = a.do(t, http.MethodGet, base+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "low", decodeMap(t, w)["riskLevel"])

	w = a.do(t, http.MethodPost, base+"/terminate", map[string]string{"reason": "impersonation"}, testProctorHeader, uuid.NewString())
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPost, base+"/terminate", map[string]string{"reason": "impersonation"}, a.asOwner()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeMap(t, w)
	assert.Equal(t, string(domain.StudentTerminated), body["status"])
	assert.Equal(t, true, body["banned"])

	w = a.do(t, http.MethodPost, base+"/start", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = a.do(t, http.MethodGet, "/api/students/not-a-uuid/status", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExams_OwnershipAndReview(t *testing.T) {
	a := newAPI(t)
	st := a.join(t, "gus@example.edu")

	res, err := a.engine.Record(context.Background(), ledger.ReportParams{
		StudentID: st.Student.ID, Type: domain.ViolationTabSwitch, Confidence: 1,
	})
	require.NoError(t, err)
	incidentPath := "/api/incidents/" + res.Incident.ID.String()
	examPath := "/api/exams/" + a.session.ID.String()

	stranger := []string{testProctorHeader, uuid.NewString()}
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, examPath, nil, stranger...).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPatch, incidentPath, map[string]string{"status": "VERIFIED"}, stranger...).Code)

	admin := []string{testProctorHeader, uuid.NewString(), testRoleHeader, auth.RoleAdmin}
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, examPath, nil, admin...).Code)

	w := a.do(t, http.MethodPatch, incidentPath, map[string]string{"status": "false_positive"}, a.asOwner()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeMap(t, w)
	assert.Equal(t, "revert", body["effect"])
	assert.Equal(t, true, body["changed"])
	student := body["student"].(map[string]any)
	assert.EqualValues(t, 0, student["suspicionScore"])
	assert.EqualValues(t, 0, student["strikeCount"])

	w = a.do(t, http.MethodPatch, incidentPath, map[string]string{"status": "MAYBE"}, a.asOwner()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/students/"+st.Student.ID.String()+"/reconcile", nil, a.asOwner()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeMap(t, w)["allPassed"])

	w = a.do(t, http.MethodGet, examPath+"/summary", nil, a.asOwner()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeMap(t, w)["totalIncidents"])

	w = a.do(t, http.MethodGet, examPath+"/students", nil, a.asOwner()...)
	require.Equal(t, http.StatusOK, w.Code)
	var roster []domain.StudentStatusView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roster))
	require.Len(t, roster, 1)
	assert.Equal(t, st.Student.ID, roster[0].StudentID)
}

func TestExams_CreateAndList(t *testing.T) {
	a := newAPI(t)
	now := time.Now().UTC()

	w := a.do(t, http.MethodPost, "/api/exams", map[string]any{
		"title":                  "Discrete Math Quiz",
		"startTime":              now,
		"endTime":                now.Add(time.Hour),
		"sensitivity":            "high",
		"isMobileSentinelActive": true,
	}, a.asOwner()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var es domain.ExamSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &es))
	assert.Equal(t, a.owner, es.OwnerID)
	assert.Equal(t, domain.SensitivityHigh, es.Sensitivity)
	assert.True(t, es.MobileSentinelRequired)
	assert.False(t, es.Published)

	w = a.do(t, http.MethodPost, "/api/exams", map[string]any{
		"title": "Backwards", "startTime": now, "endTime": now.Add(-time.Hour),
	}, a.asOwner()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/exams", nil, a.asOwner()...)
	require.Equal(t, http.StatusOK, w.Code)
	var mine []domain.ExamSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mine))
	assert.Len(t, mine, 2)
}

func TestDetectorStream_FiresAtThreshold(t *testing.T) {
	a := newAPI(t)
	st := a.join(t, "hal@example.edu")

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/detector", nil)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(referee.Frame{StudentID: st.Student.ID, Status: "PHONE_DETECTED", Confidence: 0.8}))
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ack frameAck
	require.NoError(t, conn.ReadJSON(&ack))
	assert.True(t, ack.Fired)
	assert.False(t, ack.Suppressed)
	assert.NotEmpty(t, ack.IncidentID)
	assert.Equal(t, st.Student.ID.String(), ack.StudentID)

	incidents, err := a.engine.ListForStudent(context.Background(), st.Student.ID)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, domain.ViolationMobilePhone, incidents[0].Type)
}
