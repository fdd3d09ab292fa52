//go:build integration

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
)

// JoinedStudent is a student admitted through the join endpoint.
type JoinedStudent struct {
	ID          uuid.UUID
	Token       string
	PairingCode string
}

// RegisterProctor creates a proctor account and returns its token and ID.
func (env *TestEnv) RegisterProctor(email, password string) (token string, proctorID uuid.UUID) {
	env.t.Helper()
	resp := env.POST("/api/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"fullName": "Integration Proctor",
	}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("RegisterProctor: expected 201, got %d", resp.StatusCode)
	}

	var result struct {
		Token     string    `json:"token"`
		ProctorID uuid.UUID `json:"proctorId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("RegisterProctor: decode: %v", err)
	}
	return result.Token, result.ProctorID
}

// LoginProctor authenticates an existing proctor and returns the token.
func (env *TestEnv) LoginProctor(email, password string) string {
	env.t.Helper()
	resp := env.POST("/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("LoginProctor: expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("LoginProctor: decode: %v", err)
	}
	return result.Token
}

// CreateExam schedules an exam running from a minute ago for the given
// duration and publishes it. It returns the session ID and join code.
func (env *TestEnv) CreateExam(proctorToken, title string, duration time.Duration, maxWarnings int) (uuid.UUID, string) {
	env.t.Helper()
	now := time.Now().UTC()
	body := map[string]any{
		"title":     title,
		"startTime": now.Add(-time.Minute),
		"endTime":   now.Add(duration),
	}
	if maxWarnings > 0 {
		body["maxWarnings"] = maxWarnings
	}
	resp := env.POST("/api/exams", body, Bearer(proctorToken))
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		env.t.Fatalf("CreateExam: expected 201, got %d", resp.StatusCode)
	}
	var exam struct {
		ID       uuid.UUID `json:"id"`
		JoinCode string    `json:"joinCode"`
	}
	DecodeJSON(env.t, resp, &exam)

	pub := env.POST("/api/exams/"+exam.ID.String()+"/publish", nil, Bearer(proctorToken))
	pub.Body.Close()
	if pub.StatusCode != http.StatusOK {
		env.t.Fatalf("CreateExam: publish expected 200, got %d", pub.StatusCode)
	}
	return exam.ID, exam.JoinCode
}

// JoinAndStart admits a student with the join code and starts the exam.
func (env *TestEnv) JoinAndStart(joinCode, fullName, email string) JoinedStudent {
	env.t.Helper()
	resp := env.POST("/api/students/join", map[string]string{
		"fullName": fullName,
		"email":    email,
		"examCode": joinCode,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		env.t.Fatalf("JoinAndStart: expected 201, got %d", resp.StatusCode)
	}
	var joined struct {
		Token   string `json:"token"`
		Student struct {
			ID uuid.UUID `json:"id"`
		} `json:"student"`
		PairingCode string `json:"pairingCode"`
	}
	DecodeJSON(env.t, resp, &joined)

	start := env.POST("/api/students/"+joined.Student.ID.String()+"/start", nil, Bearer(joined.Token))
	start.Body.Close()
	if start.StatusCode != http.StatusOK {
		env.t.Fatalf("JoinAndStart: start expected 200, got %d", start.StatusCode)
	}
	return JoinedStudent{ID: joined.Student.ID, Token: joined.Token, PairingCode: joined.PairingCode}
}

// ReporterToken mints a reporter credential directly; the HTTP path is
// covered by the router tests.
func (env *TestEnv) ReporterToken(scopes ...string) string {
	env.t.Helper()
	token, err := env.Reporters.GenerateReporterToken("integration-detector", scopes, time.Hour)
	if err != nil {
		env.t.Fatalf("ReporterToken: %v", err)
	}
	return token
}

// Report posts a detector report with the given reporter token. The
// timestamp is the detector's own reading; the server clock decides dedup.
func (env *TestEnv) Report(reporterToken string, studentID uuid.UUID, cheatType string, observedAt time.Time) *http.Response {
	env.t.Helper()
	return env.POST("/api/proctor/report", map[string]any{
		"studentId":       studentID,
		"cheatType":       cheatType,
		"confidenceScore": 0.9,
		"detectedAt":      observedAt,
	}, map[string]string{auth.ReporterHeader: reporterToken})
}

// Bearer builds an Authorization header map.
func Bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// GET performs a GET request with optional headers.
func (env *TestEnv) GET(path string, headers map[string]string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, headers)
}

// POST performs a JSON POST request with optional headers.
func (env *TestEnv) POST(path string, body any, headers map[string]string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, headers)
}

// PATCH performs a JSON PATCH request with optional headers.
func (env *TestEnv) PATCH(path string, body any, headers map[string]string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPatch, path, body, headers)
}

func (env *TestEnv) do(method, path string, body any, headers map[string]string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}
