//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
)

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks that the response body contains the expected error code.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, errResp.Code, errResp.Message)
	}
}

// AssertRisk reads the student row and checks strikes and the suspicion
// score, given as a decimal string such as "5.0000".
func AssertRisk(t *testing.T, env *TestEnv, studentID uuid.UUID, strikes int, score string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var gotStrikes int
	var gotScore string
	err := env.Pool.QueryRow(ctx,
		"SELECT strike_count, suspicion_score::text FROM students WHERE id = $1",
		studentID).Scan(&gotStrikes, &gotScore)
	if err != nil {
		t.Fatalf("AssertRisk: query: %v", err)
	}
	if gotStrikes != strikes {
		t.Errorf("strike_count: expected %d, got %d", strikes, gotStrikes)
	}
	if gotScore != score {
		t.Errorf("suspicion_score: expected %s, got %s", score, gotScore)
	}
}

// CountIncidents returns the number of incidents recorded for a student.
func CountIncidents(t *testing.T, env *TestEnv, studentID uuid.UUID) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM incidents WHERE student_id = $1", studentID).Scan(&count)
	if err != nil {
		t.Fatalf("CountIncidents: %v", err)
	}
	return count
}

// CountOutbox returns the number of pending outbox rows of one event type.
func CountOutbox(t *testing.T, env *TestEnv, eventType string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM event_outbox WHERE "eventType" = $1`, eventType).Scan(&count)
	if err != nil {
		t.Fatalf("CountOutbox: %v", err)
	}
	return count
}
