package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
		errMsg  string
	}{
		{"valid email", "user@example.com", false, ""},
		{"valid email with dots", "first.last@example.co.uk", false, ""},
		{"valid email with plus", "user+tag@example.com", false, ""},
		{"empty string", "", true, "email is required"},
		{"no at sign", "userexample.com", true, "invalid email format"},
		{"no domain", "user@", true, "invalid email format"},
		{"double at", "user@@example.com", true, "invalid email format"},
		{"spaces", "user @example.com", true, "invalid email format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ada@example.com", NormalizeEmail("  Ada@Example.COM "))
}

func TestValidateJoinCode(t *testing.T) {
	require.NoError(t, ValidateJoinCode("CS101X"))
	require.Error(t, ValidateJoinCode("cs101"))
	require.Error(t, ValidateJoinCode("AB"))
	require.Error(t, ValidateJoinCode(""))
}

func TestValidateConfidence(t *testing.T) {
	tests := []struct {
		name    string
		c       float64
		wantErr bool
	}{
		{"zero", 0, false},
		{"one", 1, false},
		{"mid", 0.42, false},
		{"negative", -0.01, true},
		{"above one", 1.01, true},
		{"nan", math.NaN(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfidence(tt.c)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// --- Enum Tests ---

func TestParseViolationType(t *testing.T) {
	t.Run("known", func(t *testing.T) {
		vt, err := ParseViolationType("MOBILE_PHONE_DETECTED")
		require.NoError(t, err)
		assert.Equal(t, ViolationMobilePhone, vt)
		assert.True(t, vt.Known())
	})

	t.Run("well formed but unknown", func(t *testing.T) {
		vt, err := ParseViolationType("SMARTWATCH_DETECTED")
		require.NoError(t, err)
		assert.False(t, vt.Known())
	})

	for _, bad := range []string{"", "tab_switch", "TAB SWITCH", "X"} {
		t.Run("malformed "+bad, func(t *testing.T) {
			_, err := ParseViolationType(bad)
			require.Error(t, err)
			assert.Equal(t, CodeInvalidArgument, KindOf(err))
		})
	}
}

func TestParseIncidentStatus(t *testing.T) {
	st, err := ParseIncidentStatus("FALSE_POSITIVE")
	require.NoError(t, err)
	assert.Equal(t, IncidentFalsePositive, st)

	_, err = ParseIncidentStatus("DISMISSED")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidArgument, KindOf(err))
}

func TestStudentStatus_Valid(t *testing.T) {
	assert.True(t, StudentTerminated.Valid())
	assert.False(t, StudentStatus("PAUSED").Valid())
}

// --- Score Tests ---

func TestScoreFromPoints(t *testing.T) {
	tests := []struct {
		points float64
		want   Score
	}{
		{18, 180000},
		{4, 40000},
		{2.5, 25000},
		{0.25, 2500},
		{0, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.points), func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreFromPoints(tt.points))
		})
	}
}

func TestScore_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		S Score `json:"s"`
	}{S: 180000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":18}`, string(data))

	var back struct {
		S Score `json:"s"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"s":12.5}`), &back))
	assert.Equal(t, Score(125000), back.S)
}

func TestPenalty_Inverse(t *testing.T) {
	p := Penalty{Score: 180000, Strikes: 1}
	inv := p.Inverse()
	assert.Equal(t, Penalty{Score: -180000, Strikes: -1}, inv)
	assert.False(t, p.IsZero())
	assert.True(t, Penalty{}.IsZero())
}

func TestStudent_WithPenalty(t *testing.T) {
	t.Run("apply", func(t *testing.T) {
		s := Student{SuspicionScore: 10000, StrikeCount: 1}
		score, strikes := s.WithPenalty(Penalty{Score: 40000, Strikes: 1})
		assert.Equal(t, Score(50000), score)
		assert.Equal(t, 2, strikes)
	})

	t.Run("revert floors at zero", func(t *testing.T) {
		s := Student{SuspicionScore: 10000, StrikeCount: 0}
		score, strikes := s.WithPenalty(Penalty{Score: -40000, Strikes: -1})
		assert.Equal(t, Score(0), score)
		assert.Equal(t, 0, strikes)
	})
}

// --- AppError Tests ---

func TestAppError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := ErrNotFound("student", "abc-123")
		assert.Equal(t, "NOT_FOUND: student abc-123 not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := ErrInternal("database error", cause)
		assert.Contains(t, err.Error(), "INTERNAL_ERROR")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ErrInternal("wrapped", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorFactories(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"ErrNotFound", ErrNotFound("student", "123"), "NOT_FOUND", 404},
		{"ErrPreconditionFailed", ErrPreconditionFailed("exam closed"), "PRECONDITION_FAILED", 412},
		{"ErrInvalidArgument", ErrInvalidArgument("bad input"), "INVALID_ARGUMENT", 400},
		{"ErrConflict", ErrConflict("already exists"), "CONFLICT", 409},
		{"ErrUnauthorized", ErrUnauthorized("no token"), "UNAUTHORIZED", 401},
		{"ErrForbidden", ErrForbidden("not allowed"), "FORBIDDEN", 403},
		{"ErrInternal", ErrInternal("oops", nil), "INTERNAL_ERROR", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.Status)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("record: %w", ErrNotFound("student", "x"))
	assert.Equal(t, CodeNotFound, KindOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.Equal(t, CodeInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "", KindOf(nil))
}

// --- Event Factory Tests ---

func TestNewIncidentRecordedEvent(t *testing.T) {
	studentID := uuid.New()
	inc := &Incident{
		ID:         uuid.New(),
		StudentID:  studentID,
		SessionID:  uuid.New(),
		Type:       ViolationMobilePhone,
		Confidence: 0.9,
		DetectedAt: time.Now(),
		CreatedAt:  time.Now(),
	}
	st := &Student{ID: studentID, SuspicionScore: 180000, StrikeCount: 1}

	event := NewIncidentRecordedEvent(inc, Penalty{Score: 180000, Strikes: 1}, st)

	assert.NotEqual(t, uuid.Nil, event.EventID)
	assert.Equal(t, AggregateIncident, event.AggregateType)
	assert.Equal(t, inc.ID.String(), event.AggregateID)
	assert.Equal(t, EventIncidentRecorded, event.EventType)
	assert.Equal(t, studentID.String(), event.PartitionKey)
	assert.False(t, event.OccurredAt.IsZero())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, float64(18), payload["suspicion_score"])
	assert.Equal(t, float64(18), payload["score_delta"])
	assert.Equal(t, "MOBILE_PHONE_DETECTED", payload["type"])
}

func TestNewStudentStatusEvent(t *testing.T) {
	st := &Student{ID: uuid.New(), SessionID: uuid.New(), Status: StudentTerminated}

	t.Run("with reason", func(t *testing.T) {
		event := NewStudentStatusEvent(EventStudentTerminated, st, "phone on desk", time.Now())
		var payload map[string]string
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		assert.Equal(t, "phone on desk", payload["reason"])
		assert.Equal(t, "TERMINATED", payload["status"])
	})

	t.Run("without reason", func(t *testing.T) {
		event := NewStudentStatusEvent(EventStudentSubmitted, st, "", time.Now())
		var payload map[string]string
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		_, ok := payload["reason"]
		assert.False(t, ok)
	})
}

func TestNewSessionEvent(t *testing.T) {
	s := &ExamSession{ID: uuid.New(), JoinCode: "CS101X"}
	event := NewSessionEvent(EventSessionClosed, s, time.Now())
	assert.Equal(t, AggregateSession, event.AggregateType)
	assert.Equal(t, s.ID.String(), event.PartitionKey)
	assert.Equal(t, EventSessionClosed, event.EventType)
}
