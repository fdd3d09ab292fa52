package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *MemoryStore) (*domain.ExamSession, *domain.Student) {
	t.Helper()
	es := &domain.ExamSession{
		ID: uuid.New(), Title: "Algorithms", JoinCode: "ALG101", Active: true, Published: true,
		StartTime: t0, EndTime: t0.Add(time.Hour), MaxWarnings: 3, Sensitivity: domain.SensitivityMedium,
	}
	st := &domain.Student{
		ID: uuid.New(), SessionID: es.ID, FullName: "Ada", Email: "ada@example.com",
		Status: domain.StudentRegistered, PairingCode: "ABCD1234", CreatedAt: t0,
	}
	require.NoError(t, s.WithTx(context.Background(), func(tx Tx) error {
		if err := tx.InsertSession(context.Background(), es); err != nil {
			return err
		}
		return tx.InsertStudent(context.Background(), st)
	}))
	return es, st
}

func incidentAt(st *domain.Student, vt domain.ViolationType, at time.Time) *domain.Incident {
	return &domain.Incident{
		ID: uuid.New(), StudentID: st.ID, SessionID: st.SessionID, Type: vt,
		Confidence: 0.8, Status: domain.IncidentPendingReview, DetectedAt: at, CreatedAt: at,
	}
}

func insert(t *testing.T, s *MemoryStore, inc *domain.Incident) bool {
	t.Helper()
	var ok bool
	require.NoError(t, s.WithTx(context.Background(), func(tx Tx) error {
		var err error
		ok, err = tx.InsertIncidentUnlessRecent(context.Background(), inc,
			inc.DetectedAt.Add(-10*time.Second), inc.DetectedAt.Add(10*time.Second))
		return err
	}))
	return ok
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	s := NewMemoryStore()
	_, st := seed(t, s)
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(tx Tx) error {
		_, err := tx.ApplyPenalty(context.Background(), st.ID, domain.Penalty{Score: 40000, Strikes: 1})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.FindStudent(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Score(0), got.SuspicionScore)
	assert.Equal(t, 0, got.StrikeCount)
}

func TestMemoryStore_ApplyPenaltyFloors(t *testing.T) {
	s := NewMemoryStore()
	_, st := seed(t, s)
	ctx := context.Background()

	var got *domain.Student
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		var err error
		if _, err = tx.ApplyPenalty(ctx, st.ID, domain.Penalty{Score: 40000, Strikes: 1}); err != nil {
			return err
		}
		got, err = tx.ApplyPenalty(ctx, st.ID, domain.Penalty{Score: -90000, Strikes: -3})
		return err
	}))
	assert.Equal(t, domain.Score(0), got.SuspicionScore)
	assert.Equal(t, 0, got.StrikeCount)
}

func TestMemoryStore_InsertIncidentUnlessRecent(t *testing.T) {
	s := NewMemoryStore()
	_, st := seed(t, s)

	assert.True(t, insert(t, s, incidentAt(st, domain.ViolationLookingAway, t0)))
	assert.False(t, insert(t, s, incidentAt(st, domain.ViolationLookingAway, t0.Add(3*time.Second))), "3s later suppressed")
	assert.False(t, insert(t, s, incidentAt(st, domain.ViolationLookingAway, t0.Add(-2*time.Second))), "late arrival suppressed")
	assert.True(t, insert(t, s, incidentAt(st, domain.ViolationTabSwitch, t0.Add(time.Second))), "other type accepted")
	assert.True(t, insert(t, s, incidentAt(st, domain.ViolationLookingAway, t0.Add(10*time.Second))), "exactly one horizon later accepted")

	all, err := s.ListIncidentsByStudent(context.Background(), st.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].DetectedAt.Equal(t0.Add(10*time.Second)), "newest first")
}

func TestMemoryStore_InsertStudentConflicts(t *testing.T) {
	s := NewMemoryStore()
	es, st := seed(t, s)
	ctx := context.Background()

	dupCode := &domain.Student{ID: uuid.New(), SessionID: es.ID, Email: "bob@example.com", PairingCode: st.PairingCode}
	err := s.WithTx(ctx, func(tx Tx) error { return tx.InsertStudent(ctx, dupCode) })
	assert.ErrorIs(t, err, ErrDuplicatePairingCode)

	dupEmail := &domain.Student{ID: uuid.New(), SessionID: es.ID, Email: st.Email, PairingCode: "ZZZZ9999"}
	err = s.WithTx(ctx, func(tx Tx) error { return tx.InsertStudent(ctx, dupEmail) })
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, domain.CodeConflict, domain.KindOf(err))
}

func TestMemoryStore_CloseSessionIfActive(t *testing.T) {
	s := NewMemoryStore()
	es, _ := seed(t, s)
	ctx := context.Background()

	expired, err := s.ListExpiredSessions(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)

	var first, second *domain.ExamSession
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		var err error
		first, err = tx.CloseSessionIfActive(ctx, es.ID, t0.Add(2*time.Hour))
		return err
	}))
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		var err error
		second, err = tx.CloseSessionIfActive(ctx, es.ID, t0.Add(3*time.Hour))
		return err
	}))
	require.NotNil(t, first)
	assert.False(t, first.Active)
	assert.Nil(t, second)

	expired, err = s.ListExpiredSessions(ctx, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestMemoryStore_MarkMobileConnectedOnce(t *testing.T) {
	s := NewMemoryStore()
	_, st := seed(t, s)
	ctx := context.Background()

	var first, second *domain.Student
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		var err error
		first, err = tx.MarkMobileConnected(ctx, st.ID)
		return err
	}))
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		var err error
		second, err = tx.MarkMobileConnected(ctx, st.ID)
		return err
	}))
	require.NotNil(t, first)
	assert.True(t, first.MobileConnected)
	assert.Nil(t, second)
}

func TestMemoryStore_TopOffenders(t *testing.T) {
	s := NewMemoryStore()
	es, ada := seed(t, s)
	ctx := context.Background()

	bob := &domain.Student{ID: uuid.New(), SessionID: es.ID, FullName: "Bob", Email: "bob@example.com", PairingCode: "BOB00001"}
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.InsertStudent(ctx, bob) }))

	insert(t, s, incidentAt(ada, domain.ViolationLookingAway, t0))
	dismissed := incidentAt(bob, domain.ViolationTabSwitch, t0)
	insert(t, s, dismissed)
	insert(t, s, incidentAt(bob, domain.ViolationCopyPaste, t0))
	insert(t, s, incidentAt(bob, domain.ViolationNoFace, t0))
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		_, err := tx.SetIncidentStatus(ctx, dismissed.ID, domain.IncidentFalsePositive, t0)
		return err
	}))

	top, err := s.TopOffenders(ctx, es.ID, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Bob", top[0].FullName)
	assert.Equal(t, 2, top[0].Incidents)
	assert.Equal(t, "Ada", top[1].FullName)

	counts, err := s.CountIncidentsByType(ctx, es.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.ViolationTabSwitch], "dismissed incidents still counted by type")
}

func TestMemoryStore_Outbox(t *testing.T) {
	s := NewMemoryStore()
	es, _ := seed(t, s)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		for i := 0; i < 3; i++ {
			if err := tx.InsertOutbox(ctx, domain.NewSessionEvent(domain.EventSessionPublished, es, t0)); err != nil {
				return err
			}
		}
		return nil
	}))

	batch, err := s.FetchUnpublished(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.NoError(t, s.MarkPublished(ctx, []int64{batch[0].Seq, batch[1].Seq}))

	rest, err := s.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestMemoryStore_Proctors(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p := &domain.Proctor{ID: uuid.New(), Email: "grace@example.edu", FullName: "Grace", Role: "proctor", CreatedAt: t0}

	require.NoError(t, s.WithTx(ctx, func(tx Tx) error { return tx.InsertProctor(ctx, p) }))

	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.InsertProctor(ctx, &domain.Proctor{ID: uuid.New(), Email: p.Email})
	})
	assert.ErrorIs(t, err, ErrDuplicateProctorEmail)

	got, err := s.FindProctorByEmail(ctx, "grace@example.edu")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)

	missing, err := s.FindProctor(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_ListSessionsByOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	owner := uuid.New()
	early := &domain.ExamSession{ID: uuid.New(), OwnerID: owner, JoinCode: "AAA111", StartTime: t0}
	late := &domain.ExamSession{ID: uuid.New(), OwnerID: owner, JoinCode: "BBB222", StartTime: t0.Add(24 * time.Hour)}
	other := &domain.ExamSession{ID: uuid.New(), OwnerID: uuid.New(), JoinCode: "CCC333", StartTime: t0}
	require.NoError(t, s.WithTx(ctx, func(tx Tx) error {
		for _, es := range []*domain.ExamSession{early, late, other} {
			if err := tx.InsertSession(ctx, es); err != nil {
				return err
			}
		}
		return nil
	}))

	got, err := s.ListSessionsByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, late.ID, got[0].ID)
	assert.Equal(t, early.ID, got[1].ID)
}
