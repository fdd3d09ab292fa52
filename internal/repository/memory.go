package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)

// MemoryStore is an in-process Store for tests and single-node demos.
// Transactions are serialized and work on a private copy of the state that
// replaces the live state only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	proctors  map[uuid.UUID]domain.Proctor
	sessions  map[uuid.UUID]domain.ExamSession
	students  map[uuid.UUID]domain.Student
	incidents map[uuid.UUID]domain.Incident
	seqs      map[uuid.UUID]int64 // incident insertion order
	outbox    []domain.OutboxRecord
	nextSeq   int64
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		proctors:  make(map[uuid.UUID]domain.Proctor),
		sessions:  make(map[uuid.UUID]domain.ExamSession),
		students:  make(map[uuid.UUID]domain.Student),
		incidents: make(map[uuid.UUID]domain.Incident),
		seqs:      make(map[uuid.UUID]int64),
	}}
}

func (m *memState) clone() *memState {
	c := &memState{
		proctors:  make(map[uuid.UUID]domain.Proctor, len(m.proctors)),
		sessions:  make(map[uuid.UUID]domain.ExamSession, len(m.sessions)),
		students:  make(map[uuid.UUID]domain.Student, len(m.students)),
		incidents: make(map[uuid.UUID]domain.Incident, len(m.incidents)),
		seqs:      make(map[uuid.UUID]int64, len(m.seqs)),
		outbox:    append([]domain.OutboxRecord(nil), m.outbox...),
		nextSeq:   m.nextSeq,
	}
	for k, v := range m.proctors {
		c.proctors[k] = v
	}
	for k, v := range m.sessions {
		c.sessions[k] = v
	}
	for k, v := range m.students {
		c.students[k] = v
	}
	for k, v := range m.incidents {
		c.incidents[k] = v
	}
	for k, v := range m.seqs {
		c.seqs[k] = v
	}
	return c
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// --- Directory ---

func (s *MemoryStore) FindStudent(_ context.Context, id uuid.UUID) (*domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.student(id), nil
}

func (s *MemoryStore) FindSession(_ context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.session(id), nil
}

func (s *MemoryStore) FindSessionByJoinCode(_ context.Context, code string) (*domain.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, es := range s.state.sessions {
		if es.JoinCode == code {
			out := es
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindProctor(_ context.Context, id uuid.UUID) (*domain.Proctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.proctors[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) FindProctorByEmail(_ context.Context, email string) (*domain.Proctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.state.proctors {
		if p.Email == email {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListSessionsByOwner(_ context.Context, ownerID uuid.UUID) ([]domain.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ExamSession
	for _, es := range s.state.sessions {
		if es.OwnerID == ownerID {
			out = append(out, es)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) ListStudentsBySession(_ context.Context, sessionID uuid.UUID) ([]domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Student
	for _, st := range s.state.students {
		if st.SessionID == sessionID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) ListActiveSessions(_ context.Context) ([]domain.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.filterSessions(func(es domain.ExamSession) bool { return es.Active }), nil
}

func (s *MemoryStore) ListExpiredSessions(_ context.Context, now time.Time) ([]domain.ExamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.filterSessions(func(es domain.ExamSession) bool {
		return es.Active && es.EndTime.Before(now)
	}), nil
}

// --- IncidentLog ---

func (s *MemoryStore) FindIncident(_ context.Context, id uuid.UUID) (*domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.incident(id), nil
}

func (s *MemoryStore) ListIncidentsBySession(_ context.Context, sessionID uuid.UUID) ([]domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.filterIncidents(func(inc domain.Incident) bool { return inc.SessionID == sessionID }, true), nil
}

func (s *MemoryStore) ListIncidentsByStudent(_ context.Context, studentID uuid.UUID) ([]domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.filterIncidents(func(inc domain.Incident) bool { return inc.StudentID == studentID }, true), nil
}

func (s *MemoryStore) ListPendingIncidents(_ context.Context, sessionID uuid.UUID) ([]domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.filterIncidents(func(inc domain.Incident) bool {
		return inc.SessionID == sessionID && inc.Status == domain.IncidentPendingReview
	}, false), nil
}

func (s *MemoryStore) CountIncidentsByType(_ context.Context, sessionID uuid.UUID) (map[domain.ViolationType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[domain.ViolationType]int)
	for _, inc := range s.state.incidents {
		if inc.SessionID == sessionID {
			counts[inc.Type]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) TopOffenders(_ context.Context, sessionID uuid.UUID, limit int) ([]domain.OffenderCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStudent := make(map[uuid.UUID]int)
	for _, inc := range s.state.incidents {
		if inc.SessionID == sessionID && inc.Status != domain.IncidentFalsePositive {
			byStudent[inc.StudentID]++
		}
	}
	out := make([]domain.OffenderCount, 0, len(byStudent))
	for id, n := range byStudent {
		out = append(out, domain.OffenderCount{StudentID: id, FullName: s.state.students[id].FullName, Incidents: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Incidents != out[j].Incidents {
			return out[i].Incidents > out[j].Incidents
		}
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].StudentID.String() < out[j].StudentID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- OutboxStore ---

func (s *MemoryStore) FetchUnpublished(_ context.Context, limit int) ([]domain.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.state.outbox)
	if limit > 0 && n > limit {
		n = limit
	}
	return append([]domain.OutboxRecord(nil), s.state.outbox[:n]...), nil
}

func (s *MemoryStore) MarkPublished(_ context.Context, seqs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := make(map[int64]bool, len(seqs))
	for _, seq := range seqs {
		done[seq] = true
	}
	kept := s.state.outbox[:0:0]
	for _, r := range s.state.outbox {
		if !done[r.Seq] {
			kept = append(kept, r)
		}
	}
	s.state.outbox = kept
	return nil
}

// --- state helpers ---

func (m *memState) student(id uuid.UUID) *domain.Student {
	st, ok := m.students[id]
	if !ok {
		return nil
	}
	return &st
}

func (m *memState) session(id uuid.UUID) *domain.ExamSession {
	es, ok := m.sessions[id]
	if !ok {
		return nil
	}
	return &es
}

func (m *memState) incident(id uuid.UUID) *domain.Incident {
	inc, ok := m.incidents[id]
	if !ok {
		return nil
	}
	return &inc
}

func (m *memState) filterSessions(keep func(domain.ExamSession) bool) []domain.ExamSession {
	var out []domain.ExamSession
	for _, es := range m.sessions {
		if keep(es) {
			out = append(out, es)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndTime.Equal(out[j].EndTime) {
			return out[i].EndTime.Before(out[j].EndTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// filterIncidents orders by detected_at, ties broken by insertion order.
func (m *memState) filterIncidents(keep func(domain.Incident) bool, desc bool) []domain.Incident {
	var out []domain.Incident
	for _, inc := range m.incidents {
		if keep(inc) {
			out = append(out, inc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.DetectedAt.Equal(b.DetectedAt) {
			return a.DetectedAt.Before(b.DetectedAt) != desc
		}
		return (m.seqs[a.ID] < m.seqs[b.ID]) != desc
	})
	return out
}

// memTx mutates a private copy of the state.
type memTx struct {
	st *memState
}

func (t *memTx) LockStudent(_ context.Context, id uuid.UUID) (*domain.Student, error) {
	return t.st.student(id), nil
}

func (t *memTx) LockStudentByPairingCode(_ context.Context, code string) (*domain.Student, error) {
	for _, st := range t.st.students {
		if st.PairingCode == code {
			out := st
			return &out, nil
		}
	}
	return nil, nil
}

func (t *memTx) FindSession(_ context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	return t.st.session(id), nil
}

func (t *memTx) LockSession(_ context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	return t.st.session(id), nil
}

func (t *memTx) InsertSession(_ context.Context, es *domain.ExamSession) error {
	if _, ok := t.st.sessions[es.ID]; ok {
		return domain.ErrConflict("exam session already exists")
	}
	for _, other := range t.st.sessions {
		if other.JoinCode == es.JoinCode {
			return ErrDuplicateJoinCode
		}
	}
	t.st.sessions[es.ID] = *es
	return nil
}

func (t *memTx) SetSessionPublished(_ context.Context, id uuid.UUID) (*domain.ExamSession, error) {
	es, ok := t.st.sessions[id]
	if !ok {
		return nil, nil
	}
	es.Published = true
	es.UpdatedAt = time.Now()
	t.st.sessions[id] = es
	return &es, nil
}

func (t *memTx) CloseSessionIfActive(_ context.Context, id uuid.UUID, at time.Time) (*domain.ExamSession, error) {
	es, ok := t.st.sessions[id]
	if !ok || !es.Active {
		return nil, nil
	}
	es.Active = false
	es.ClosedAt = &at
	es.UpdatedAt = time.Now()
	t.st.sessions[id] = es
	return &es, nil
}

func (t *memTx) InsertProctor(_ context.Context, p *domain.Proctor) error {
	if _, ok := t.st.proctors[p.ID]; ok {
		return domain.ErrConflict("proctor already exists")
	}
	for _, other := range t.st.proctors {
		if other.Email == p.Email {
			return ErrDuplicateProctorEmail
		}
	}
	t.st.proctors[p.ID] = *p
	return nil
}

func (t *memTx) InsertStudent(_ context.Context, st *domain.Student) error {
	if _, ok := t.st.students[st.ID]; ok {
		return domain.ErrConflict("student already exists")
	}
	for _, other := range t.st.students {
		if other.PairingCode == st.PairingCode {
			return ErrDuplicatePairingCode
		}
		if other.SessionID == st.SessionID && other.Email == st.Email {
			return ErrDuplicateEmail
		}
	}
	t.st.students[st.ID] = *st
	return nil
}

func (t *memTx) ApplyPenalty(_ context.Context, studentID uuid.UUID, p domain.Penalty) (*domain.Student, error) {
	return t.updateStudent(studentID, func(st *domain.Student) bool {
		st.SuspicionScore, st.StrikeCount = st.WithPenalty(p)
		return true
	})
}

func (t *memTx) SetStudentStatus(_ context.Context, id uuid.UUID, status domain.StudentStatus, at time.Time) (*domain.Student, error) {
	return t.updateStudent(id, func(st *domain.Student) bool {
		st.Status = status
		st.LastActivityAt = &at
		return true
	})
}

func (t *memTx) BanStudent(_ context.Context, id uuid.UUID, reason string, at time.Time) (*domain.Student, error) {
	return t.updateStudent(id, func(st *domain.Student) bool {
		st.Status = domain.StudentTerminated
		st.Banned = true
		st.BanReason = reason
		st.LastActivityAt = &at
		return true
	})
}

func (t *memTx) MarkMobileConnected(_ context.Context, id uuid.UUID) (*domain.Student, error) {
	return t.updateStudent(id, func(st *domain.Student) bool {
		if st.MobileConnected {
			return false
		}
		st.MobileConnected = true
		return true
	})
}

func (t *memTx) TouchActivity(_ context.Context, id uuid.UUID, at time.Time) (*domain.Student, error) {
	return t.updateStudent(id, func(st *domain.Student) bool {
		if st.LastActivityAt == nil || at.After(*st.LastActivityAt) {
			st.LastActivityAt = &at
		}
		return true
	})
}

// updateStudent applies fn and returns the new row, or nil when the row is
// missing or fn reports that its condition did not match.
func (t *memTx) updateStudent(id uuid.UUID, fn func(*domain.Student) bool) (*domain.Student, error) {
	st, ok := t.st.students[id]
	if !ok || !fn(&st) {
		return nil, nil
	}
	st.UpdatedAt = time.Now()
	t.st.students[id] = st
	return &st, nil
}

func (t *memTx) InsertIncidentUnlessRecent(_ context.Context, inc *domain.Incident, from, to time.Time) (bool, error) {
	for _, other := range t.st.incidents {
		if other.StudentID == inc.StudentID && other.Type == inc.Type &&
			other.DetectedAt.After(from) && other.DetectedAt.Before(to) {
			return false, nil
		}
	}
	t.st.nextSeq++
	t.st.incidents[inc.ID] = *inc
	t.st.seqs[inc.ID] = t.st.nextSeq
	return true, nil
}

func (t *memTx) LockIncident(_ context.Context, id uuid.UUID) (*domain.Incident, error) {
	return t.st.incident(id), nil
}

func (t *memTx) SetIncidentStatus(_ context.Context, id uuid.UUID, status domain.IncidentStatus, at time.Time) (*domain.Incident, error) {
	inc, ok := t.st.incidents[id]
	if !ok {
		return nil, nil
	}
	inc.Status = status
	inc.ReviewedAt = &at
	t.st.incidents[id] = inc
	return &inc, nil
}

func (t *memTx) InsertOutbox(_ context.Context, draft domain.OutboxDraft) error {
	t.st.nextSeq++
	t.st.outbox = append(t.st.outbox, domain.OutboxRecord{Seq: t.st.nextSeq, OutboxDraft: draft})
	return nil
}
