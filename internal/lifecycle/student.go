// Package lifecycle holds the pure state machines for students, incidents
// and exam sessions. Nothing here touches storage.
package lifecycle

import (
	"fmt"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

// studentEdges lists the legal non-trivial student transitions.
// TERMINATED is reachable from every state and handled separately.
var studentEdges = map[domain.StudentStatus][]domain.StudentStatus{
	domain.StudentRegistered: {domain.StudentInProgress, domain.StudentSubmitted},
	domain.StudentInProgress: {domain.StudentSubmitted},
}

// StudentTransition validates moving a student from one status to another.
// changed is false when the move is a same-state no-op.
func StudentTransition(from, to domain.StudentStatus) (changed bool, err error) {
	if !to.Valid() {
		return false, domain.ErrInvalidArgument(fmt.Sprintf("unknown student status: %s", to))
	}
	if from == to {
		return false, nil
	}
	if to == domain.StudentTerminated {
		return true, nil
	}
	for _, next := range studentEdges[from] {
		if next == to {
			return true, nil
		}
	}
	return false, domain.ErrPreconditionFailed(fmt.Sprintf("student cannot move from %s to %s", from, to))
}

// AcceptsIncidents reports whether new incidents may still change the student.
// Incidents against submitted or terminated students are still logged; this
// only tells callers whether live notifications are meaningful.
func AcceptsIncidents(s *domain.Student) bool {
	return s.Status == domain.StudentRegistered || s.Status == domain.StudentInProgress
}
