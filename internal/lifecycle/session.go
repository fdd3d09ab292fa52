package lifecycle

import (
	"time"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
)

// Expired reports whether the sweeper should close s at now.
func Expired(s *domain.ExamSession, now time.Time) bool {
	return s.Active && s.EndTime.Before(now)
}

// CheckAcceptsReports fails with PreconditionFailed once a session is closed.
func CheckAcceptsReports(s *domain.ExamSession) error {
	if !s.Active {
		return domain.ErrPreconditionFailed("exam session is not active")
	}
	return nil
}

// CheckJoinable validates that students may still enter s at now.
func CheckJoinable(s *domain.ExamSession, now time.Time) error {
	if !s.Active {
		return domain.ErrPreconditionFailed("exam session is closed")
	}
	if !s.Published {
		return domain.ErrPreconditionFailed("exam session is not published")
	}
	if now.After(s.EndTime) {
		return domain.ErrPreconditionFailed("exam session has ended")
	}
	return nil
}

// CheckPublishable validates publishing s. Publishing twice is a no-op.
func CheckPublishable(s *domain.ExamSession) (changed bool, err error) {
	if !s.Active {
		return false, domain.ErrPreconditionFailed("closed exam session cannot be published")
	}
	return !s.Published, nil
}

// CheckClosable reports whether closing s changes anything. Sessions never reopen.
func CheckClosable(s *domain.ExamSession) bool {
	return s.Active
}
