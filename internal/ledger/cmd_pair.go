package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/domain"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
)

// PairResult reports a mobile handshake. Success is true for both the first
// and any repeated redemption of a valid code.
type PairResult struct {
	Success          bool
	AlreadyConnected bool
	Student          *domain.Student
}

// NormalizePairingCode trims and uppercases a code as typed by a user.
func NormalizePairingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Pair marks the student's secondary device as connected. Only the
// pairing flag is touched, so it runs alongside incident processing.
func (e *Engine) Pair(ctx context.Context, code string) (*PairResult, error) {
	code = NormalizePairingCode(code)
	if code == "" {
		return nil, domain.ErrNotFound("pairing code", `""`)
	}

	var res PairResult
	err := e.store.WithTx(ctx, func(tx repository.Tx) error {
		st, err := tx.LockStudentByPairingCode(ctx, code)
		if err != nil {
			return fmt.Errorf("lock student by pairing code: %w", err)
		}
		if st == nil {
			return domain.ErrNotFound("pairing code", code)
		}

		updated, err := tx.MarkMobileConnected(ctx, st.ID)
		if err != nil {
			return fmt.Errorf("mark mobile connected: %w", err)
		}
		if updated == nil {
			res = PairResult{Success: true, AlreadyConnected: true, Student: st}
			return nil
		}
		res = PairResult{Success: true, Student: updated}
		return emit(ctx, tx, domain.NewMobilePairedEvent(updated, e.now().UTC()))
	})
	if err != nil {
		return nil, err
	}

	if !res.AlreadyConnected {
		e.logger.Info("mobile device paired", slog.String("student_id", res.Student.ID.String()))
		e.notifier.Notify(ctx, Change{Event: domain.EventMobilePaired, Student: res.Student})
	}
	return &res, nil
}
