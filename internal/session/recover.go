package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/likhithmdev/Final-Sic/internal/journal"
)

// RecoveryJournal is the part of the journal needed to recover a session.
type RecoveryJournal interface {
	Load(ctx context.Context) (journal.Entry, bool, error)
	Clear(ctx context.Context) error
}

// Recover checks out a session journaled by a previous run that did not shut
// down cleanly. The check-out is attempted once; the journal is cleared
// either way so a dead token is never retried.
func Recover(ctx context.Context, j RecoveryJournal, svc Service, logger *zap.Logger) (journal.Entry, bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	entry, ok, err := j.Load(ctx)
	if err != nil || !ok {
		return journal.Entry{}, false, err
	}

	logger.Warn("found session left by a previous run", zap.String("identity", entry.Identity),
		zap.String("session", entry.SessionID), zap.Time("started_at", entry.StartedAt))

	if err := svc.CheckOut(ctx, entry.Token); err != nil {
		logger.Error("recovery check-out failed", zap.String("identity", entry.Identity), zap.Error(err))
	} else {
		logger.Info("recovered session checked out", zap.String("identity", entry.Identity))
	}

	if err := j.Clear(ctx); err != nil {
		return entry, true, err
	}
	return entry, true, nil
}
