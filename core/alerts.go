// core/alerts.go
package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/uav-coordinator/internal/logging"
	"github.com/signalsfoundry/uav-coordinator/model"
)

// ConflictPersister is the subset of the persistence interface conflict-event
// logging needs.
type ConflictPersister interface {
	AppendConflictEvent(ctx context.Context, c model.Conflict) error
}

// PersistingAlertSink implements AlertSink by appending every edge-triggered
// alert the live monitor and dispatcher raise to durable storage, so
// /api/history/conflicts has something to query. Persistence is best-effort:
// a failure is logged and the alert is otherwise dropped, never blocking the
// caller that raised it.
type PersistingAlertSink struct {
	store ConflictPersister
	log   logging.Logger
}

// NewPersistingAlertSink constructs a sink over store. store may be nil, in
// which case every alert is silently discarded.
func NewPersistingAlertSink(store ConflictPersister, log logging.Logger) *PersistingAlertSink {
	if log == nil {
		log = logging.Noop()
	}
	return &PersistingAlertSink{store: store, log: log}
}

// PostAlert implements AlertSink.
func (s *PersistingAlertSink) PostAlert(conflict model.Conflict) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.AppendConflictEvent(ctx, conflict); err != nil {
		s.log.Warn(ctx, "conflict event persistence failed", logging.String("error", err.Error()))
	}
}
