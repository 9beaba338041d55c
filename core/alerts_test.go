package core

import (
	"context"
	"errors"
	"testing"

	"github.com/signalsfoundry/uav-coordinator/model"
)

type fakeConflictPersister struct {
	posted []model.Conflict
	fail   bool
}

func (f *fakeConflictPersister) AppendConflictEvent(ctx context.Context, c model.Conflict) error {
	if f.fail {
		return errors.New("simulated persistence failure")
	}
	f.posted = append(f.posted, c)
	return nil
}

func TestPersistingAlertSink_PostAlertAppendsToStore(t *testing.T) {
	store := &fakeConflictPersister{}
	sink := NewPersistingAlertSink(store, nil)

	sink.PostAlert(model.Conflict{Kind: model.ConflictMixed, Severity: model.SeverityCritical})

	if len(store.posted) != 1 {
		t.Fatalf("expected one persisted conflict event, got %d", len(store.posted))
	}
}

func TestPersistingAlertSink_NilStoreDiscardsAlerts(t *testing.T) {
	sink := NewPersistingAlertSink(nil, nil)

	sink.PostAlert(model.Conflict{Kind: model.ConflictMixed, Severity: model.SeverityCritical})
}

func TestPersistingAlertSink_PersistenceFailureDoesNotPanic(t *testing.T) {
	store := &fakeConflictPersister{fail: true}
	sink := NewPersistingAlertSink(store, nil)

	sink.PostAlert(model.Conflict{Kind: model.ConflictMixed, Severity: model.SeverityCritical})

	if len(store.posted) != 0 {
		t.Fatalf("expected no conflict events recorded on failure, got %d", len(store.posted))
	}
}
