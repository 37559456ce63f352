package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/tracker-enrich/internal/domain"
	"github.com/cuongbtq/tracker-enrich/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStaleStore struct {
	runs        []domain.Run
	err         error
	staleBefore time.Time
	reason      string
}

func (f *fakeStaleStore) ReclaimStaleRuns(_ context.Context, staleBefore time.Time, reason string) ([]domain.Run, error) {
	f.staleBefore = staleBefore
	f.reason = reason
	return f.runs, f.err
}

type fakeDispatcher struct {
	runIDs []string
	failOn string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, run *domain.Run) error {
	if run.RunID == f.failOn {
		return errors.New("broker unavailable")
	}
	f.runIDs = append(f.runIDs, run.RunID)
	return nil
}

func newTestReaper(store StaleRunStore, dispatcher RunDispatcher, now time.Time) *Reaper {
	r := NewReaper(&ReaperConfig{
		Logger:     logger.NewDiscard().Logger,
		Store:      store,
		Dispatcher: dispatcher,
		Interval:   30 * time.Second,
		StaleAfter: 2 * time.Minute,
	})
	r.now = func() time.Time { return now }
	return r
}

func TestReaper_RedispatchesPendingRuns(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeStaleStore{runs: []domain.Run{
		{RunID: "run-a", Status: domain.RunStatusPending, RetryCount: 1},
		{RunID: "run-b", Status: domain.RunStatusFailed, RetryCount: 3},
		{RunID: "run-c", Status: domain.RunStatusPending, RetryCount: 2},
	}}
	dispatcher := &fakeDispatcher{}

	dispatched, err := newTestReaper(store, dispatcher, now).Reap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, dispatched)
	assert.Equal(t, []string{"run-a", "run-c"}, dispatcher.runIDs)
	assert.Equal(t, now.Add(-2*time.Minute), store.staleBefore)
	assert.Equal(t, staleRunReason, store.reason)
}

func TestReaper_DispatchFailureDoesNotStopPass(t *testing.T) {
	store := &fakeStaleStore{runs: []domain.Run{
		{RunID: "run-a", Status: domain.RunStatusPending},
		{RunID: "run-b", Status: domain.RunStatusPending},
	}}
	dispatcher := &fakeDispatcher{failOn: "run-a"}

	dispatched, err := newTestReaper(store, dispatcher, time.Now()).Reap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)
	assert.Equal(t, []string{"run-b"}, dispatcher.runIDs)
}

func TestReaper_StoreError(t *testing.T) {
	store := &fakeStaleStore{err: errors.New("connection refused")}

	_, err := newTestReaper(store, &fakeDispatcher{}, time.Now()).Reap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestReaper_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newTestReaper(&fakeStaleStore{}, &fakeDispatcher{}, time.Now()).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}

func TestNewReaper_Defaults(t *testing.T) {
	r := NewReaper(&ReaperConfig{Store: &fakeStaleStore{}, Dispatcher: &fakeDispatcher{}})
	assert.Equal(t, defaultHeartbeatInterval, r.interval)
	assert.Equal(t, 4*defaultHeartbeatInterval, r.staleAfter)
	assert.NotNil(t, r.logger)
}
