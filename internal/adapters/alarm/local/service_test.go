package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pet-care-tracker/internal/domain/reminders"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedLog struct {
	mu  sync.Mutex
	got []reminders.Payload
	ch  chan struct{}
}

func newFiredLog() *firedLog {
	return &firedLog{ch: make(chan struct{}, 16)}
}

func (f *firedLog) handle(_ context.Context, p reminders.Payload) error {
	f.mu.Lock()
	f.got = append(f.got, p)
	f.mu.Unlock()
	f.ch <- struct{}{}
	return nil
}

func (f *firedLog) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("alarm did not fire")
	}
}

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func alarm(id string, at time.Time) reminders.Alarm {
	return reminders.Alarm{
		ID:        id,
		TriggerAt: at,
		Payload: reminders.Payload{
			AppointmentID: "apt-" + id,
			UserID:        "alice",
			PetID:         "rex",
			Reason:        "Vaccination",
		},
	}
}

func TestSQLiteStore_SaveListDelete(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	later := time.Date(2025, 12, 25, 9, 0, 0, 0, time.UTC)
	sooner := later.Add(-time.Hour)

	require.NoError(t, st.Save(ctx, alarm("b", later)))
	require.NoError(t, st.Save(ctx, alarm("a", sooner)))

	items, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.True(t, items[0].TriggerAt.Equal(sooner))
	assert.Equal(t, "apt-a", items[0].Payload.AppointmentID)
	assert.Equal(t, "Vaccination", items[0].Payload.Reason)

	require.NoError(t, st.Delete(ctx, "a"))
	items, err = st.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)
}

func TestService_PastTriggerFiresImmediatelyAndIsRemoved(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	fired := newFiredLog()

	svc := NewService(st, zerolog.Nop())
	svc.SetHandler(fired.handle)
	defer svc.Close()

	require.NoError(t, svc.Register(ctx, alarm("x", time.Now().Add(-time.Minute))))
	fired.wait(t)

	fired.mu.Lock()
	require.Len(t, fired.got, 1)
	assert.Equal(t, "apt-x", fired.got[0].AppointmentID)
	fired.mu.Unlock()

	assert.Eventually(t, func() bool {
		items, err := st.List(ctx)
		return err == nil && len(items) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, svc.Pending())
}

func TestService_FutureTriggerStaysArmed(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	svc := NewService(st, zerolog.Nop())
	svc.SetHandler(newFiredLog().handle)

	require.NoError(t, svc.Register(ctx, alarm("f", time.Now().Add(time.Hour))))
	assert.Equal(t, 1, svc.Pending())

	svc.Close()
	assert.Equal(t, 0, svc.Pending())

	// sigue persistida para el próximo arranque
	items, err := st.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	assert.ErrorIs(t, svc.Register(ctx, alarm("g", time.Now().Add(time.Hour))), ErrClosed)
}

func TestService_RestoreRearmsPersistedAlarms(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Save(ctx, alarm("old", time.Now().Add(-time.Hour))))
	require.NoError(t, st.Save(ctx, alarm("new", time.Now().Add(time.Hour))))

	fired := newFiredLog()
	svc := NewService(st, zerolog.Nop())
	svc.SetHandler(fired.handle)
	defer svc.Close()

	n, err := svc.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fired.wait(t)
	fired.mu.Lock()
	assert.Equal(t, "apt-old", fired.got[0].AppointmentID)
	fired.mu.Unlock()

	assert.Eventually(t, func() bool { return svc.Pending() == 1 }, 2*time.Second, 10*time.Millisecond)
}

type failingStore struct{ Store }

func (failingStore) Save(context.Context, reminders.Alarm) error { return errors.New("disk full") }

func TestService_RegisterFailsWhenStoreFails(t *testing.T) {
	svc := NewService(failingStore{}, zerolog.Nop())
	defer svc.Close()

	err := svc.Register(context.Background(), alarm("z", time.Now()))
	assert.Error(t, err)
	assert.Equal(t, 0, svc.Pending())
}

func TestService_HandlerErrorStillRemovesAlarm(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	done := make(chan struct{}, 1)

	svc := NewService(st, zerolog.Nop())
	svc.SetHandler(func(context.Context, reminders.Payload) error {
		done <- struct{}{}
		return errors.New("boom")
	})
	defer svc.Close()

	require.NoError(t, svc.Register(ctx, alarm("e", time.Now())))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("alarm did not fire")
	}

	assert.Eventually(t, func() bool {
		items, err := st.List(ctx)
		return err == nil && len(items) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
