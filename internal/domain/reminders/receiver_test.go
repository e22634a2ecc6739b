package reminders

import (
	"context"
	"errors"
	"testing"

	"pet-care-tracker/internal/domain/appointments"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarker struct {
	byID  map[string]appointments.Appointment
	err   error
	calls []appointments.Ref
}

func (f *fakeMarker) MarkPending(_ context.Context, ref appointments.Ref) (appointments.Appointment, error) {
	f.calls = append(f.calls, ref)
	if f.err != nil {
		return appointments.Appointment{}, f.err
	}
	a, ok := f.byID[ref.ID]
	if !ok {
		return appointments.Appointment{}, appointments.ErrNotFound
	}
	if a.Status.IsTerminal() {
		return appointments.Appointment{}, appointments.ErrBadState
	}
	a.Status = appointments.StatusPending
	f.byID[ref.ID] = a
	return a, nil
}

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func TestOnFire_MarksPendingAndNotifies(t *testing.T) {
	marker := &fakeMarker{byID: map[string]appointments.Appointment{
		"apt-1": {ID: "apt-1", UserID: "alice", PetID: "rex", Date: "07/04/2025", Time: "10:00 AM", Reason: "Vaccine", Status: appointments.StatusScheduled},
	}}
	notifier := &recordingNotifier{}
	r := NewReceiver(marker, notifier, zerolog.Nop())

	err := r.OnFire(context.Background(), Payload{AppointmentID: "apt-1", UserID: "alice", PetID: "rex", Reason: "Vaccine"})
	require.NoError(t, err)

	assert.Equal(t, appointments.StatusPending, marker.byID["apt-1"].Status)
	require.Len(t, marker.calls, 1)
	assert.Equal(t, appointments.Ref{UserID: "alice", PetID: "rex", ID: "apt-1"}, marker.calls[0])

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "apt-1", notifier.sent[0].AppointmentID)
	assert.Equal(t, "alice", notifier.sent[0].UserID)
	assert.Contains(t, notifier.sent[0].Body, "Vaccine")
	assert.Contains(t, notifier.sent[0].Body, "10:00 AM")
}

func TestOnFire_ClosedAppointmentNotNotified(t *testing.T) {
	marker := &fakeMarker{byID: map[string]appointments.Appointment{
		"apt-1": {ID: "apt-1", UserID: "alice", PetID: "rex", Status: appointments.StatusCancelled},
	}}
	notifier := &recordingNotifier{}
	r := NewReceiver(marker, notifier, zerolog.Nop())

	require.NoError(t, r.OnFire(context.Background(), Payload{AppointmentID: "apt-1", UserID: "alice", PetID: "rex"}))

	assert.Equal(t, appointments.StatusCancelled, marker.byID["apt-1"].Status)
	assert.Empty(t, notifier.sent)
}

func TestOnFire_MissingAppointmentSkipped(t *testing.T) {
	marker := &fakeMarker{byID: map[string]appointments.Appointment{}}
	notifier := &recordingNotifier{}
	r := NewReceiver(marker, notifier, zerolog.Nop())

	require.NoError(t, r.OnFire(context.Background(), Payload{AppointmentID: "gone"}))
	assert.Empty(t, notifier.sent)
}

func TestOnFire_Errors(t *testing.T) {
	marker := &fakeMarker{err: errors.New("store down")}
	r := NewReceiver(marker, &recordingNotifier{}, zerolog.Nop())
	assert.Error(t, r.OnFire(context.Background(), Payload{AppointmentID: "apt-1"}))

	marker = &fakeMarker{byID: map[string]appointments.Appointment{
		"apt-1": {ID: "apt-1", Status: appointments.StatusScheduled},
	}}
	r = NewReceiver(marker, &recordingNotifier{err: errors.New("broker down")}, zerolog.Nop())
	assert.Error(t, r.OnFire(context.Background(), Payload{AppointmentID: "apt-1"}))
}
