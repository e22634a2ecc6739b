package mongodb

import (
	"testing"
	"time"

	"pet-care-tracker/internal/domain/appointments"
	"pet-care-tracker/internal/domain/history"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
)

func TestAppointmentDoc_StoresCanonicalStatus(t *testing.T) {
	a := appointments.Appointment{
		ID:     "apt-1",
		UserID: "alice",
		PetID:  "rex",
		Date:   "12/25/2025",
		Time:   "09:00 AM",
		Reason: "Checkup",
		Status: appointments.Status("completed"),
	}

	d := toAppointmentDoc(a)
	assert.Equal(t, "Completed", d.Status)

	raw, err := bson.Marshal(d)
	assert.NoError(t, err)

	var back appointmentDoc
	assert.NoError(t, bson.Unmarshal(raw, &back))
	assert.Equal(t, "apt-1", back.ID)
	assert.Equal(t, appointments.StatusCompleted, back.toAppointment().Status)
}

func TestReservationKey(t *testing.T) {
	assert.Equal(t, "12/25/2025|09:00 AM", reservationKey("12/25/2025", "09:00 AM"))
}

func TestEntryDoc_ZeroOccurredAtOmitted(t *testing.T) {
	d := toEntryDoc(history.Entry{ID: "apt-1", Timestamp: time.Now()})
	assert.Nil(t, d.OccurredAt)
	assert.True(t, d.toEntry().OccurredAt.IsZero())
}
