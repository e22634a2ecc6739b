package appointments

import "time"

const (
	firstSlotHour = 9
	lastSlotHour  = 17
)

var slotCatalog = buildSlotCatalog()

func buildSlotCatalog() []string {
	out := make([]string, 0, lastSlotHour-firstSlotHour+1)
	for h := firstSlotHour; h <= lastSlotHour; h++ {
		out = append(out, time.Date(2000, 1, 1, h, 0, 0, 0, time.UTC).Format(TimeLayout))
	}
	return out
}

// AllTimeSlots devuelve los 9 turnos diarios (09:00 AM .. 05:00 PM) en orden.
// Cada llamada entrega una copia nueva.
func AllTimeSlots() []string {
	out := make([]string, len(slotCatalog))
	copy(out, slotCatalog)
	return out
}

func IsSlot(label string) bool {
	for _, s := range slotCatalog {
		if s == label {
			return true
		}
	}
	return false
}

// Partition separa el catálogo en tomados / disponibles manteniendo el orden.
// Etiquetas fuera del catálogo se ignoran.
func Partition(date string, taken map[string]struct{}) Availability {
	av := Availability{
		Date:      date,
		Taken:     make([]string, 0, len(taken)),
		Available: make([]string, 0, len(slotCatalog)),
	}
	for _, s := range slotCatalog {
		if _, ok := taken[s]; ok {
			av.Taken = append(av.Taken, s)
			continue
		}
		av.Available = append(av.Available, s)
	}
	return av
}
