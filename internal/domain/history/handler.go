package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pet-care-tracker/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type PetOwnerLookup interface {
	OwnerOf(ctx context.Context, petID string) (string, error)
}

func RegisterRoutes(r chi.Router, svc *Service, migrator *Migrator, petOwners PetOwnerLookup) {
	r.Route("/pets/{petID}/history", func(hr chi.Router) {
		hr.Get("/", listHistoryHandler(svc, petOwners))

		// Fuerza un barrido de la mascota sin esperar al migrador en background
		hr.Post("/sweep", sweepHistoryHandler(migrator, petOwners))
	})
}

// entryResponse representa una entrada de historia clínica devuelta por la API.
type entryResponse struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	PetID         string     `json:"pet_id"`
	AppointmentID string     `json:"appointment_id"`
	Reason        string     `json:"reason"`
	Notes         string     `json:"notes,omitempty"`
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	Vet           string     `json:"vet,omitempty"`
	Location      string     `json:"location,omitempty"`
	Status        string     `json:"status"`
	OccurredAt    *time.Time `json:"occurred_at,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

type sweepResponse struct {
	Migrated int `json:"migrated"`
}

// listHistoryHandler godoc
// @Summary Historia clínica de una mascota
// @Description Lista las entradas de historia clínica generadas a partir de turnos completados. Solo el dueño. Autenticación: `X-Debug-User-ID` (dev) o `Authorization: Bearer <token>` (prod).
// @Tags history
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param petID path string true "ID de la mascota"
// @Param limit query int false "Máximo de entradas (1-200). Por defecto 50"
// @Param from query string false "Fecha/hora mínima del turno (RFC3339)"
// @Param to query string false "Fecha/hora máxima del turno (RFC3339)"
// @Param q query string false "Texto en motivo/notas/veterinario"
// @Success 200 {array} entryResponse
// @Failure 400 {string} string "Parámetros de filtro inválidos"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "pet not found"
// @Failure 500 {string} string "internal error"
// @Router /pets/{petID}/history [get]
func listHistoryHandler(svc *Service, petOwners PetOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, petID, ok := authorizeOwner(w, r, petOwners)
		if !ok {
			return
		}

		filter, err := parseListFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		items, err := svc.ListByPet(r.Context(), userID, petID, filter)
		if err != nil {
			if errors.Is(err, ErrInvalidInput) {
				http.Error(w, "invalid filter", http.StatusBadRequest)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]entryResponse, 0, len(items))
		for _, e := range items {
			out = append(out, toEntryResponse(e))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// sweepHistoryHandler godoc
// @Summary Migrar turnos completados
// @Description Corre una pasada de migración para la mascota: turnos Completed sin migrar pasan a historia clínica y se reparan entradas faltantes.
// @Tags history
// @Produce json
// @Param petID path string true "ID de la mascota"
// @Success 200 {object} sweepResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "pet not found"
// @Failure 500 {string} string "sweep failed"
// @Router /pets/{petID}/history/sweep [post]
func sweepHistoryHandler(migrator *Migrator, petOwners PetOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, petID, ok := authorizeOwner(w, r, petOwners)
		if !ok {
			return
		}

		n, err := migrator.SweepPet(r.Context(), userID, petID)
		if err != nil {
			http.Error(w, "sweep failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sweepResponse{Migrated: n})
	}
}

func authorizeOwner(w http.ResponseWriter, r *http.Request, petOwners PetOwnerLookup) (string, string, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", "", false
	}

	petID := chi.URLParam(r, "petID")
	ownerID, err := petOwners.OwnerOf(r.Context(), petID)
	if err != nil {
		http.Error(w, "pet not found", http.StatusNotFound)
		return "", "", false
	}
	if ownerID != claims.UserID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", "", false
	}
	return claims.UserID, petID, true
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	filter := ListFilter{}

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxLimit {
			filter.Limit = n
		}
	}

	// from/to RFC3339
	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListFilter{}, errors.New("from must be RFC3339")
		}
		filter.From = &t
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListFilter{}, errors.New("to must be RFC3339")
		}
		filter.To = &t
	}

	filter.Query = strings.TrimSpace(r.URL.Query().Get("q"))
	return filter, nil
}

func toEntryResponse(e Entry) entryResponse {
	out := entryResponse{
		ID:            e.ID,
		UserID:        e.UserID,
		PetID:         e.PetID,
		AppointmentID: e.AppointmentID,
		Reason:        e.Reason,
		Notes:         e.Notes,
		Date:          e.Date,
		Time:          e.Time,
		Vet:           e.Vet,
		Location:      e.Location,
		Status:        e.Status,
		Timestamp:     e.Timestamp,
	}
	if !e.OccurredAt.IsZero() {
		t := e.OccurredAt
		out.OccurredAt = &t
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
