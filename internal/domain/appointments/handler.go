package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pet-care-tracker/internal/middleware"
	"pet-care-tracker/internal/ports/auth"

	"github.com/go-chi/chi/v5"
)

// PetOwnerLookup evita importar el paquete pets.
type PetOwnerLookup interface {
	OwnerOf(ctx context.Context, petID string) (string, error)
}

func RegisterRoutes(r chi.Router, svc *Service, petOwners PetOwnerLookup) {
	r.Get("/slots", listSlotsHandler())
	r.Get("/availability", availabilityHandler(svc))

	r.Route("/pets/{petID}/appointments", func(ar chi.Router) {
		ar.Post("/", bookHandler(svc, petOwners))
		ar.Get("/", listByPetHandler(svc, petOwners))
		ar.Get("/{appointmentID}", getHandler(svc, petOwners))
		ar.Post("/{appointmentID}/cancel", cancelHandler(svc, petOwners))
		ar.Post("/{appointmentID}/hide", hideHandler(svc, petOwners))
	})

	// Operador: actúa sobre el espejo admin
	r.Route("/admin/appointments", func(ar chi.Router) {
		ar.Get("/", listMirrorHandler(svc))
		ar.Patch("/{appointmentID}/status", setStatusHandler(svc))
	})
}

// bookRequest es el cuerpo para reservar un turno.
type bookRequest struct {
	Date     string `json:"date"` // MM/dd/yyyy
	Time     string `json:"time"` // ej. "09:00 AM"
	Reason   string `json:"reason"`
	Notes    string `json:"notes"`
	Vet      string `json:"vet"`
	Location string `json:"location"`
}

type appointmentResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	PetID          string    `json:"pet_id"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	Reason         string    `json:"reason"`
	Notes          string    `json:"notes,omitempty"`
	Vet            string    `json:"vet,omitempty"`
	Location       string    `json:"location,omitempty"`
	Status         Status    `json:"status"`
	Hidden         bool      `json:"hidden"`
	MovedToHistory bool      `json:"moved_to_history"`
	Timestamp      time.Time `json:"timestamp"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type availabilityResponse struct {
	Date      string   `json:"date"`
	Taken     []string `json:"taken"`
	Available []string `json:"available"`
}

// conflictResponse se devuelve con 409 para que el cliente re-renderice los turnos.
type conflictResponse struct {
	Error     string   `json:"error"`
	Date      string   `json:"date"`
	Time      string   `json:"time"`
	Taken     []string `json:"taken"`
	Available []string `json:"available"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// listSlotsHandler godoc
// @Summary Catálogo de turnos
// @Description Devuelve los 9 turnos diarios fijos en orden.
// @Tags appointments
// @Produce json
// @Success 200 {array} string
// @Router /slots [get]
func listSlotsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, AllTimeSlots())
	}
}

// availabilityHandler godoc
// @Summary Disponibilidad por fecha
// @Description Particiona el catálogo en turnos tomados y disponibles para la fecha. Si el storage falla, todos figuran disponibles.
// @Tags appointments
// @Produce json
// @Param date query string true "Fecha MM/dd/yyyy"
// @Success 200 {object} availabilityResponse
// @Failure 400 {string} string "date required"
// @Router /availability [get]
func availabilityHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := strings.TrimSpace(r.URL.Query().Get("date"))
		if date == "" {
			http.Error(w, "date required", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(svc.Availability(r.Context(), date)))
	}
}

// bookHandler godoc
// @Summary Reservar turno
// @Description Reserva un turno para la mascota. Revalida disponibilidad justo antes de escribir; si el turno se tomó entretanto responde 409 con la partición actualizada. Solo el dueño de la mascota.
// @Tags appointments
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param petID path string true "ID de la mascota"
// @Param payload body bookRequest true "Fecha MM/dd/yyyy, turno hh:mm a y motivo"
// @Success 201 {object} appointmentResponse
// @Failure 400 {string} string "invalid json / campos requeridos"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "pet not found"
// @Failure 409 {object} conflictResponse
// @Failure 500 {string} string "booking failed"
// @Router /pets/{petID}/appointments [post]
func bookHandler(svc *Service, petOwners PetOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, petID, ok := authorizeOwner(w, r, petOwners)
		if !ok {
			return
		}

		var req bookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		a, err := svc.Book(r.Context(), claims.UserID, petID, BookInput{
			Date:     req.Date,
			Time:     req.Time,
			Reason:   req.Reason,
			Notes:    req.Notes,
			Vet:      req.Vet,
			Location: req.Location,
		})
		if err != nil {
			var conflict *ConflictError
			switch {
			case errors.As(err, &conflict):
				writeJSON(w, http.StatusConflict, conflictResponse{
					Error:     "slot_conflict",
					Date:      conflict.Date,
					Time:      conflict.Time,
					Taken:     conflict.Availability.Taken,
					Available: conflict.Availability.Available,
				})
			case errors.Is(err, ErrInvalidInput):
				http.Error(w, "date, time (catalog slot) and reason are required", http.StatusBadRequest)
			default:
				http.Error(w, "booking failed", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(a))
	}
}

func listByPetHandler(svc *Service, petOwners PetOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, petID, ok := authorizeOwner(w, r, petOwners)
		if !ok {
			return
		}

		includeHidden, _ := strconv.ParseBool(r.URL.Query().Get("include_hidden"))

		items, err := svc.ListForPet(r.Context(), claims.UserID, petID, includeHidden)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]appointmentResponse, 0, len(items))
		for _, a := range items {
			out = append(out, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getHandler(svc *Service, petOwners PetOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, petID, ok := authorizeOwner(w, r, petOwners)
		if !ok {
			return
		}

		a, err := svc.Get(r.Context(), Ref{
			UserID: claims.UserID,
			PetID:  petID,
			ID:     chi.URLParam(r, "appointmentID"),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(a))
	}
}

func cancelHandler(svc *Service, petOwners PetOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, petID, ok := authorizeOwner(w, r, petOwners)
		if !ok {
			return
		}

		a, err := svc.Cancel(r.Context(), Ref{
			UserID: claims.UserID,
			PetID:  petID,
			ID:     chi.URLParam(r, "appointmentID"),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(a))
	}
}

func hideHandler(svc *Service, petOwners PetOwnerLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, petID, ok := authorizeOwner(w, r, petOwners)
		if !ok {
			return
		}

		a, err := svc.Hide(r.Context(), Ref{
			UserID: claims.UserID,
			PetID:  petID,
			ID:     chi.URLParam(r, "appointmentID"),
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(a))
	}
}

// listMirrorHandler godoc
// @Summary Listar espejo admin
// @Description Lista los turnos del espejo global. Requiere rol admin.
// @Tags admin
// @Produce json
// @Param date query string false "Fecha MM/dd/yyyy"
// @Param status query string false "CSV de estados (Scheduled,Pending,Completed,Cancelled)"
// @Success 200 {array} appointmentResponse
// @Failure 400 {string} string "unknown status"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /admin/appointments [get]
func listMirrorHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authorizeAdmin(w, r) {
			return
		}

		filter := MirrorFilter{Date: strings.TrimSpace(r.URL.Query().Get("date"))}
		if v := strings.TrimSpace(r.URL.Query().Get("status")); v != "" {
			for _, p := range strings.Split(v, ",") {
				if strings.TrimSpace(p) == "" {
					continue
				}
				st, err := ParseStatus(p)
				if err != nil {
					http.Error(w, "unknown status", http.StatusBadRequest)
					return
				}
				filter.Statuses = append(filter.Statuses, st)
			}
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				filter.Limit = n
			}
		}

		items, err := svc.ListMirror(r.Context(), filter)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]appointmentResponse, 0, len(items))
		for _, a := range items {
			out = append(out, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// setStatusHandler godoc
// @Summary Cambiar estado (operador)
// @Description Cambia el estado de un turno desde el espejo admin y lo propaga al registro de la mascota. Completed y Cancelled son terminales.
// @Tags admin
// @Accept json
// @Produce json
// @Param appointmentID path string true "ID del turno"
// @Param payload body setStatusRequest true "Nuevo estado"
// @Success 200 {object} appointmentResponse
// @Failure 400 {string} string "unknown status"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "appointment not found"
// @Failure 409 {string} string "invalid state"
// @Router /admin/appointments/{appointmentID}/status [patch]
func setStatusHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authorizeAdmin(w, r) {
			return
		}

		var req setStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		st, err := ParseStatus(req.Status)
		if err != nil {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}

		a, err := svc.SetStatus(r.Context(), chi.URLParam(r, "appointmentID"), st)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(a))
	}
}

// authorizeOwner: claims presentes + la mascota existe + es del usuario.
func authorizeOwner(w http.ResponseWriter, r *http.Request, petOwners PetOwnerLookup) (auth.Claims, string, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return auth.Claims{}, "", false
	}

	petID := chi.URLParam(r, "petID")
	ownerID, err := petOwners.OwnerOf(r.Context(), petID)
	if err != nil || strings.TrimSpace(ownerID) == "" {
		http.Error(w, "pet not found", http.StatusNotFound)
		return auth.Claims{}, "", false
	}
	if ownerID != claims.UserID {
		http.Error(w, "forbidden", http.StatusForbidden)
		return auth.Claims{}, "", false
	}
	return claims, petID, true
}

func authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if !claims.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrBadState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toAppointmentResponse(a Appointment) appointmentResponse {
	return appointmentResponse{
		ID:             a.ID,
		UserID:         a.UserID,
		PetID:          a.PetID,
		Date:           a.Date,
		Time:           a.Time,
		Reason:         a.Reason,
		Notes:          a.Notes,
		Vet:            a.Vet,
		Location:       a.Location,
		Status:         a.Status,
		Hidden:         a.Hidden,
		MovedToHistory: a.MovedToHistory,
		Timestamp:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toAvailabilityResponse(av Availability) availabilityResponse {
	return availabilityResponse{
		Date:      av.Date,
		Taken:     av.Taken,
		Available: av.Available,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
