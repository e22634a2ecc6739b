package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pet-care-tracker/internal/adapters/alarm/local"
	"pet-care-tracker/internal/domain/reminders"
	"pet-care-tracker/internal/router"

	"github.com/rs/zerolog"
)

const (
	day  = "12/25/2025"
	slot = "09:00 AM"
)

func TestHTTP_EndToEnd_BookConflictCompleteHistory(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	// 1) Dos dueños con una mascota cada uno
	rexID := createPet(t, ts.URL, "alice", map[string]any{"name": "Rex", "species": "dog", "sex": "male"})
	mishiID := createPet(t, ts.URL, "bob", map[string]any{"name": "Mishi", "species": "cat", "sex": "female"})

	// 2) Disponibilidad inicial: nada tomado
	{
		st, body := doReq(t, ts.URL, "GET", "/availability?date="+day, "", "", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 availability, got %d body=%s", st, string(body))
		}
		var av struct {
			Taken     []string `json:"taken"`
			Available []string `json:"available"`
		}
		mustDecode(t, body, &av)
		if len(av.Taken) != 0 || !contains(av.Available, slot) {
			t.Fatalf("unexpected availability: %+v", av)
		}
	}

	// 3) Alice reserva
	apptID := bookSlot(t, ts.URL, "alice", rexID, slot)

	// 4) Bob pide el mismo turno => 409 con la partición fresca
	{
		st, body := doReq(t, ts.URL, "POST", "/pets/"+mishiID+"/appointments", "bob", "", map[string]any{
			"date": day, "time": slot, "reason": "Checkup",
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 on taken slot, got %d body=%s", st, string(body))
		}
		var c struct {
			Error     string   `json:"error"`
			Taken     []string `json:"taken"`
			Available []string `json:"available"`
		}
		mustDecode(t, body, &c)
		if c.Error != "slot_conflict" || !contains(c.Taken, slot) || contains(c.Available, slot) {
			t.Fatalf("unexpected conflict body: %+v", c)
		}
	}

	// 5) Bob no ve los turnos de Rex
	{
		st, _ := doReq(t, ts.URL, "GET", "/pets/"+rexID+"/appointments", "bob", "", nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 for non-owner, got %d", st)
		}
	}

	// 6) Espejo admin: solo operador
	{
		st, _ := doReq(t, ts.URL, "GET", "/admin/appointments?date="+day, "alice", "", nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 for non-admin, got %d", st)
		}

		st, body := doReq(t, ts.URL, "GET", "/admin/appointments?date="+day+"&status=scheduled", "ops", "admin", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 admin list, got %d body=%s", st, string(body))
		}
		var items []map[string]any
		mustDecode(t, body, &items)
		if len(items) != 1 || items[0]["id"] != apptID {
			t.Fatalf("expected mirror with %s, got %s", apptID, string(body))
		}
	}

	// 7) Operador completa el turno
	{
		st, body := doReq(t, ts.URL, "PATCH", "/admin/appointments/"+apptID+"/status", "ops", "admin", map[string]any{
			"status": "completed",
		})
		if st != http.StatusOK {
			t.Fatalf("expected 200 set status, got %d body=%s", st, string(body))
		}
		var a map[string]any
		mustDecode(t, body, &a)
		if a["status"] != "Completed" {
			t.Fatalf("expected Completed, got %v", a["status"])
		}

		// terminal: no vuelve a Scheduled
		st, _ = doReq(t, ts.URL, "PATCH", "/admin/appointments/"+apptID+"/status", "ops", "admin", map[string]any{
			"status": "Scheduled",
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 leaving terminal state, got %d", st)
		}
	}

	// 8) Completed libera el horario
	{
		_, body := doReq(t, ts.URL, "GET", "/availability?date="+day, "", "", nil)
		var av struct {
			Taken []string `json:"taken"`
		}
		mustDecode(t, body, &av)
		if contains(av.Taken, slot) {
			t.Fatalf("completed appointment should not hold the slot: %s", string(body))
		}
	}

	// 9) Barrido a historia clínica
	{
		st, body := doReq(t, ts.URL, "POST", "/pets/"+rexID+"/history/sweep", "alice", "", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 sweep, got %d body=%s", st, string(body))
		}
		var out struct {
			Migrated int `json:"migrated"`
		}
		mustDecode(t, body, &out)
		if out.Migrated != 1 {
			t.Fatalf("expected 1 migrated, got %d", out.Migrated)
		}

		// idempotente
		_, body = doReq(t, ts.URL, "POST", "/pets/"+rexID+"/history/sweep", "alice", "", nil)
		mustDecode(t, body, &out)
		if out.Migrated != 0 {
			t.Fatalf("expected second sweep to migrate nothing, got %d", out.Migrated)
		}
	}

	// 10) Historia y turno marcado
	{
		st, body := doReq(t, ts.URL, "GET", "/pets/"+rexID+"/history", "alice", "", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 history, got %d body=%s", st, string(body))
		}
		var entries []map[string]any
		mustDecode(t, body, &entries)
		if len(entries) != 1 || entries[0]["appointment_id"] != apptID || entries[0]["reason"] != "Vaccination" {
			t.Fatalf("unexpected history: %s", string(body))
		}

		_, body = doReq(t, ts.URL, "GET", "/pets/"+rexID+"/appointments/"+apptID, "alice", "", nil)
		var a map[string]any
		mustDecode(t, body, &a)
		if a["moved_to_history"] != true {
			t.Fatalf("expected moved_to_history, got %s", string(body))
		}
	}
}

func TestHTTP_CancelFreesSlotAndHideRemovesFromList(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	rexID := createPet(t, ts.URL, "alice", map[string]any{"name": "Rex", "species": "dog", "sex": "male"})
	apptID := bookSlot(t, ts.URL, "alice", rexID, slot)

	st, body := doReq(t, ts.URL, "POST", "/pets/"+rexID+"/appointments/"+apptID+"/cancel", "alice", "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 cancel, got %d body=%s", st, string(body))
	}

	// el mismo turno vuelve a estar disponible
	bookSlot(t, ts.URL, "alice", rexID, slot)

	st, _ = doReq(t, ts.URL, "POST", "/pets/"+rexID+"/appointments/"+apptID+"/hide", "alice", "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 hide, got %d", st)
	}

	_, body = doReq(t, ts.URL, "GET", "/pets/"+rexID+"/appointments", "alice", "", nil)
	var items []map[string]any
	mustDecode(t, body, &items)
	if len(items) != 1 {
		t.Fatalf("expected hidden appointment filtered out, got %s", string(body))
	}

	_, body = doReq(t, ts.URL, "GET", "/pets/"+rexID+"/appointments?include_hidden=true", "alice", "", nil)
	mustDecode(t, body, &items)
	if len(items) != 2 {
		t.Fatalf("expected 2 with include_hidden, got %s", string(body))
	}
}

func TestHTTP_RejectsBadInput(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	rexID := createPet(t, ts.URL, "alice", map[string]any{"name": "Rex", "species": "dog", "sex": "male"})

	st, _ := doReq(t, ts.URL, "POST", "/pets/"+rexID+"/appointments", "alice", "", map[string]any{
		"date": day, "time": "09:15 AM", "reason": "Checkup",
	})
	if st != http.StatusBadRequest {
		t.Fatalf("expected 400 for off-catalog slot, got %d", st)
	}

	st, _ = doReq(t, ts.URL, "POST", "/pets/"+rexID+"/appointments", "", "", map[string]any{
		"date": day, "time": slot, "reason": "Checkup",
	})
	if st != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", st)
	}

	st, _ = doReq(t, ts.URL, "GET", "/availability", "", "", nil)
	if st != http.StatusBadRequest {
		t.Fatalf("expected 400 without date, got %d", st)
	}

	st, _ = doReq(t, ts.URL, "GET", "/pets/"+rexID+"/history?from=yesterday", "alice", "", nil)
	if st != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", st)
	}
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []reminders.Notification
	ch  chan struct{}
}

func (n *recordingNotifier) Notify(_ context.Context, msg reminders.Notification) error {
	n.mu.Lock()
	n.got = append(n.got, msg)
	n.mu.Unlock()
	n.ch <- struct{}{}
	return nil
}

func TestApp_ReminderFiresMarksPendingAndNotifies(t *testing.T) {
	alarms := local.NewService(nil, zerolog.Nop())
	defer alarms.Close()
	notifier := &recordingNotifier{ch: make(chan struct{}, 1)}

	app := router.NewApp(router.Options{
		Alarms:   alarms,
		Notifier: notifier,
		Location: time.UTC,
	})
	alarms.SetHandler(app.Receiver.OnFire)

	ts := httptest.NewServer(app.Handler)
	defer ts.Close()

	rexID := createPet(t, ts.URL, "alice", map[string]any{"name": "Rex", "species": "dog", "sex": "male"})
	// fecha pasada: la alarma se dispara enseguida
	st, body := doReq(t, ts.URL, "POST", "/pets/"+rexID+"/appointments", "alice", "", map[string]any{
		"date": "01/02/2020", "time": slot, "reason": "Vaccination",
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", st, string(body))
	}
	var a map[string]any
	mustDecode(t, body, &a)

	select {
	case <-notifier.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("reminder was not delivered")
	}

	notifier.mu.Lock()
	got := notifier.got[0]
	notifier.mu.Unlock()
	if got.Title != "Appointment Reminder" || got.Body != "Vaccination at 01/02/2020 09:00 AM" {
		t.Fatalf("unexpected notification: %+v", got)
	}

	_, body = doReq(t, ts.URL, "GET", "/pets/"+rexID+"/appointments/"+a["id"].(string), "alice", "", nil)
	mustDecode(t, body, &a)
	if a["status"] != "Pending" {
		t.Fatalf("expected Pending after reminder, got %v", a["status"])
	}
}

func createPet(t *testing.T, baseURL, userID string, payload map[string]any) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/pets", userID, "", payload)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create pet, got %d body=%s", st, string(body))
	}

	var out map[string]any
	mustDecode(t, body, &out)
	id, _ := out["id"].(string)
	if id == "" {
		t.Fatalf("missing pet id in response: %s", string(body))
	}
	return id
}

func bookSlot(t *testing.T, baseURL, userID, petID, timeLabel string) string {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/pets/"+petID+"/appointments", userID, "", map[string]any{
		"date":   day,
		"time":   timeLabel,
		"reason": "Vaccination",
		"vet":    "Dr. Vega",
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 book, got %d body=%s", st, string(body))
	}

	var out map[string]any
	mustDecode(t, body, &out)
	id, _ := out["id"].(string)
	if id == "" {
		t.Fatalf("missing appointment id in response: %s", string(body))
	}
	return id
}

func doReq(t *testing.T, baseURL, method, path, debugUserID, debugRole string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if debugUserID != "" {
		req.Header.Set("X-Debug-User-ID", debugUserID)
	}
	if debugRole != "" {
		req.Header.Set("X-Debug-Role", debugRole)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody
}

func mustDecode(t *testing.T, body []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode %s: %v", string(body), err)
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
