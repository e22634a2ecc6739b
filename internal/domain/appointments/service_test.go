package appointments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

type testRepo struct {
	perPet map[Ref]Appointment
	mirror map[string]Appointment

	listMirrorErr   error
	createMirrorErr error

	// corre una vez, con el resultado de ListMirror ya calculado
	afterListMirror func()
}

func newTestRepo() *testRepo {
	return &testRepo{
		perPet: map[Ref]Appointment{},
		mirror: map[string]Appointment{},
	}
}

func (r *testRepo) CreateForPet(_ context.Context, a Appointment) error {
	if _, ok := r.perPet[a.Ref()]; ok {
		return errors.New("repo: already exists")
	}
	r.perPet[a.Ref()] = a
	return nil
}

func (r *testRepo) CreateMirror(_ context.Context, a Appointment) error {
	if r.createMirrorErr != nil {
		return r.createMirrorErr
	}
	r.mirror[a.ID] = a
	return nil
}

func (r *testRepo) GetForPet(_ context.Context, ref Ref) (Appointment, error) {
	a, ok := r.perPet[ref]
	if !ok {
		return Appointment{}, fmt.Errorf("repo: %w", ErrNotFound)
	}
	return a, nil
}

func (r *testRepo) GetMirror(_ context.Context, id string) (Appointment, error) {
	a, ok := r.mirror[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (r *testRepo) UpdateForPet(_ context.Context, a Appointment) error {
	if _, ok := r.perPet[a.Ref()]; !ok {
		return ErrNotFound
	}
	r.perPet[a.Ref()] = a
	return nil
}

func (r *testRepo) UpdateMirror(_ context.Context, a Appointment) error {
	if _, ok := r.mirror[a.ID]; !ok {
		return ErrNotFound
	}
	r.mirror[a.ID] = a
	return nil
}

func (r *testRepo) ListForPet(_ context.Context, userID, petID string) ([]Appointment, error) {
	out := make([]Appointment, 0)
	for ref, a := range r.perPet {
		if ref.UserID == userID && ref.PetID == petID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *testRepo) ListMirror(_ context.Context, f MirrorFilter) ([]Appointment, error) {
	if r.listMirrorErr != nil {
		return nil, r.listMirrorErr
	}
	out := make([]Appointment, 0)
	for _, a := range r.mirror {
		if f.Date != "" && a.Date != f.Date {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	if hook := r.afterListMirror; hook != nil {
		r.afterListMirror = nil
		hook()
	}
	return out, nil
}

func (r *testRepo) ListAwaitingMigration(_ context.Context) ([]Appointment, error) {
	out := make([]Appointment, 0)
	for _, a := range r.perPet {
		if a.Status.IsCompleted() && !a.MovedToHistory {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *testRepo) ListMigrated(_ context.Context) ([]Appointment, error) {
	out := make([]Appointment, 0)
	for _, a := range r.perPet {
		if a.Status.IsCompleted() && a.MovedToHistory {
			out = append(out, a)
		}
	}
	return out, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, x := range list {
		if x == s.Normalize() {
			return true
		}
	}
	return false
}

// atomicRepo simula un backend transaccional donde otro cliente ganó el turno.
type atomicRepo struct {
	*testRepo
	takenByOther map[string]bool // "date|time"
	calls        int
}

func (r *atomicRepo) BookAtomic(ctx context.Context, a Appointment) error {
	r.calls++
	if r.takenByOther[a.Date+"|"+a.Time] {
		return fmt.Errorf("unique violation: %w", ErrSlotTaken)
	}
	if err := r.CreateForPet(ctx, a); err != nil {
		return err
	}
	return r.CreateMirror(ctx, a)
}

type recordingReminder struct {
	mu    sync.Mutex
	items []Appointment
}

func (r *recordingReminder) Remind(_ context.Context, a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, a)
}

type mapCache struct {
	byDate      map[string][]string
	invalidated []string
}

func newMapCache() *mapCache { return &mapCache{byDate: map[string][]string{}} }

func (c *mapCache) Get(date string) ([]string, bool) {
	v, ok := c.byDate[date]
	return v, ok
}

func (c *mapCache) Put(date string, taken []string) { c.byDate[date] = taken }

func (c *mapCache) Invalidate(date string) {
	delete(c.byDate, date)
	c.invalidated = append(c.invalidated, date)
}

func newTestService(repo Repository, opts ...Option) *Service {
	svc := NewService(repo, opts...)
	fixed := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	svc.now = func() time.Time {
		n++
		return fixed.Add(time.Duration(n) * time.Second)
	}
	ids := 0
	svc.newID = func() string {
		ids++
		return fmt.Sprintf("apt-%d", ids)
	}
	return svc
}

func bookInput(date, slot string) BookInput {
	return BookInput{Date: date, Time: slot, Reason: "Checkup"}
}

// -------------------------
// Tests
// -------------------------

func TestBook_WritesBothRecordsWithSameID(t *testing.T) {
	repo := newTestRepo()
	rem := &recordingReminder{}
	svc := newTestService(repo, WithReminder(rem))

	a, err := svc.Book(context.Background(), "alice", "rex", BookInput{
		Date:   "07/04/2025",
		Time:   "10:00 AM",
		Reason: " Checkup ",
		Vet:    "Dr. Vega",
	})
	require.NoError(t, err)

	assert.Equal(t, "apt-1", a.ID)
	assert.Equal(t, StatusScheduled, a.Status)
	assert.Equal(t, "Checkup", a.Reason)
	assert.False(t, a.Hidden)
	assert.False(t, a.MovedToHistory)

	perPet, err := repo.GetForPet(context.Background(), Ref{UserID: "alice", PetID: "rex", ID: a.ID})
	require.NoError(t, err)
	mirror, err := repo.GetMirror(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, perPet, mirror)

	require.Len(t, rem.items, 1)
	assert.Equal(t, a.ID, rem.items[0].ID)
}

func TestBook_SecondBookingSameSlotConflicts(t *testing.T) {
	repo := newTestRepo()
	rem := &recordingReminder{}
	svc := newTestService(repo, WithReminder(rem))
	ctx := context.Background()

	_, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "10:00 AM"))
	require.NoError(t, err)

	_, err = svc.Book(ctx, "bob", "luna", bookInput("07/04/2025", "10:00 AM"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlotConflict)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"10:00 AM"}, conflict.Availability.Taken)
	assert.Len(t, conflict.Availability.Available, 8)
	assert.NotContains(t, conflict.Availability.Available, "10:00 AM")

	// sin escrituras nuevas ni recordatorio extra
	assert.Len(t, repo.perPet, 1)
	assert.Len(t, repo.mirror, 1)
	assert.Len(t, rem.items, 1)
}

func TestBook_OtherDateNotAffected(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "10:00 AM"))
	require.NoError(t, err)

	_, err = svc.Book(ctx, "alice", "rex", bookInput("07/05/2025", "10:00 AM"))
	require.NoError(t, err)
}

func TestBook_InvalidInput(t *testing.T) {
	svc := newTestService(newTestRepo())
	ctx := context.Background()

	cases := []struct {
		name   string
		userID string
		petID  string
		in     BookInput
	}{
		{"missing user", "", "rex", bookInput("07/04/2025", "10:00 AM")},
		{"missing pet", "alice", " ", bookInput("07/04/2025", "10:00 AM")},
		{"missing date", "alice", "rex", bookInput("", "10:00 AM")},
		{"missing reason", "alice", "rex", BookInput{Date: "07/04/2025", Time: "10:00 AM"}},
		{"not a catalog slot", "alice", "rex", bookInput("07/04/2025", "10:30 AM")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Book(ctx, tc.userID, tc.petID, tc.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestBook_CancelledSlotIsFreeAgain(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "10:00 AM"))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, a.Ref())
	require.NoError(t, err)

	av := svc.Availability(ctx, "07/04/2025")
	assert.Empty(t, av.Taken)
	assert.Len(t, av.Available, 9)

	_, err = svc.Book(ctx, "bob", "luna", bookInput("07/04/2025", "10:00 AM"))
	require.NoError(t, err)
}

func TestAvailability_FailsOpenOnReadError(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "10:00 AM"))
	require.NoError(t, err)

	repo.listMirrorErr = errors.New("store unavailable")

	av := svc.Availability(ctx, "07/04/2025")
	assert.Empty(t, av.Taken)
	assert.Equal(t, AllTimeSlots(), av.Available)
	assert.Empty(t, svc.TakenSlots(ctx, "07/04/2025"))
}

func TestBook_ProceedsWhenAvailabilityReadFails(t *testing.T) {
	repo := newTestRepo()
	repo.listMirrorErr = errors.New("store unavailable")
	svc := newTestService(repo)

	a, err := svc.Book(context.Background(), "alice", "rex", bookInput("07/04/2025", "11:00 AM"))
	require.NoError(t, err)
	assert.Contains(t, repo.mirror, a.ID)
}

func TestBook_MirrorFailureLeavesOrphanAndReportsStoreWrite(t *testing.T) {
	repo := newTestRepo()
	repo.createMirrorErr = errors.New("disk full")
	rem := &recordingReminder{}
	svc := newTestService(repo, WithReminder(rem))

	_, err := svc.Book(context.Background(), "alice", "rex", bookInput("07/04/2025", "10:00 AM"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreWrite)

	assert.Len(t, repo.perPet, 1)
	assert.Empty(t, repo.mirror)
	assert.Empty(t, rem.items)
}

func TestBook_AtomicBackendLostRaceReturnsConflict(t *testing.T) {
	repo := &atomicRepo{
		testRepo:     newTestRepo(),
		takenByOther: map[string]bool{"07/04/2025|02:00 PM": true},
	}
	svc := newTestService(repo)

	_, err := svc.Book(context.Background(), "alice", "rex", bookInput("07/04/2025", "02:00 PM"))
	require.Error(t, err)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Contains(t, conflict.Availability.Taken, "02:00 PM")
	assert.NotContains(t, conflict.Availability.Available, "02:00 PM")
	assert.Equal(t, 1, repo.calls)
	assert.Empty(t, repo.perPet)
}

func TestBook_AtomicBackendHappyPath(t *testing.T) {
	repo := &atomicRepo{testRepo: newTestRepo(), takenByOther: map[string]bool{}}
	svc := newTestService(repo)

	a, err := svc.Book(context.Background(), "alice", "rex", bookInput("07/04/2025", "02:00 PM"))
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)
	assert.Contains(t, repo.mirror, a.ID)
}

func TestAvailability_UsesCacheAndBookInvalidates(t *testing.T) {
	repo := newTestRepo()
	cache := newMapCache()
	svc := newTestService(repo, WithCache(cache))
	ctx := context.Background()

	av := svc.Availability(ctx, "07/04/2025")
	assert.Empty(t, av.Taken)
	_, cached := cache.Get("07/04/2025")
	require.True(t, cached)

	// Book nunca lee del cache: el valor obsoleto no esconde el conflicto
	_, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "09:00 AM"))
	require.NoError(t, err)
	assert.Contains(t, cache.invalidated, "07/04/2025")

	cache.Put("07/04/2025", nil)
	_, err = svc.Book(ctx, "bob", "luna", bookInput("07/04/2025", "09:00 AM"))
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestAvailability_FailedReadNotCached(t *testing.T) {
	repo := newTestRepo()
	repo.listMirrorErr = errors.New("store unavailable")
	cache := newMapCache()
	svc := newTestService(repo, WithCache(cache))

	_ = svc.Availability(context.Background(), "07/04/2025")

	_, ok := cache.Get("07/04/2025")
	assert.False(t, ok)
}

func TestAvailability_StaleReadNotCachedAfterBook(t *testing.T) {
	repo := newTestRepo()
	cache := newMapCache()
	svc := newTestService(repo, WithCache(cache))
	ctx := context.Background()

	// la reserva se confirma mientras la lectura de disponibilidad está en vuelo
	repo.afterListMirror = func() {
		_, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "09:00 AM"))
		require.NoError(t, err)
	}

	av := svc.Availability(ctx, "07/04/2025")
	assert.NotContains(t, av.Taken, "09:00 AM")
	_, cached := cache.Get("07/04/2025")
	assert.False(t, cached)

	av = svc.Availability(ctx, "07/04/2025")
	assert.Contains(t, av.Taken, "09:00 AM")
}

func TestTransitions_TerminalStatesAreFinal(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "10:00 AM"))
	require.NoError(t, err)

	p, err := svc.MarkPending(ctx, a.Ref())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, StatusPending, repo.mirror[a.ID].Status)

	c, err := svc.Cancel(ctx, a.Ref())
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, c.Status)

	// idempotente
	_, err = svc.Cancel(ctx, a.Ref())
	require.NoError(t, err)

	_, err = svc.MarkPending(ctx, a.Ref())
	assert.ErrorIs(t, err, ErrBadState)
}

func TestTransition_NotFound(t *testing.T) {
	svc := newTestService(newTestRepo())

	_, err := svc.Cancel(context.Background(), Ref{UserID: "alice", PetID: "rex", ID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatus_PropagatesToPerPetRecord(t *testing.T) {
	repo := newTestRepo()
	cache := newMapCache()
	svc := newTestService(repo, WithCache(cache))
	ctx := context.Background()

	a, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "10:00 AM"))
	require.NoError(t, err)

	got, err := svc.SetStatus(ctx, a.ID, Status("completed"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, StatusCompleted, repo.mirror[a.ID].Status)
	assert.Equal(t, StatusCompleted, repo.perPet[a.Ref()].Status)

	// Completed libera el turno
	assert.Empty(t, svc.TakenSlots(ctx, "07/04/2025"))

	_, err = svc.SetStatus(ctx, a.ID, StatusScheduled)
	assert.ErrorIs(t, err, ErrBadState)

	_, err = svc.SetStatus(ctx, a.ID, Status("bogus"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SetStatus(ctx, "missing", StatusCompleted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListForPet_HidesHiddenAndCancelled(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a1, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "09:00 AM"))
	require.NoError(t, err)
	a2, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "10:00 AM"))
	require.NoError(t, err)
	a3, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "11:00 AM"))
	require.NoError(t, err)
	_, err = svc.Book(ctx, "alice", "other-pet", bookInput("07/04/2025", "12:00 PM"))
	require.NoError(t, err)

	_, err = svc.Hide(ctx, a2.Ref())
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, a3.Ref())
	require.NoError(t, err)

	visible, err := svc.ListForPet(ctx, "alice", "rex", false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, a1.ID, visible[0].ID)

	all, err := svc.ListForPet(ctx, "alice", "rex", true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{a1.ID, a2.ID, a3.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	// hidden sigue ocupando el turno
	_, err = svc.Book(ctx, "bob", "luna", bookInput("07/04/2025", "10:00 AM"))
	assert.ErrorIs(t, err, ErrSlotConflict)
}

func TestMarkMovedToHistory_Idempotent(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.Book(ctx, "alice", "rex", bookInput("07/04/2025", "10:00 AM"))
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, a.ID, StatusCompleted)
	require.NoError(t, err)

	awaiting, err := svc.ListAwaitingMigration(ctx)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)

	require.NoError(t, svc.MarkMovedToHistory(ctx, a.Ref()))
	before := repo.perPet[a.Ref()].UpdatedAt
	require.NoError(t, svc.MarkMovedToHistory(ctx, a.Ref()))
	assert.Equal(t, before, repo.perPet[a.Ref()].UpdatedAt)

	awaiting, err = svc.ListAwaitingMigration(ctx)
	require.NoError(t, err)
	assert.Empty(t, awaiting)

	migrated, err := svc.ListMigrated(ctx)
	require.NoError(t, err)
	require.Len(t, migrated, 1)
	assert.Equal(t, a.ID, migrated[0].ID)
}

func TestBook_ScenarioAliceRexCheckup(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	a, err := svc.Book(ctx, "alice", "rex", BookInput{Date: "12/25/2025", Time: "09:00 AM", Reason: "Checkup"})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, a.Status)

	_, err = svc.Book(ctx, "alice", "rex", BookInput{Date: "12/25/2025", Time: "09:00 AM", Reason: "Checkup"})
	assert.ErrorIs(t, err, ErrSlotConflict)

	committed, err := repo.ListMirror(ctx, MirrorFilter{Date: "12/25/2025", Statuses: OccupyingStatuses()})
	require.NoError(t, err)
	require.Len(t, committed, 1)
	assert.Equal(t, a.ID, committed[0].ID)
}
