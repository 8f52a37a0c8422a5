package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *SlotService, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	svc := NewService(repo, NewLocalLocker(), NewTokenIssuer(), zap.NewNop())
	slots := NewSlotService(repo, zap.NewNop())
	return svc, slots, repo
}

func mustCreateSlot(t *testing.T, slots *SlotService, day time.Time, hour, capacity int) *Slot {
	t.Helper()
	start := day.Add(time.Duration(hour) * time.Hour)
	slot, err := slots.Create(context.Background(), day, start, start.Add(30*time.Minute), capacity)
	require.NoError(t, err)
	return slot
}

func patient() Identity {
	return Identity{UserID: uuid.New(), Role: RolePatient}
}

func admin() Identity {
	return Identity{UserID: uuid.New(), Role: RoleAdmin}
}

func tomorrow() time.Time {
	return DateOf(time.Now()).AddDate(0, 0, 1)
}

func TestBookConsumesCapacityAndNumbersSequentially(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()
	slot := mustCreateSlot(t, slots, tomorrow(), 9, 2)

	r1, err := svc.Book(ctx, patient(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, r1.DailyNumber)
	assert.Equal(t, StatusCreated, r1.Status)
	assert.NotEmpty(t, r1.Token)

	got, err := slots.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableSpots)

	r2, err := svc.Book(ctx, patient(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, r2.DailyNumber)

	got, err = slots.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableSpots)

	_, err = svc.Book(ctx, patient(), slot.ID)
	assert.ErrorIs(t, err, ErrNoCapacity)
}

func TestBookUnknownAndInactiveSlots(t *testing.T) {
	svc, slots, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, patient(), uuid.New())
	assert.ErrorIs(t, err, ErrSlotNotFound)

	slot := mustCreateSlot(t, slots, tomorrow(), 9, 2)
	_, err = repo.DeactivateSlotsBefore(ctx, tomorrow().AddDate(0, 0, 1))
	require.NoError(t, err)

	_, err = svc.Book(ctx, patient(), slot.ID)
	assert.ErrorIs(t, err, ErrSlotInactive)
}

func TestBookRejectsSecondActiveReservationSameDay(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()
	day := tomorrow()
	s1 := mustCreateSlot(t, slots, day, 9, 2)
	s2 := mustCreateSlot(t, slots, day, 10, 2)

	p := patient()
	_, err := svc.Book(ctx, p, s1.ID)
	require.NoError(t, err)

	_, err = svc.Book(ctx, p, s2.ID)
	assert.ErrorIs(t, err, ErrDuplicateDailyBooking)

	// The failed attempt must not consume capacity on the second slot.
	got, err := slots.Get(ctx, s2.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableSpots)

	// A different day is fine.
	s3 := mustCreateSlot(t, slots, day.AddDate(0, 0, 1), 9, 2)
	_, err = svc.Book(ctx, p, s3.ID)
	assert.NoError(t, err)
}

func TestCancelRestoresCapacityOnce(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()
	slot := mustCreateSlot(t, slots, tomorrow(), 9, 2)

	p := patient()
	r, err := svc.Book(ctx, p, slot.ID)
	require.NoError(t, err)

	got, _ := slots.Get(ctx, slot.ID)
	require.Equal(t, 1, got.AvailableSpots)

	require.NoError(t, svc.Cancel(ctx, p, r.ID))

	got, _ = slots.Get(ctx, slot.ID)
	assert.Equal(t, 2, got.AvailableSpots)

	err = svc.Cancel(ctx, p, r.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	got, _ = slots.Get(ctx, slot.ID)
	assert.Equal(t, 2, got.AvailableSpots)
}

func TestCancelAuthorization(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()
	slot := mustCreateSlot(t, slots, tomorrow(), 9, 2)

	owner := patient()
	r, err := svc.Book(ctx, owner, slot.ID)
	require.NoError(t, err)

	err = svc.Cancel(ctx, patient(), r.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	assert.NoError(t, svc.Cancel(ctx, admin(), r.ID))
}

func TestConfirmIsTerminalAndKeepsCapacity(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()
	slot := mustCreateSlot(t, slots, tomorrow(), 9, 2)

	p := patient()
	r, err := svc.Book(ctx, p, slot.ID)
	require.NoError(t, err)

	before, _ := slots.Get(ctx, slot.ID)

	confirmed, err := svc.Confirm(ctx, r.Token)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	after, _ := slots.Get(ctx, slot.ID)
	assert.Equal(t, before.AvailableSpots, after.AvailableSpots)

	_, err = svc.Confirm(ctx, r.Token)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)

	err = svc.Cancel(ctx, admin(), r.ID)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)

	final, _ := slots.Get(ctx, slot.ID)
	assert.Equal(t, before.AvailableSpots, final.AvailableSpots)
}

func TestConfirmCancelledReservationFails(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()
	slot := mustCreateSlot(t, slots, tomorrow(), 9, 2)

	p := patient()
	r, err := svc.Book(ctx, p, slot.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, p, r.ID))

	_, err = svc.Confirm(ctx, r.Token)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestDailyNumbersNeverReused(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()
	slot := mustCreateSlot(t, slots, tomorrow(), 9, 3)

	p1 := patient()
	r1, err := svc.Book(ctx, p1, slot.ID)
	require.NoError(t, err)
	require.Equal(t, 1, r1.DailyNumber)

	require.NoError(t, svc.Cancel(ctx, p1, r1.ID))

	r2, err := svc.Book(ctx, patient(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, r2.DailyNumber, "cancelled numbers must not be recycled")
}

func TestLookupByTokenWorksInAnyState(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()
	slot := mustCreateSlot(t, slots, tomorrow(), 9, 2)

	p := patient()
	r, err := svc.Book(ctx, p, slot.ID)
	require.NoError(t, err)

	detail, err := svc.LookupByToken(ctx, r.Token)
	require.NoError(t, err)
	assert.Equal(t, r.ID, detail.ID)
	require.NotNil(t, detail.Slot)
	assert.Equal(t, slot.ID, detail.Slot.ID)

	require.NoError(t, svc.Cancel(ctx, p, r.ID))

	detail, err = svc.LookupByToken(ctx, r.Token)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, detail.Status)

	_, err = svc.LookupByToken(ctx, "no-such-token")
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestListMineFiltersAndOrders(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()

	p := patient()
	d1 := tomorrow()
	d2 := d1.AddDate(0, 0, 1)

	s2 := mustCreateSlot(t, slots, d2, 9, 2)
	s1 := mustCreateSlot(t, slots, d1, 9, 2)

	_, err := svc.Book(ctx, p, s2.ID)
	require.NoError(t, err)
	_, err = svc.Book(ctx, p, s1.ID)
	require.NoError(t, err)

	list, err := svc.ListMine(ctx, p, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, s1.ID, list[0].SlotID)
	assert.Equal(t, s2.ID, list[1].SlotID)
}

func TestConcurrentBookingNeverOversells(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()

	const capacity = 5
	const callers = 20

	slot := mustCreateSlot(t, slots, tomorrow(), 9, capacity)

	var wg sync.WaitGroup
	results := make(chan error, callers)
	numbers := make(chan int, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.Book(ctx, patient(), slot.ID)
			results <- err
			if err == nil {
				numbers <- r.DailyNumber
			}
		}()
	}
	wg.Wait()
	close(results)
	close(numbers)

	var ok, noCapacity int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrNoCapacity):
			noCapacity++
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	assert.Equal(t, capacity, ok)
	assert.Equal(t, callers-capacity, noCapacity)

	got, err := slots.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableSpots)

	seen := make(map[int]bool)
	for n := range numbers {
		assert.False(t, seen[n], "daily number %d assigned twice", n)
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, capacity)
		seen[n] = true
	}
}

func TestConcurrentSamePatientBooksAtMostOnce(t *testing.T) {
	svc, slots, _ := newTestService(t)
	ctx := context.Background()
	day := tomorrow()
	s1 := mustCreateSlot(t, slots, day, 9, 10)
	s2 := mustCreateSlot(t, slots, day, 10, 10)

	p := patient()
	targets := []uuid.UUID{s1.ID, s2.ID}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(slotID uuid.UUID) {
			defer wg.Done()
			if _, err := svc.Book(ctx, p, slotID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(targets[i%2])
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

// stub issuer that returns a scripted sequence of tokens.
type sequenceIssuer struct {
	mu     sync.Mutex
	tokens []string
}

func (s *sequenceIssuer) Issue() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := s.tokens[0]
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
	return tok, nil
}

func TestTokenCollisionRetriesWithFreshToken(t *testing.T) {
	repo := NewMemoryRepository()
	issuer := &sequenceIssuer{tokens: []string{"tok-a", "tok-a", "tok-b"}}
	svc := NewService(repo, NewLocalLocker(), issuer, zap.NewNop())
	slots := NewSlotService(repo, zap.NewNop())
	ctx := context.Background()

	slot := mustCreateSlot(t, slots, tomorrow(), 9, 5)

	r1, err := svc.Book(ctx, patient(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-a", r1.Token)

	// Second booking first draws the colliding token, then the fresh one.
	r2, err := svc.Book(ctx, patient(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-b", r2.Token)
}

// failingCreateRepo makes reservation inserts fail to exercise the
// compensating release.
type failingCreateRepo struct {
	*MemoryRepository
}

func (f *failingCreateRepo) CreateReservation(context.Context, *Reservation) error {
	return errors.New("storage write failed")
}

func TestFailedInsertReleasesReservedSpot(t *testing.T) {
	repo := &failingCreateRepo{MemoryRepository: NewMemoryRepository()}
	svc := NewService(repo, NewLocalLocker(), NewTokenIssuer(), zap.NewNop())
	slots := NewSlotService(repo.MemoryRepository, zap.NewNop())
	ctx := context.Background()

	slot := mustCreateSlot(t, slots, tomorrow(), 9, 2)

	_, err := svc.Book(ctx, patient(), slot.ID)
	require.Error(t, err)

	got, err := slots.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableSpots, "spot must be released when the insert fails")
}
