package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertTestSlot(t *testing.T, repo *MemoryRepository, day time.Time, hour, capacity int) *Slot {
	t.Helper()
	start := day.Add(time.Duration(hour) * time.Hour)
	slot := &Slot{
		ID:             uuid.New(),
		Date:           day,
		StartTime:      start,
		EndTime:        start.Add(30 * time.Minute),
		Capacity:       capacity,
		AvailableSpots: capacity,
		Active:         true,
	}
	require.NoError(t, repo.InsertSlot(context.Background(), slot))
	return slot
}

func TestRepositoryAssignsIncreasingDailyNumbersPerDate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	d1 := tomorrow()
	d2 := d1.AddDate(0, 0, 1)
	s1 := insertTestSlot(t, repo, d1, 9, 10)
	s2 := insertTestSlot(t, repo, d2, 9, 10)

	for i := 1; i <= 3; i++ {
		r := &Reservation{
			ID:        uuid.New(),
			PatientID: uuid.New(),
			SlotID:    s1.ID,
			SlotDate:  d1,
			Token:     uuid.NewString(),
			Status:    StatusCreated,
		}
		require.NoError(t, repo.CreateReservation(ctx, r))
		assert.Equal(t, i, r.DailyNumber)
	}

	// Numbers restart per calendar date.
	r := &Reservation{
		ID:        uuid.New(),
		PatientID: uuid.New(),
		SlotID:    s2.ID,
		SlotDate:  d2,
		Token:     uuid.NewString(),
		Status:    StatusCreated,
	}
	require.NoError(t, repo.CreateReservation(ctx, r))
	assert.Equal(t, 1, r.DailyNumber)
}

func TestRepositoryRejectsDuplicateToken(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	day := tomorrow()
	slot := insertTestSlot(t, repo, day, 9, 10)

	first := &Reservation{
		ID: uuid.New(), PatientID: uuid.New(), SlotID: slot.ID,
		SlotDate: day, Token: "same-token", Status: StatusCreated,
	}
	require.NoError(t, repo.CreateReservation(ctx, first))

	dupe := &Reservation{
		ID: uuid.New(), PatientID: uuid.New(), SlotID: slot.ID,
		SlotDate: day, Token: "same-token", Status: StatusCreated,
	}
	assert.ErrorIs(t, repo.CreateReservation(ctx, dupe), ErrTokenCollision)
}

func TestRepositoryEnforcesOneActivePerPatientPerDay(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	day := tomorrow()
	s1 := insertTestSlot(t, repo, day, 9, 10)
	s2 := insertTestSlot(t, repo, day, 10, 10)

	patientID := uuid.New()
	first := &Reservation{
		ID: uuid.New(), PatientID: patientID, SlotID: s1.ID,
		SlotDate: day, Token: uuid.NewString(), Status: StatusCreated,
	}
	require.NoError(t, repo.CreateReservation(ctx, first))

	// Even on a different slot, same date is a constraint violation.
	second := &Reservation{
		ID: uuid.New(), PatientID: patientID, SlotID: s2.ID,
		SlotDate: day, Token: uuid.NewString(), Status: StatusCreated,
	}
	assert.ErrorIs(t, repo.CreateReservation(ctx, second), ErrDuplicateDailyBooking)

	// After cancellation the constraint no longer binds.
	require.NoError(t, repo.CancelReservation(ctx, first.ID))
	assert.NoError(t, repo.CreateReservation(ctx, second))
	assert.Equal(t, 2, second.DailyNumber)
}

func TestRepositoryStatusTransitionIsCompareAndSet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	day := tomorrow()
	slot := insertTestSlot(t, repo, day, 9, 10)

	r := &Reservation{
		ID: uuid.New(), PatientID: uuid.New(), SlotID: slot.ID,
		SlotDate: day, Token: uuid.NewString(), Status: StatusCreated,
	}
	require.NoError(t, repo.CreateReservation(ctx, r))

	updated, err := repo.UpdateReservationStatus(ctx, r.ID, StatusCreated, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	// Wrong from-state matches nothing.
	_, err = repo.UpdateReservationStatus(ctx, r.ID, StatusCreated, StatusConfirmed)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestRepositoryCancelPairsReleaseWithTransition(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	day := tomorrow()
	slot := insertTestSlot(t, repo, day, 9, 2)

	require.NoError(t, repo.ReserveSpot(ctx, slot.ID))
	r := &Reservation{
		ID: uuid.New(), PatientID: uuid.New(), SlotID: slot.ID,
		SlotDate: day, Token: uuid.NewString(), Status: StatusCreated,
	}
	require.NoError(t, repo.CreateReservation(ctx, r))

	require.NoError(t, repo.CancelReservation(ctx, r.ID))

	got, err := repo.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableSpots)

	stored, err := repo.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)

	// Cancelling again must not release another spot.
	assert.ErrorIs(t, repo.CancelReservation(ctx, r.ID), ErrReservationNotFound)
	got, _ = repo.GetSlot(ctx, slot.ID)
	assert.Equal(t, 2, got.AvailableSpots)
}

func TestRepositoryDeleteSlotDetachesCancelledHistory(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	day := tomorrow()
	slot := insertTestSlot(t, repo, day, 9, 2)

	require.NoError(t, repo.ReserveSpot(ctx, slot.ID))
	r := &Reservation{
		ID: uuid.New(), PatientID: uuid.New(), SlotID: slot.ID,
		SlotDate: day, Token: uuid.NewString(), Status: StatusCreated,
	}
	require.NoError(t, repo.CreateReservation(ctx, r))
	require.NoError(t, repo.CancelReservation(ctx, r.ID))

	// All spots free again, so the slot is deletable despite the
	// surviving cancelled row.
	require.NoError(t, repo.DeleteSlot(ctx, slot.ID))

	detail, err := repo.GetReservationByToken(ctx, r.Token)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, detail.SlotID)
	assert.Nil(t, detail.Slot)
	assert.Equal(t, StatusCancelled, detail.Status)

	// The detached row still anchors daily numbering for its date.
	other := insertTestSlot(t, repo, day, 10, 2)
	next := &Reservation{
		ID: uuid.New(), PatientID: uuid.New(), SlotID: other.ID,
		SlotDate: day, Token: uuid.NewString(), Status: StatusCreated,
	}
	require.NoError(t, repo.CreateReservation(ctx, next))
	assert.Equal(t, 2, next.DailyNumber)
}

func TestRepositoryListsBreakTiesByDailyNumber(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	day := tomorrow()
	slot := insertTestSlot(t, repo, day, 9, 5)

	patientID := uuid.New()
	first := &Reservation{
		ID: uuid.New(), PatientID: patientID, SlotID: slot.ID,
		SlotDate: day, Token: uuid.NewString(), Status: StatusCreated,
	}
	require.NoError(t, repo.CreateReservation(ctx, first))
	require.NoError(t, repo.CancelReservation(ctx, first.ID))

	// Rebooking the same slot gives the patient two rows with identical
	// date and start time; the daily number decides their order.
	second := &Reservation{
		ID: uuid.New(), PatientID: patientID, SlotID: slot.ID,
		SlotDate: day, Token: uuid.NewString(), Status: StatusCreated,
	}
	require.NoError(t, repo.CreateReservation(ctx, second))

	list, err := repo.ListPatientReservations(ctx, patientID, true, time.Now())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	byDate, err := repo.ListReservationsByDate(ctx, &day)
	require.NoError(t, err)
	require.Len(t, byDate, 2)
	assert.Equal(t, 1, byDate[0].DailyNumber)
	assert.Equal(t, 2, byDate[1].DailyNumber)
}

func TestRepositoryReserveAndReleaseBounds(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	slot := insertTestSlot(t, repo, tomorrow(), 9, 1)

	require.NoError(t, repo.ReserveSpot(ctx, slot.ID))
	assert.ErrorIs(t, repo.ReserveSpot(ctx, slot.ID), ErrNoCapacity)

	require.NoError(t, repo.ReleaseSpot(ctx, slot.ID))
	// Release is capped at capacity.
	require.NoError(t, repo.ReleaseSpot(ctx, slot.ID))

	got, err := repo.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableSpots)
}
