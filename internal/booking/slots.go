package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SlotService covers the administrative slot surface. It owns input
// validation; the live-state guards (capacity conflicts, delete-in-use)
// are enforced atomically by the repository.
type SlotService struct {
	repo   Repository
	logger *zap.Logger
}

func NewSlotService(repo Repository, logger *zap.Logger) *SlotService {
	return &SlotService{repo: repo, logger: logger}
}

func (s *SlotService) Get(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.repo.GetSlot(ctx, id)
}

func (s *SlotService) List(ctx context.Context, f SlotFilter) ([]Slot, error) {
	slots, err := s.repo.ListSlots(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// Create opens a new slot with all spots available.
func (s *SlotService) Create(ctx context.Context, date, start, end time.Time, capacity int) (*Slot, error) {
	if err := validateSlotInput(start, end, capacity); err != nil {
		return nil, err
	}

	slot := &Slot{
		ID:             uuid.New(),
		Date:           DateOf(date),
		StartTime:      start,
		EndTime:        end,
		Capacity:       capacity,
		AvailableSpots: capacity,
		Active:         true,
	}

	if err := s.repo.InsertSlot(ctx, slot); err != nil {
		return nil, err
	}

	s.logger.Info("slot created",
		zap.String("slot_id", slot.ID.String()),
		zap.Time("date", slot.Date),
		zap.Int("capacity", capacity))

	return slot, nil
}

// Update rewrites a slot's schedule and capacity. Spots already taken are
// preserved; shrinking capacity below them fails with ErrCapacityConflict.
func (s *SlotService) Update(ctx context.Context, id uuid.UUID, date, start, end time.Time, capacity int) (*Slot, error) {
	if err := validateSlotInput(start, end, capacity); err != nil {
		return nil, err
	}

	slot, err := s.repo.UpdateSlot(ctx, id, DateOf(date), start, end, capacity)
	if err != nil {
		return nil, err
	}

	s.logger.Info("slot updated",
		zap.String("slot_id", id.String()),
		zap.Int("capacity", capacity),
		zap.Int("available_spots", slot.AvailableSpots))

	return slot, nil
}

// Delete removes a slot that has no live reservations.
func (s *SlotService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteSlot(ctx, id); err != nil {
		return err
	}
	s.logger.Info("slot deleted", zap.String("slot_id", id.String()))
	return nil
}

// DeactivatePast marks slots dated before today as inactive so they stop
// showing up as bookable. Called periodically by the maintenance worker.
func (s *SlotService) DeactivatePast(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.DeactivateSlotsBefore(ctx, DateOf(now))
	if err != nil {
		return 0, fmt.Errorf("deactivate past slots: %w", err)
	}
	if n > 0 {
		s.logger.Info("deactivated past slots", zap.Int64("count", n))
	}
	return n, nil
}

func validateSlotInput(start, end time.Time, capacity int) error {
	if !end.After(start) {
		return ErrInvalidRange
	}
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	return nil
}
