package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded Repository with the same constraint
// behavior as the Postgres one, including the uniqueness rules on token,
// (date, daily number) and (patient, date) over active reservations. Used
// by the test suites and runnable without external services.
type MemoryRepository struct {
	mu           sync.Mutex
	slots        map[uuid.UUID]*Slot
	reservations map[uuid.UUID]*Reservation
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots:        make(map[uuid.UUID]*Slot),
		reservations: make(map[uuid.UUID]*Reservation),
	}
}

func (m *MemoryRepository) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) ListSlots(_ context.Context, f SlotFilter) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Slot
	for _, s := range m.slots {
		if f.From != nil && s.Date.Before(DateOf(*f.From)) {
			continue
		}
		if f.To != nil && s.Date.After(DateOf(*f.To)) {
			continue
		}
		if f.ActiveOnly && !s.Active {
			continue
		}
		if f.AvailableOnly && s.AvailableSpots <= 0 {
			continue
		}
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result, nil
}

func (m *MemoryRepository) InsertSlot(_ context.Context, s *Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.slots {
		if existing.Date.Equal(s.Date) && existing.StartTime.Equal(s.StartTime) {
			return ErrDuplicateSlot
		}
	}

	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	m.slots[s.ID] = &cp
	return nil
}

func (m *MemoryRepository) UpdateSlot(_ context.Context, id uuid.UUID, date, start, end time.Time, capacity int) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	taken := s.TakenSpots()
	if capacity < taken {
		return nil, ErrCapacityConflict
	}
	for _, other := range m.slots {
		if other.ID != id && other.Date.Equal(date) && other.StartTime.Equal(start) {
			return nil, ErrDuplicateSlot
		}
	}

	s.Date = date
	s.StartTime = start
	s.EndTime = end
	s.Capacity = capacity
	s.AvailableSpots = capacity - taken
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) DeleteSlot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.AvailableSpots < s.Capacity {
		return ErrSlotInUse
	}
	delete(m.slots, id)
	// Detach history rows the way the schema's ON DELETE SET NULL does.
	for _, r := range m.reservations {
		if r.SlotID == id {
			r.SlotID = uuid.Nil
		}
	}
	return nil
}

func (m *MemoryRepository) ReserveSpot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if !s.Active {
		return ErrSlotInactive
	}
	if s.AvailableSpots <= 0 {
		return ErrNoCapacity
	}
	s.AvailableSpots--
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRepository) ReleaseSpot(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.AvailableSpots < s.Capacity {
		s.AvailableSpots++
	}
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryRepository) DeactivateSlotsBefore(_ context.Context, date time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.slots {
		if s.Active && s.Date.Before(date) {
			s.Active = false
			s.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) CreateReservation(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := 1
	for _, existing := range m.reservations {
		if existing.Token == r.Token {
			return ErrTokenCollision
		}
		if existing.SlotDate.Equal(r.SlotDate) {
			if existing.DailyNumber >= next {
				next = existing.DailyNumber + 1
			}
			if existing.PatientID == r.PatientID && existing.Status.Active() {
				return ErrDuplicateDailyBooking
			}
		}
	}

	now := time.Now()
	r.DailyNumber = next
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := *r
	m.reservations[r.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetReservation(_ context.Context, id uuid.UUID) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) GetReservationByToken(_ context.Context, token string) (*ReservationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.Token == token {
			return m.detailLocked(r), nil
		}
	}
	return nil, ErrReservationNotFound
}

func (m *MemoryRepository) FindActiveReservation(_ context.Context, patientID uuid.UUID, date time.Time) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := DateOf(date)
	for _, r := range m.reservations {
		if r.PatientID == patientID && r.SlotDate.Equal(day) && r.Status.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrReservationNotFound
}

func (m *MemoryRepository) ListPatientReservations(_ context.Context, patientID uuid.UUID, includePast bool, now time.Time) ([]ReservationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := DateOf(now)
	var result []ReservationDetail
	for _, r := range m.reservations {
		if r.PatientID != patientID {
			continue
		}
		if !includePast && r.SlotDate.Before(today) {
			continue
		}
		result = append(result, *m.detailLocked(r))
	}
	sortDetails(result)
	return result, nil
}

func (m *MemoryRepository) ListReservationsByDate(_ context.Context, date *time.Time) ([]ReservationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []ReservationDetail
	for _, r := range m.reservations {
		if date != nil && !r.SlotDate.Equal(DateOf(*date)) {
			continue
		}
		result = append(result, *m.detailLocked(r))
	}
	sortDetails(result)
	return result, nil
}

func (m *MemoryRepository) UpdateReservationStatus(_ context.Context, id uuid.UUID, from, to ReservationStatus) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok || r.Status != from {
		return nil, ErrReservationNotFound
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *MemoryRepository) CancelReservation(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[id]
	if !ok || r.Status != StatusCreated {
		return ErrReservationNotFound
	}

	r.Status = StatusCancelled
	r.UpdatedAt = time.Now()

	if s, ok := m.slots[r.SlotID]; ok && s.AvailableSpots < s.Capacity {
		s.AvailableSpots++
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemoryRepository) detailLocked(r *Reservation) *ReservationDetail {
	d := &ReservationDetail{Reservation: *r}
	if s, ok := m.slots[r.SlotID]; ok {
		cp := *s
		d.Slot = &cp
	}
	return d
}

func sortDetails(list []ReservationDetail) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.SlotDate.Equal(b.SlotDate) {
			return a.SlotDate.Before(b.SlotDate)
		}
		if a.Slot != nil && b.Slot != nil && !a.Slot.StartTime.Equal(b.Slot.StartTime) {
			return a.Slot.StartTime.Before(b.Slot.StartTime)
		}
		return a.DailyNumber < b.DailyNumber
	})
}
