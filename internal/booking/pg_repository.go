package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Unique constraint names from the migrations, used to translate commit-time
// clashes into domain errors.
const (
	constraintSlotDateStart = "uq_time_slots_date_start"
	constraintToken         = "uq_reservations_token"
	constraintDateNumber    = "uq_reservations_date_number"
	constraintPatientPerDay = "uq_reservations_patient_active"
	uniqueViolationCode     = "23505"
	fkViolationCode         = "23503"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Capacity,
		&s.AvailableSpots,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	var slotID uuid.NullUUID
	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&slotID,
		&r.SlotDate,
		&r.DailyNumber,
		&r.Token,
		&r.Status,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	r.SlotID = slotID.UUID
	return &r, nil
}

func scanReservationDetail(row pgx.Row) (*ReservationDetail, error) {
	var d ReservationDetail
	var slotID uuid.NullUUID
	// Slot columns come from a left join and are null once the slot row
	// itself has been deleted.
	var (
		sID        uuid.NullUUID
		sDate      *time.Time
		sStart     *time.Time
		sEnd       *time.Time
		sCapacity  *int
		sAvailable *int
		sActive    *bool
		sCreatedAt *time.Time
		sUpdatedAt *time.Time
	)
	err := row.Scan(
		&d.ID,
		&d.PatientID,
		&slotID,
		&d.SlotDate,
		&d.DailyNumber,
		&d.Token,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
		&sID,
		&sDate,
		&sStart,
		&sEnd,
		&sCapacity,
		&sAvailable,
		&sActive,
		&sCreatedAt,
		&sUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	d.SlotID = slotID.UUID
	if sID.Valid {
		d.Slot = &Slot{
			ID:             sID.UUID,
			Date:           *sDate,
			StartTime:      *sStart,
			EndTime:        *sEnd,
			Capacity:       *sCapacity,
			AvailableSpots: *sAvailable,
			Active:         *sActive,
			CreatedAt:      *sCreatedAt,
			UpdatedAt:      *sUpdatedAt,
		}
	}
	return &d, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintToken:
		return ErrTokenCollision
	case constraintDateNumber:
		return ErrDailyNumberTaken
	case constraintPatientPerDay:
		return ErrDuplicateDailyBooking
	case constraintSlotDateStart:
		return ErrDuplicateSlot
	}
	return err
}

const slotColumns = "id, slot_date, start_time, end_time, capacity, available_spots, is_active, created_at, updated_at"

const detailColumns = `
	r.id, r.patient_id, r.slot_id, r.slot_date, r.daily_number, r.token, r.status, r.created_at, r.updated_at,
	s.id, s.slot_date, s.start_time, s.end_time, s.capacity, s.available_spots, s.is_active, s.created_at, s.updated_at`

// Slots

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM time_slots
		WHERE 1=1`
	args := []any{}

	if f.From != nil {
		args = append(args, DateOf(*f.From))
		query += fmt.Sprintf(" AND slot_date >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, DateOf(*f.To))
		query += fmt.Sprintf(" AND slot_date <= $%d", len(args))
	}
	if f.ActiveOnly {
		query += " AND is_active"
	}
	if f.AvailableOnly {
		query += " AND available_spots > 0"
	}
	query += " ORDER BY slot_date, start_time"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertSlot(ctx context.Context, s *Slot) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO time_slots (id, slot_date, start_time, end_time, capacity, available_spots, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`, s.ID, s.Date, s.StartTime, s.EndTime, s.Capacity, s.AvailableSpots, s.Active)

	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (r *PgRepository) UpdateSlot(ctx context.Context, id uuid.UUID, date, start, end time.Time, capacity int) (*Slot, error) {
	// Right-hand column references read the pre-update row, so taken
	// spots (capacity - available_spots) carry over unchanged.
	row := r.pool.QueryRow(ctx, `
		UPDATE time_slots
		SET slot_date = $2,
		    start_time = $3,
		    end_time = $4,
		    available_spots = $5 - (capacity - available_spots),
		    capacity = $5,
		    updated_at = now()
		WHERE id = $1
		  AND capacity - available_spots <= $5
		RETURNING `+slotColumns+`
	`, id, date, start, end, capacity)

	s, err := scanSlot(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSlotNotFound) {
		return nil, mapUniqueViolation(err)
	}

	// No row matched: missing slot or a capacity below taken spots.
	if _, getErr := r.GetSlot(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrCapacityConflict
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	// The ON DELETE SET NULL on reservations.slot_id detaches cancelled
	// history rows; active reservations hold spots and keep the guard
	// below from matching.
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM time_slots
		WHERE id = $1
		  AND available_spots = capacity
	`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == fkViolationCode {
			return ErrSlotInUse
		}
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, getErr := r.GetSlot(ctx, id); getErr != nil {
		return getErr
	}
	return ErrSlotInUse
}

func (r *PgRepository) ReserveSpot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET available_spots = available_spots - 1,
		    updated_at = now()
		WHERE id = $1
		  AND is_active
		  AND available_spots > 0
	`, id)
	if err != nil {
		return fmt.Errorf("reserve spot: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	slot, getErr := r.GetSlot(ctx, id)
	if getErr != nil {
		return getErr
	}
	if !slot.Active {
		return ErrSlotInactive
	}
	return ErrNoCapacity
}

func (r *PgRepository) ReleaseSpot(ctx context.Context, id uuid.UUID) error {
	return releaseSpot(ctx, r.pool, id)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func releaseSpot(ctx context.Context, db execer, id uuid.UUID) error {
	tag, err := db.Exec(ctx, `
		UPDATE time_slots
		SET available_spots = LEAST(available_spots + 1, capacity),
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("release spot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) DeactivateSlotsBefore(ctx context.Context, date time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET is_active = false,
		    updated_at = now()
		WHERE is_active
		  AND slot_date < $1
	`, date)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Reservations

func (r *PgRepository) CreateReservation(ctx context.Context, res *Reservation) error {
	// Daily number assignment and insert are one statement; the unique
	// index on (slot_date, daily_number) turns a concurrent clash into
	// ErrDailyNumberTaken, which the service retries.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO reservations (id, patient_id, slot_id, slot_date, daily_number, token, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(daily_number), 0) + 1 FROM reservations WHERE slot_date = $4),
			$5, $6, now(), now())
		RETURNING daily_number, created_at, updated_at
	`, res.ID, res.PatientID, res.SlotID, res.SlotDate, res.Token, res.Status)

	if err := row.Scan(&res.DailyNumber, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (r *PgRepository) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, slot_id, slot_date, daily_number, token, status, created_at, updated_at
		FROM reservations
		WHERE id = $1
	`, id)
	return scanReservation(row)
}

func (r *PgRepository) GetReservationByToken(ctx context.Context, token string) (*ReservationDetail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+detailColumns+`
		FROM reservations r
		LEFT JOIN time_slots s ON s.id = r.slot_id
		WHERE r.token = $1
	`, token)
	return scanReservationDetail(row)
}

func (r *PgRepository) FindActiveReservation(ctx context.Context, patientID uuid.UUID, date time.Time) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, slot_id, slot_date, daily_number, token, status, created_at, updated_at
		FROM reservations
		WHERE patient_id = $1
		  AND slot_date = $2
		  AND status IN ('created', 'confirmed')
		LIMIT 1
	`, patientID, DateOf(date))
	return scanReservation(row)
}

func (r *PgRepository) ListPatientReservations(ctx context.Context, patientID uuid.UUID, includePast bool, now time.Time) ([]ReservationDetail, error) {
	query := `
		SELECT ` + detailColumns + `
		FROM reservations r
		LEFT JOIN time_slots s ON s.id = r.slot_id
		WHERE r.patient_id = $1`
	args := []any{patientID}

	if !includePast {
		args = append(args, DateOf(now))
		query += fmt.Sprintf(" AND r.slot_date >= $%d", len(args))
	}
	query += " ORDER BY r.slot_date, s.start_time, r.daily_number"

	return r.queryDetails(ctx, query, args...)
}

func (r *PgRepository) ListReservationsByDate(ctx context.Context, date *time.Time) ([]ReservationDetail, error) {
	query := `
		SELECT ` + detailColumns + `
		FROM reservations r
		LEFT JOIN time_slots s ON s.id = r.slot_id`
	args := []any{}

	if date != nil {
		args = append(args, DateOf(*date))
		query += " WHERE r.slot_date = $1"
	}
	query += " ORDER BY r.slot_date, s.start_time, r.daily_number"

	return r.queryDetails(ctx, query, args...)
}

func (r *PgRepository) queryDetails(ctx context.Context, query string, args ...any) ([]ReservationDetail, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReservationDetail
	for rows.Next() {
		d, err := scanReservationDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to ReservationStatus) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE reservations
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, patient_id, slot_id, slot_date, daily_number, token, status, created_at, updated_at
	`, id, to, from)
	return scanReservation(row)
}

func (r *PgRepository) CancelReservation(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var slotID uuid.NullUUID
	err = tx.QueryRow(ctx, `
		UPDATE reservations
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'created'
		RETURNING slot_id
	`, id).Scan(&slotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReservationNotFound
		}
		return fmt.Errorf("mark reservation cancelled: %w", err)
	}

	if slotID.Valid {
		if err := releaseSpot(ctx, tx, slotID.UUID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
