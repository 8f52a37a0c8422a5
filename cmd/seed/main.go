package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kosukekita/Clinic-Reservation/internal/booking"
	"github.com/kosukekita/Clinic-Reservation/internal/config"
	"github.com/kosukekita/Clinic-Reservation/internal/db"
	"github.com/kosukekita/Clinic-Reservation/internal/logging"
)

// Seeds a schedule of clinic slots: every weekday over the horizon gets
// half-hour slots between the opening hours. This plays the role of the
// external slot-template generator and only talks to the engine through
// the slot creation contract.
func main() {
	days := flag.Int("days", 14, "how many days ahead to create slots for")
	openHour := flag.Int("open", 17, "first slot hour (24h clock)")
	closeHour := flag.Int("close", 19, "hour after the last slot")
	book := flag.Int("book", 0, "number of fake patient bookings to place")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("seed starting", zap.Int("days", *days))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	if err := db.Migrate(ctx, pgPool); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	repo := booking.NewPgRepository(pgPool)
	slots := booking.NewSlotService(repo, logger)

	created, err := seedSlots(ctx, slots, *days, *openHour, *closeHour)
	if err != nil {
		logger.Fatal("seed slots", zap.Error(err))
	}
	logger.Info("slots seeded", zap.Int("created", len(created)))

	if *book > 0 {
		reservations := booking.NewService(repo, booking.NewLocalLocker(), booking.NewTokenIssuer(), logger)
		placed := seedBookings(ctx, reservations, created, *book, logger)
		logger.Info("fake bookings placed", zap.Int("placed", placed))
	}

	logger.Info("seed complete")
}

func seedSlots(ctx context.Context, slots *booking.SlotService, days, openHour, closeHour int) ([]booking.Slot, error) {
	var created []booking.Slot

	day := booking.DateOf(time.Now())
	for i := 0; i < days; i++ {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		for hour := openHour; hour < closeHour; hour++ {
			for _, minute := range []int{0, 30} {
				start := day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
				end := start.Add(30 * time.Minute)
				capacity := gofakeit.Number(1, 3)

				slot, err := slots.Create(ctx, day, start, end, capacity)
				if err != nil {
					if errors.Is(err, booking.ErrDuplicateSlot) {
						continue
					}
					return nil, err
				}
				created = append(created, *slot)
			}
		}
	}
	return created, nil
}

func seedBookings(ctx context.Context, svc *booking.Service, slots []booking.Slot, count int, logger *zap.Logger) int {
	placed := 0
	for i := 0; i < count && len(slots) > 0; i++ {
		slot := slots[gofakeit.Number(0, len(slots)-1)]
		ident := booking.Identity{
			UserID: uuid.New(),
			Role:   booking.RolePatient,
		}

		if _, err := svc.Book(ctx, ident, slot.ID); err != nil {
			logger.Debug("fake booking skipped", zap.Error(err))
			continue
		}
		placed++
	}
	return placed
}
