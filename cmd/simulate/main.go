package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// A small load driver for the booking API: a pool of fake patients hammers
// the reservation endpoint concurrently so overselling and duplicate-day
// violations would show up as miscounts in the summary.
type simMetrics struct {
	total    int64
	created  int64
	conflict int64
	errored  int64
}

func (m *simMetrics) record(status int) {
	atomic.AddInt64(&m.total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.created, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.conflict, 1)
	default:
		atomic.AddInt64(&m.errored, 1)
	}
}

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:8080", "API base URL")
	workers := flag.Int("workers", 20, "concurrent workers")
	patients := flag.Int("patients", 50, "size of the fake patient pool")
	duration := flag.Duration("duration", 30*time.Second, "how long to run")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	slots, err := fetchSlots(*baseURL)
	if err != nil {
		log.Fatalf("fetch slots: %v", err)
	}
	if len(slots) == 0 {
		log.Fatal("no bookable slots; run cmd/seed first")
	}
	log.Printf("loaded %d slots, starting %d workers for %s", len(slots), *workers, *duration)

	pool := make([]uuid.UUID, *patients)
	for i := range pool {
		pool[i] = uuid.New()
	}

	var metrics simMetrics
	deadline := time.Now().Add(*duration)

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			client := &http.Client{Timeout: 5 * time.Second}

			for time.Now().Before(deadline) {
				patient := pool[rng.Intn(len(pool))]
				slot := slots[rng.Intn(len(slots))]
				status, err := book(client, *baseURL, patient, slot)
				if err != nil {
					atomic.AddInt64(&metrics.total, 1)
					atomic.AddInt64(&metrics.errored, 1)
					continue
				}
				metrics.record(status)
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	fmt.Printf("total=%d created=%d conflict=%d error=%d\n",
		metrics.total, metrics.created, metrics.conflict, metrics.errored)
}

type slotListItem struct {
	ID uuid.UUID `json:"id"`
}

func fetchSlots(baseURL string) ([]slotListItem, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/slots?available_only=true", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-User-Id", uuid.NewString())
	req.Header.Set("X-User-Role", "patient")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list slots: status %d: %s", resp.StatusCode, body)
	}

	var slots []slotListItem
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func book(client *http.Client, baseURL string, patient uuid.UUID, slot slotListItem) (int, error) {
	payload, _ := json.Marshal(map[string]string{"slot_id": slot.ID.String()})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/reservations", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", patient.String())
	req.Header.Set("X-User-Role", "patient")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
