package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

// simulate fires concurrent booking requests at the api-server and checks the
// core guarantee afterwards: no slot may collect more than one successful
// booking, however many workers raced for it.

type simConfig struct {
	APIBaseURL string
	Workers    int
	Duration   time.Duration
}

type metrics struct {
	total     int64
	success   int64
	conflict  int64
	errors    int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *metrics) record(latency time.Duration, status int) {
	atomic.AddInt64(&m.total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&m.success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.conflict, 1)
	default:
		atomic.AddInt64(&m.errors, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *metrics) percentile(p int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type slotRef struct {
	ID      uuid.UUID `json:"id"`
	TutorID uuid.UUID `json:"tutor_id"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{
		APIBaseURL: getenv("API_BASE_URL", "http://127.0.0.1:8080"),
		Workers:    getenvInt("SIM_WORKERS", 20),
		Duration:   getenvDuration("SIM_DURATION", 30*time.Second),
	}

	log.Printf("simulate starting base_url=%s workers=%d duration=%s", cfg.APIBaseURL, cfg.Workers, cfg.Duration)

	client := &http.Client{Timeout: 5 * time.Second}

	students, err := makeStudents()
	if err != nil {
		log.Fatalf("prepare students: %v", err)
	}

	slots, err := fetchOpenSlots(client, cfg.APIBaseURL)
	if err != nil {
		log.Fatalf("fetch slots: %v", err)
	}
	if len(slots) == 0 {
		log.Fatal("no available slots; run cmd/seed and the api-server first")
	}
	log.Printf("loaded %d available slots", len(slots))

	var (
		m        metrics
		won      sync.Map // slot id -> success count
		wg       sync.WaitGroup
		deadline = time.Now().Add(cfg.Duration)
	)

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		studentID := students[w%len(students)]

		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				slot := slots[rand.Intn(len(slots))]
				status, took := createBooking(client, cfg.APIBaseURL, studentID, slot)
				m.record(took, status)

				if status == http.StatusCreated {
					v, _ := won.LoadOrStore(slot.ID, new(int64))
					atomic.AddInt64(v.(*int64), 1)
				}
			}
		}()
	}

	wg.Wait()

	doubles := 0
	won.Range(func(_, v any) bool {
		if atomic.LoadInt64(v.(*int64)) > 1 {
			doubles++
		}
		return true
	})

	log.Printf("requests=%d success=%d conflict=%d errors=%d",
		atomic.LoadInt64(&m.total),
		atomic.LoadInt64(&m.success),
		atomic.LoadInt64(&m.conflict),
		atomic.LoadInt64(&m.errors),
	)
	log.Printf("latency p50=%s p95=%s", m.percentile(50), m.percentile(95))

	if doubles > 0 {
		log.Fatalf("INVARIANT VIOLATED: %d slots were booked more than once", doubles)
	}
	log.Println("at-most-one-claim held for every slot")
}

// makeStudents reads the acting students from SIM_STUDENT_IDS. The API has
// no student-creation endpoint (identity is external), so the simulator
// expects seeded students.
func makeStudents() ([]uuid.UUID, error) {
	raw := os.Getenv("SIM_STUDENT_IDS")
	if raw == "" {
		return nil, fmt.Errorf("SIM_STUDENT_IDS is required (comma-separated UUIDs of seeded students)")
	}

	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("bad student id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("SIM_STUDENT_IDS is empty")
	}
	return ids, nil
}

func fetchOpenSlots(client *http.Client, baseURL string) ([]slotRef, error) {
	tutorsRaw := os.Getenv("SIM_TUTOR_IDS")
	if tutorsRaw == "" {
		return nil, fmt.Errorf("SIM_TUTOR_IDS is required (comma-separated UUIDs of seeded tutors)")
	}

	var all []slotRef
	for _, part := range strings.Split(tutorsRaw, ",") {
		tutorID, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("bad tutor id %q: %w", part, err)
		}

		resp, err := client.Get(fmt.Sprintf("%s/tutors/%s/slots", baseURL, tutorID))
		if err != nil {
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("list slots for %s: status %d", tutorID, resp.StatusCode)
		}

		var slots []slotRef
		if err := json.Unmarshal(body, &slots); err != nil {
			return nil, err
		}
		all = append(all, slots...)
	}

	return all, nil
}

func createBooking(client *http.Client, baseURL string, studentID uuid.UUID, slot slotRef) (int, time.Duration) {
	payload, _ := json.Marshal(map[string]any{
		"tutor_id": slot.TutorID.String(),
		"slot_id":  slot.ID.String(),
		"price":    float64(10 + gofakeit.Number(0, 90)),
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/bookings", bytes.NewReader(payload))
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", studentID.String())

	start := time.Now()
	resp, err := client.Do(req)
	took := time.Since(start)
	if err != nil {
		return 0, took
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, took
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
