package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorhive/scheduling/internal/db"
	"github.com/tutorhive/scheduling/internal/scheduling"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	tutorIDs, err := seedTutors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed tutors: %v", err)
	}
	if err := seedStudents(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed students: %v", err)
	}
	if err := seedRules(context.Background(), pool, tutorIDs); err != nil {
		log.Fatalf("seed rules: %v", err)
	}

	log.Println("seed complete")
}

func seedTutors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d tutors", count)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		bio := gofakeit.Sentence(12)

		_, err := pool.Exec(ctx, `
			INSERT INTO tutors (id, name, email, bio)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO NOTHING
		`, id, gofakeit.Name(), gofakeit.Email(), bio)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func seedStudents(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d students", count)

	for i := 0; i < count; i++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO students (id, name, email)
			VALUES ($1, $2, $3)
			ON CONFLICT (email) DO NOTHING
		`, uuid.New(), gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return err
		}
	}

	return nil
}

// seedRules gives each tutor up to three non-overlapping weekday windows.
// Hour-aligned windows on distinct weekdays cannot overlap, so no conflict
// check is needed here.
func seedRules(ctx context.Context, pool *pgxpool.Pool, tutorIDs []uuid.UUID) error {
	weekdays := []scheduling.Weekday{
		scheduling.Monday,
		scheduling.Tuesday,
		scheduling.Wednesday,
		scheduling.Thursday,
		scheduling.Friday,
	}

	total := 0
	for _, tutorID := range tutorIDs {
		n := 1 + rand.Intn(3)
		picked := rand.Perm(len(weekdays))[:n]

		for _, wi := range picked {
			startHour := 8 + rand.Intn(10) // 08:00 .. 17:00
			startMinute := startHour * 60
			endMinute := startMinute + 60*(1+rand.Intn(3))

			_, err := pool.Exec(ctx, `
				INSERT INTO availability_rules (id, tutor_id, weekday, start_minute, end_minute, is_active)
				VALUES ($1, $2, $3, $4, $5, true)
			`, uuid.New(), tutorID, weekdays[wi], startMinute, endMinute)
			if err != nil {
				return err
			}
			total++
		}
	}

	log.Printf("seeded %d availability rules", total)
	return nil
}
