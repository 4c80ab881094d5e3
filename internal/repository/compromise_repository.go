package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// CompromiseRepository persists the compromise audit log.
type CompromiseRepository struct {
	pool *pgxpool.Pool
}

// NewCompromiseRepository creates a new CompromiseRepository.
func NewCompromiseRepository(pool *pgxpool.Pool) *CompromiseRepository {
	return &CompromiseRepository{pool: pool}
}

// BulkInsert writes events with a single COPY.
func (r *CompromiseRepository) BulkInsert(ctx context.Context, events []model.CompromiseEvent) (int64, error) {
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"compromise_events"},
		[]string{"test_id", "student_id", "kind", "actor_id", "recorded_at"},
		pgx.CopyFromSlice(len(events), func(i int) ([]interface{}, error) {
			e := events[i]
			return []interface{}{e.TestID, e.StudentID, string(e.Kind), e.ActorID, e.RecordedAt}, nil
		}),
	)
}

// Insert writes one event.
func (r *CompromiseRepository) Insert(ctx context.Context, e model.CompromiseEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO compromise_events (test_id, student_id, kind, actor_id, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.TestID, e.StudentID, string(e.Kind), e.ActorID, e.RecordedAt)
	return err
}

// ListByTest retrieves the audit log of a test, newest first.
func (r *CompromiseRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.CompromiseEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT test_id, student_id, kind, actor_id, recorded_at
		 FROM compromise_events WHERE test_id = $1
		 ORDER BY recorded_at DESC`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.CompromiseEvent
	for rows.Next() {
		var e model.CompromiseEvent
		if err := rows.Scan(&e.TestID, &e.StudentID, &e.Kind, &e.ActorID, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
