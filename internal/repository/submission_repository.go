package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// SubmissionRepository handles submission data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

const submissionColumns = `s.id, s.test_id, s.student_id, st.name, s.file_name, s.object_key,
	s.submitted_at, s.is_late, s.grade, s.feedback, s.graded_by, s.graded_at`

func scanSubmission(row pgx.Row, s *model.Submission) error {
	return row.Scan(&s.ID, &s.TestID, &s.StudentID, &s.StudentName, &s.FileName, &s.ObjectKey,
		&s.SubmittedAt, &s.IsLate, &s.Grade, &s.Feedback, &s.GradedBy, &s.GradedAt)
}

// Create inserts a submission at most once per (test, student). A second
// insert returns model.ErrAlreadySubmitted.
func (r *SubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO submissions (test_id, student_id, file_name, object_key, submitted_at, is_late)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (test_id, student_id) DO NOTHING
		 RETURNING id`,
		s.TestID, s.StudentID, s.FileName, s.ObjectKey, s.SubmittedAt, s.IsLate,
	).Scan(&s.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrAlreadySubmitted
	}
	return err
}

// GetByID retrieves a submission by ID.
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	s := &model.Submission{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions s JOIN students st ON st.id = s.student_id
		 WHERE s.id = $1`, id)
	if err := scanSubmission(row, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListByTest retrieves every submission of a test ordered by time.
func (r *SubmissionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+`
		 FROM submissions s JOIN students st ON st.id = s.student_id
		 WHERE s.test_id = $1
		 ORDER BY s.submitted_at`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var s model.Submission
		if err := scanSubmission(rows, &s); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Grade records a grade and optional feedback.
func (r *SubmissionRepository) Grade(ctx context.Context, id uuid.UUID, grade float64, feedback *string, staffID int, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE submissions
		 SET grade = $1, feedback = $2, graded_by = $3, graded_at = $4
		 WHERE id = $5`,
		grade, feedback, staffID, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
