package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrNotAssigned is returned when a student asks for a test they were not
// assigned to.
var ErrNotAssigned = errors.New("test not assigned to student")

// TestPaper is where a test's content lives.
type TestPaper struct {
	Type     model.ContentType `json:"type"`
	Text     string            `json:"text,omitempty"`
	PaperKey string            `json:"paper_key,omitempty"`
}

// TestRepository handles test data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

const testColumns = `t.id, t.title, t.description, t.content_type, t.start_time,
	t.duration_minutes, t.author_id, t.created_at, t.updated_at`

func scanTest(row pgx.Row, t *model.Test, extra ...any) error {
	dest := append([]any{
		&t.ID, &t.Title, &t.Description, &t.ContentType, &t.StartTime,
		&t.DurationMinutes, &t.AuthorID, &t.CreatedAt, &t.UpdatedAt,
	}, extra...)
	return row.Scan(dest...)
}

// Create inserts a test and its assignments in one transaction.
func (r *TestRepository) Create(ctx context.Context, t *model.Test, text string, studentIDs []int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var contentText *string
	if t.ContentType == model.ContentTypeText {
		contentText = &text
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO tests (title, description, content_type, content_text, start_time, duration_minutes, author_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		t.Title, t.Description, t.ContentType, contentText, t.StartTime, t.DurationMinutes, t.AuthorID,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert test: %w", err)
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"test_assignments"},
		[]string{"test_id", "student_id"},
		pgx.CopyFromSlice(len(studentIDs), func(i int) ([]interface{}, error) {
			return []interface{}{t.ID, studentIDs[i]}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert assignments: %w", err)
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a test by ID.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	row := r.pool.QueryRow(ctx, `SELECT `+testColumns+` FROM tests t WHERE t.id = $1`, id)
	if err := scanTest(row, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetForStudent retrieves a test assigned to the student, with their
// submission state. Returns ErrNotAssigned if there is no assignment.
func (r *TestRepository) GetForStudent(ctx context.Context, id uuid.UUID, studentID int) (*model.Test, error) {
	t := &model.Test{}
	var subID *uuid.UUID
	row := r.pool.QueryRow(ctx,
		`SELECT `+testColumns+`, s.id
		 FROM tests t
		 JOIN test_assignments a ON a.test_id = t.id AND a.student_id = $2
		 LEFT JOIN submissions s ON s.test_id = t.id AND s.student_id = $2
		 WHERE t.id = $1`, id, studentID,
	)
	if err := scanTest(row, t, &subID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotAssigned
		}
		return nil, err
	}
	t.HasSubmitted = subID != nil
	return t, nil
}

// ListForStudent retrieves every test assigned to the student, each with
// their submission (if any) attached.
func (r *TestRepository) ListForStudent(ctx context.Context, studentID int) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+testColumns+`,
		        s.id, s.file_name, s.submitted_at, s.is_late, s.grade, s.feedback
		 FROM tests t
		 JOIN test_assignments a ON a.test_id = t.id
		 LEFT JOIN submissions s ON s.test_id = t.id AND s.student_id = a.student_id
		 WHERE a.student_id = $1
		 ORDER BY t.start_time`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		var (
			t           model.Test
			subID       *uuid.UUID
			fileName    *string
			submittedAt *time.Time
			isLate      *bool
			grade       *float64
			feedback    *string
		)
		if err := scanTest(rows, &t, &subID, &fileName, &submittedAt, &isLate, &grade, &feedback); err != nil {
			return nil, err
		}
		if subID != nil {
			t.HasSubmitted = true
			t.Submission = &model.Submission{
				ID:          *subID,
				TestID:      t.ID,
				StudentID:   studentID,
				FileName:    deref(fileName),
				SubmittedAt: derefTime(submittedAt),
				IsLate:      isLate != nil && *isLate,
				Grade:       grade,
				Feedback:    feedback,
			}
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// ListByAuthor retrieves the tests created by a staff member.
func (r *TestRepository) ListByAuthor(ctx context.Context, authorID int) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+testColumns+` FROM tests t WHERE t.author_id = $1 ORDER BY t.start_time DESC`, authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		var t model.Test
		if err := scanTest(rows, &t); err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// GetPaper retrieves where a test's content is stored.
func (r *TestRepository) GetPaper(ctx context.Context, id uuid.UUID) (*TestPaper, error) {
	var (
		p        TestPaper
		text     *string
		paperKey *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT content_type, content_text, paper_key FROM tests WHERE id = $1`, id,
	).Scan(&p.Type, &text, &paperKey)
	if err != nil {
		return nil, err
	}
	p.Text = deref(text)
	p.PaperKey = deref(paperKey)
	return &p, nil
}

// SetPaperKey records the object key of an uploaded PDF paper.
func (r *TestRepository) SetPaperKey(ctx context.Context, id uuid.UUID, key string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tests SET paper_key = $1, updated_at = NOW() WHERE id = $2 AND content_type = 'PDF'`,
		key, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListAssignedStudentIDs returns the students a test was assigned to.
func (r *TestRepository) ListAssignedStudentIDs(ctx context.Context, id uuid.UUID) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id FROM test_assignments WHERE test_id = $1 ORDER BY student_id`, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
