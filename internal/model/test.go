package model

import (
	"time"

	"github.com/google/uuid"
)

// GracePeriodMinutes is the fixed window after a test's nominal duration
// during which submissions are still accepted, flagged as late.
const GracePeriodMinutes = 10

// GracePeriod is GracePeriodMinutes as a duration.
const GracePeriod = GracePeriodMinutes * time.Minute

// ContentType enumerates how a test paper is delivered.
type ContentType string

const (
	ContentTypeText ContentType = "TEXT"
	ContentTypePDF  ContentType = "PDF"
)

// Test is a time-boxed proctored assignment. Apart from the derived timing
// helpers below it is read-only for students.
type Test struct {
	ID              uuid.UUID        `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	ContentType     ContentType      `json:"content_type"`
	StartTime       time.Time        `json:"start_time"`
	DurationMinutes int              `json:"duration_minutes"`
	AuthorID        int              `json:"author_id,omitempty"`
	HasSubmitted    bool             `json:"has_submitted"`
	Submission      *Submission      `json:"submission,omitempty"`
	Compromise      CompromiseStatus `json:"compromise,omitempty"`
	CompromiseAt    *time.Time       `json:"compromise_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Duration returns the nominal duration of the test.
func (t *Test) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// Deadline is the end of the nominal duration. Submissions after it are late.
func (t *Test) Deadline() time.Time {
	return t.StartTime.Add(t.Duration())
}

// Cutoff is the end of the grace period. Nothing is accepted after it.
func (t *Test) Cutoff() time.Time {
	return t.Deadline().Add(GracePeriod)
}

// TimeLeft returns the time remaining until the cutoff, never negative.
func (t *Test) TimeLeft(now time.Time) time.Duration {
	left := t.Cutoff().Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// IsLate reports whether a submission made at now is past the deadline.
func (t *Test) IsLate(now time.Time) bool {
	return now.After(t.Deadline())
}

// InGracePeriod reports whether now falls in the late-but-accepted window.
func (t *Test) InGracePeriod(now time.Time) bool {
	return t.IsLate(now) && !now.After(t.Cutoff())
}

// HasStarted reports whether the test paper may be opened at now.
func (t *Test) HasStarted(now time.Time) bool {
	return !now.Before(t.StartTime)
}

// TestBuckets is the student's view of their tests grouped by lifecycle.
type TestBuckets struct {
	Upcoming  []Test `json:"upcoming"`
	Ongoing   []Test `json:"ongoing"`
	Submitted []Test `json:"submitted"`
	Expired   []Test `json:"expired"`
}

// All returns every test across the buckets.
func (b *TestBuckets) All() []Test {
	all := make([]Test, 0, len(b.Upcoming)+len(b.Ongoing)+len(b.Submitted)+len(b.Expired))
	all = append(all, b.Upcoming...)
	all = append(all, b.Ongoing...)
	all = append(all, b.Submitted...)
	return append(all, b.Expired...)
}

// Find returns the test with the given id from any bucket.
func (b *TestBuckets) Find(id uuid.UUID) (*Test, bool) {
	all := b.All()
	for i := range all {
		if all[i].ID == id {
			return &all[i], true
		}
	}
	return nil, false
}

// Bucket places tests into buckets relative to now.
func Bucket(tests []Test, now time.Time) TestBuckets {
	b := TestBuckets{
		Upcoming:  []Test{},
		Ongoing:   []Test{},
		Submitted: []Test{},
		Expired:   []Test{},
	}
	for _, t := range tests {
		switch {
		case t.HasSubmitted:
			b.Submitted = append(b.Submitted, t)
		case !t.HasStarted(now):
			b.Upcoming = append(b.Upcoming, t)
		case t.TimeLeft(now) > 0:
			b.Ongoing = append(b.Ongoing, t)
		default:
			b.Expired = append(b.Expired, t)
		}
	}
	return b
}

// Content is a fetched test paper.
type Content struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
	PDF  []byte      `json:"-"`
}

// CreateTestRequest is the payload for creating a new test.
type CreateTestRequest struct {
	Title           string      `json:"title" binding:"required,min=3,max=255"`
	Description     string      `json:"description" binding:"omitempty,max=2000"`
	ContentType     ContentType `json:"content_type" binding:"required,oneof=TEXT PDF"`
	Text            string      `json:"text" binding:"required_if=ContentType TEXT"`
	StartTime       time.Time   `json:"start_time" binding:"required"`
	DurationMinutes int         `json:"duration_minutes" binding:"required,min=1,max=480"`
	StudentIDs      []int       `json:"student_ids" binding:"required,min=1,dive,min=1"`
}
