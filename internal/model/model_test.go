package model

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTestTiming(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	test := Test{StartTime: start, DurationMinutes: 60}

	tests := []struct {
		name     string
		at       time.Duration
		timeLeft time.Duration
		late     bool
		grace    bool
	}{
		{"before start", -5 * time.Minute, 75 * time.Minute, false, false},
		{"at start", 0, 70 * time.Minute, false, false},
		{"at deadline", 60 * time.Minute, 10 * time.Minute, false, false},
		{"one minute late", 61 * time.Minute, 9 * time.Minute, true, true},
		{"at cutoff", 70 * time.Minute, 0, true, true},
		{"past cutoff", 71 * time.Minute, 0, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := start.Add(tt.at)
			if got := test.TimeLeft(now); got != tt.timeLeft {
				t.Errorf("TimeLeft = %v, want %v", got, tt.timeLeft)
			}
			if got := test.IsLate(now); got != tt.late {
				t.Errorf("IsLate = %v, want %v", got, tt.late)
			}
			if got := test.InGracePeriod(now); got != tt.grace {
				t.Errorf("InGracePeriod = %v, want %v", got, tt.grace)
			}
		})
	}
}

func TestBucket(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	upcoming := Test{ID: uuid.New(), StartTime: now.Add(time.Hour), DurationMinutes: 30}
	ongoing := Test{ID: uuid.New(), StartTime: now.Add(-65 * time.Minute), DurationMinutes: 60}
	expired := Test{ID: uuid.New(), StartTime: now.Add(-2 * time.Hour), DurationMinutes: 60}
	submitted := Test{ID: uuid.New(), StartTime: now.Add(-2 * time.Hour), DurationMinutes: 60, HasSubmitted: true}

	b := Bucket([]Test{upcoming, ongoing, expired, submitted}, now)

	check := func(name string, got []Test, want uuid.UUID) {
		t.Helper()
		if len(got) != 1 || got[0].ID != want {
			t.Errorf("%s = %v, want only %s", name, got, want)
		}
	}
	check("upcoming", b.Upcoming, upcoming.ID)
	check("ongoing", b.Ongoing, ongoing.ID)
	check("expired", b.Expired, expired.ID)
	check("submitted", b.Submitted, submitted.ID)

	if found, ok := b.Find(expired.ID); !ok || found.ID != expired.ID {
		t.Errorf("Find(expired) = %v, %v", found, ok)
	}
	if _, ok := b.Find(uuid.New()); ok {
		t.Error("Find returned an unknown id")
	}
}

func TestValidateAnswerFile(t *testing.T) {
	const mb = 1024 * 1024
	tests := []struct {
		name string
		size int64
		want error
	}{
		{"answer.pdf", 1 * mb, nil},
		{"Answer.DOCX", 10 * mb, nil},
		{"essay.doc", 50 * mb, nil},
		{"setup.exe", 1 * mb, ErrUnsupportedFile},
		{"noext", 1, ErrUnsupportedFile},
		{"big.pdf", 60 * mb, ErrFileTooLarge},
	}
	for _, tt := range tests {
		err := ValidateAnswerFile(tt.name, tt.size)
		if tt.want == nil && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestAnswerFileFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "answer.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := AnswerFileFromPath(path)
	if err != nil {
		t.Fatalf("AnswerFileFromPath: %v", err)
	}
	if f.Name != "answer.pdf" || f.Size != 8 {
		t.Errorf("got %s (%d bytes)", f.Name, f.Size)
	}
	// Each upload attempt reopens the file.
	for range 2 {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != "%PDF-1.4" {
			t.Errorf("read %q", data)
		}
	}

	if _, err := AnswerFileFromPath(dir); err == nil {
		t.Error("directory accepted as answer file")
	}
	if _, err := AnswerFileFromPath(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("missing file accepted")
	}
}
